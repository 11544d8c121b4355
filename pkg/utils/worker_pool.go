package utils

import (
	"sync"
	"sync/atomic"
)

// WorkerPool 控制并发任务的执行
type WorkerPool interface {
	// Execute 在取得许可后异步执行 task, 没有空闲许可时阻塞调用方
	Execute(task func())
	Wait()
	Running() int
}

type defaultWorkerPool struct {
	limit        chan struct{}
	wg           sync.WaitGroup
	running      atomic.Int64
	panicHandler func(any)
}

type Option func(*defaultWorkerPool)

// WithPanicHandler 允许用户自定义 panic 处理逻辑
func WithPanicHandler(handler func(any)) Option {
	return func(wp *defaultWorkerPool) {
		wp.panicHandler = handler
	}
}

func NewWorkerPool(maxConcurrent uint, options ...Option) WorkerPool {
	if maxConcurrent == 0 {
		maxConcurrent = 5
	}
	wp := &defaultWorkerPool{
		limit: make(chan struct{}, maxConcurrent),
	}
	for _, option := range options {
		option(wp)
	}
	return wp
}

func (wp *defaultWorkerPool) Execute(task func()) {
	// 许可在调用方获取, 这样生产者(例如从 broker 取消息的循环)天然受到背压
	wp.limit <- struct{}{}
	wp.running.Add(1)
	wp.wg.Go(func() {
		defer func() {
			wp.running.Add(-1)
			<-wp.limit
		}()
		if wp.panicHandler != nil {
			defer func() {
				if r := recover(); r != nil {
					wp.panicHandler(r)
				}
			}()
		}
		task()
	})
}

func (wp *defaultWorkerPool) Wait() {
	wp.wg.Wait()
}

// Running 返回正在执行的任务数
func (wp *defaultWorkerPool) Running() int {
	return int(wp.running.Load())
}
