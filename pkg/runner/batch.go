package runner

import (
	"github.com/wentf9/xdeploy/pkg/models"
	"github.com/wentf9/xdeploy/pkg/utils"
)

type TaskFunc func(target models.Target) error

type Result struct {
	Target models.Target
	Error  error
}

// RunParallel 以有限并发对每个目标执行 task, 结果按完成顺序返回
func RunParallel(targets []models.Target, concurrency uint, task TaskFunc) <-chan Result {
	wp := utils.NewWorkerPool(concurrency)
	// 缓冲区等于目标数量, worker 不会阻塞在发送结果上
	results := make(chan Result, len(targets))
	go func() {
		for _, t := range targets {
			wp.Execute(func() {
				results <- Result{Target: t, Error: task(t)}
			})
		}
		wp.Wait()
		close(results)
	}()
	return results
}
