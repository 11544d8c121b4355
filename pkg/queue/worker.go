package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wentf9/xdeploy/pkg/logger"
	"github.com/wentf9/xdeploy/pkg/metrics"
	"github.com/wentf9/xdeploy/pkg/utils"
)

// ErrTaskPanic 任务处理函数 panic
var ErrTaskPanic = errors.New("task panicked")

// Worker 从 broker 取消息并执行. 失败的任务上报后直接确认, 不自动重试
type Worker struct {
	App         *App
	Concurrency int
	// Poll 单次 Reserve 的最长等待时间
	Poll time.Duration
	// Maintain 延时消息提升和超时重投的检查间隔
	Maintain time.Duration
}

func NewWorker(app *App) *Worker {
	return &Worker{
		App:         app,
		Concurrency: app.Config.Concurrency,
		Poll:        time.Second,
		Maintain:    time.Second,
	}
}

// Run 阻塞直到 ctx 结束, 返回前等待正在执行的任务完成
func (w *Worker) Run(ctx context.Context) error {
	if w.App.Reporter == nil {
		return ErrNoReporter
	}
	conc := w.Concurrency
	if conc <= 0 {
		conc = 1
	}
	pool := utils.NewWorkerPool(uint(conc), utils.WithPanicHandler(func(r any) {
		w.App.Reporter.Report(ctx, TaskInfo{}, fmt.Errorf("%w: %v", ErrTaskPanic, r))
	}))
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.maintain(ctx)
	}()

	logger.Logger.Info("worker started", "app", w.App.Name, "concurrency", conc, "tasks", w.App.Tasks())
	for ctx.Err() == nil {
		d, err := w.App.Broker.Reserve(ctx, w.Poll)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Logger.Error("reserve failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.Poll):
			}
			continue
		}
		if d == nil {
			continue
		}
		pool.Execute(func() { w.process(context.WithoutCancel(ctx), d) })
	}
	pool.Wait()
	<-done
	logger.Logger.Info("worker stopped", "app", w.App.Name)
	return nil
}

// RunOnce 取一条消息同步执行, 没有消息时返回 false
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if w.App.Reporter == nil {
		return false, ErrNoReporter
	}
	d, err := w.App.Broker.Reserve(ctx, w.Poll)
	if err != nil || d == nil {
		return false, err
	}
	w.process(ctx, d)
	return true, nil
}

// MaintainOnce 执行一次延时消息提升和超时重投
func (w *Worker) MaintainOnce(ctx context.Context) error {
	now := w.App.Now()
	promoted, err := w.App.Broker.PromoteDue(ctx, now)
	if err != nil {
		return fmt.Errorf("promote due: %w", err)
	}
	requeued, err := w.App.Broker.RequeueExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("requeue expired: %w", err)
	}
	if promoted > 0 || requeued > 0 {
		logger.Logger.Info("queue maintenance", "promoted", promoted, "requeued", requeued)
	}
	return nil
}

func (w *Worker) maintain(ctx context.Context) {
	interval := w.Maintain
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := w.MaintainOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Logger.Warn("queue maintenance failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) process(ctx context.Context, d *Delivery) {
	info := TaskInfo{ID: d.ID, Task: d.Task}
	start := time.Now()
	err := w.invoke(ctx, d)
	status := "succeeded"
	if err != nil {
		status = "failed"
		w.App.Reporter.Report(ctx, info, err)
	} else {
		logger.Logger.Debug("task succeeded", "task", d.Task, "id", d.ID)
	}
	metrics.ObserveTask(d.Task, status, time.Since(start))
	if err := w.App.Broker.Ack(ctx, d); err != nil {
		logger.Logger.Error("ack failed", "task", d.Task, "id", d.ID, "error", err)
	}
}

func (w *Worker) invoke(ctx context.Context, d *Delivery) (err error) {
	h, ok := w.App.handler(d.Task)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, d.Task)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return h(ctx, d.Payload)
}
