package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/wentf9/xdeploy/pkg/logger"
)

// TaskInfo 上报错误时附带的任务信息
type TaskInfo struct {
	ID   string
	Task string
}

// Reporter 任务失败的上报通道
type Reporter interface {
	Report(ctx context.Context, info TaskInfo, err error)
	Flush(timeout time.Duration) bool
}

// LogReporter 只写日志
type LogReporter struct {
	Log *logger.Log
}

func (r LogReporter) Report(ctx context.Context, info TaskInfo, err error) {
	l := r.Log
	if l == nil {
		l = logger.Logger
	}
	l.ErrorContext(ctx, "task failed", "task", info.Task, "id", info.ID, "error", err)
}

func (LogReporter) Flush(time.Duration) bool { return true }

// SentryReporter 把失败上报到 Sentry, 同时写日志
type SentryReporter struct {
	hub *sentry.Hub
	log LogReporter
}

// NewSentryReporter 使用独立的 Hub, 不影响全局 Sentry 状态
func NewSentryReporter(opts sentry.ClientOptions) (*SentryReporter, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (r *SentryReporter) Report(ctx context.Context, info TaskInfo, err error) {
	r.log.Report(ctx, info, err)
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("task", info.Task)
		scope.SetTag("task_id", info.ID)
		r.hub.CaptureException(err)
	})
}

func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}
