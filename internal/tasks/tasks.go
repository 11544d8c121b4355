// Package tasks 注册随程序发布的队列任务. 导入本包即完成注册,
// 执行依赖通过 Configure 注入.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/wentf9/xdeploy/pkg/deploy"
	"github.com/wentf9/xdeploy/pkg/logger"
	"github.com/wentf9/xdeploy/pkg/queue"
)

const (
	Ping   = "ops.ping"
	Backup = "ops.backup"
	Check  = "ops.check"
)

// ErrNotConfigured 需要编排器的任务在 Configure 之前被执行
var ErrNotConfigured = errors.New("tasks: orchestrator not configured")

// Runner 执行命名配方, 由 *deploy.Orchestrator 实现
type Runner interface {
	Run(ctx context.Context, name string, roles []string, args deploy.Args) (*deploy.Report, error)
}

var (
	mu     sync.RWMutex
	runner Runner
)

// Configure 设置任务使用的编排器
func Configure(r Runner) {
	mu.Lock()
	runner = r
	mu.Unlock()
}

func currentRunner() (Runner, error) {
	mu.RLock()
	defer mu.RUnlock()
	if runner == nil {
		return nil, ErrNotConfigured
	}
	return runner, nil
}

// PingPayload ops.ping 的参数
type PingPayload struct {
	Message string `json:"message,omitempty"`
}

// CheckPayload ops.check 的参数
type CheckPayload struct {
	Roles []string `json:"roles"`
}

func init() {
	queue.Register(Ping, ping)
	queue.Register(Backup, backup)
	queue.Register(Check, check)
}

func ping(ctx context.Context, payload json.RawMessage) error {
	var p PingPayload
	if err := unmarshal(payload, &p); err != nil {
		return err
	}
	logger.Logger.InfoContext(ctx, "pong", "message", p.Message)
	return nil
}

func backup(ctx context.Context, _ json.RawMessage) error {
	r, err := currentRunner()
	if err != nil {
		return err
	}
	report, err := r.Run(ctx, "backup", nil, deploy.Args{})
	if err != nil {
		return err
	}
	if report.Artifact != nil {
		logger.Logger.InfoContext(ctx, "backup finished", "path", report.Artifact.Path, "size", report.Artifact.Size)
	}
	return nil
}

func check(ctx context.Context, payload json.RawMessage) error {
	var p CheckPayload
	if err := unmarshal(payload, &p); err != nil {
		return err
	}
	r, err := currentRunner()
	if err != nil {
		return err
	}
	_, err = r.Run(ctx, "check", p.Roles, deploy.Args{})
	return err
}

func unmarshal(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
