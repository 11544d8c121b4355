package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/wentf9/xdeploy/pkg/config"
	"github.com/wentf9/xdeploy/pkg/logger"
	"github.com/wentf9/xdeploy/pkg/utils/concurrent"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrNoReporter  = errors.New("no error reporter installed")
)

// App 任务队列实例: broker, 已加载的任务和错误上报
type App struct {
	Name     string
	Config   config.QueueConfig
	Broker   Broker
	Reporter Reporter
	Now      func() time.Time

	tasks *concurrent.Map[string, Handler]
}

type Option func(*App)

func WithBroker(b Broker) Option {
	return func(a *App) { a.Broker = b }
}

func WithReporter(r Reporter) Option {
	return func(a *App) { a.Reporter = r }
}

func WithClock(now func() time.Time) Option {
	return func(a *App) { a.Now = now }
}

var (
	once    sync.Once
	current *App
	bootErr error
)

// Bootstrap 创建进程内唯一的 App, 之后的调用返回同一个实例
func Bootstrap(s *config.Settings, opts ...Option) (*App, error) {
	once.Do(func() {
		current, bootErr = New(s, opts...)
	})
	return current, bootErr
}

// Current 返回 Bootstrap 创建的实例, 未初始化时为 nil
func Current() *App {
	return current
}

// New 按配置创建 App. 错误上报先于任务加载安装
func New(s *config.Settings, opts ...Option) (*App, error) {
	a := &App{
		Name:   s.Project,
		Config: s.Queue,
		Now:    time.Now,
		tasks:  concurrent.NewMap[string, Handler](concurrent.HashString),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.Reporter == nil {
		if s.Sentry.DSN != "" {
			r, err := NewSentryReporter(sentry.ClientOptions{
				Dsn:         s.Sentry.DSN,
				Environment: string(s.Env),
			})
			if err != nil {
				return nil, err
			}
			a.Reporter = r
		} else {
			a.Reporter = LogReporter{}
		}
	}
	if a.Broker == nil {
		b, err := NewRedisBrokerURL(s.Queue.BrokerURL, s.Queue.Namespace, s.Queue.DefaultQueue, s.Queue.VisibilityTimeout)
		if err != nil {
			return nil, err
		}
		a.Broker = b
	}
	n := a.Autodiscover()
	logger.Logger.Debug("queue app ready", "app", a.Name, "tasks", n)
	return a, nil
}

// Autodiscover 从全局注册表加载符合 Imports 前缀的任务, 返回加载数量
func (a *App) Autodiscover() int {
	n := 0
	registry.IterCb(func(name string, h Handler) bool {
		if matchImports(name, a.Config.Imports) {
			if _, stored := a.tasks.SetIfAbsent(name, h); stored {
				n++
			}
		}
		return true
	})
	return n
}

// Tasks 已加载的任务名
func (a *App) Tasks() []string {
	return concurrent.SortedKeys(a.tasks)
}

func (a *App) handler(name string) (Handler, bool) {
	return a.tasks.Get(name)
}

// SendOptions Countdown 和 ETA 同时设置时以较晚的为准
type SendOptions struct {
	Countdown time.Duration
	ETA       time.Time
}

// Send 发送任务, 返回消息 id
func (a *App) Send(ctx context.Context, name string, payload any, opts SendOptions) (string, error) {
	if _, ok := a.handler(name); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("encode payload for %s: %w", name, err)
		}
		raw = data
	}
	now := a.Now()
	msg := Message{
		ID:      uuid.NewString(),
		Task:    name,
		Payload: raw,
		SentAt:  now,
	}
	eta := opts.ETA
	if opts.Countdown > 0 {
		if c := now.Add(opts.Countdown); c.After(eta) {
			eta = c
		}
	}
	var err error
	if eta.After(now) {
		err = a.Broker.Schedule(ctx, msg, eta)
	} else {
		err = a.Broker.Push(ctx, msg)
	}
	if err != nil {
		return "", fmt.Errorf("send %s: %w", name, err)
	}
	logger.Logger.Debug("task sent", "task", name, "id", msg.ID, "eta", eta)
	return msg.ID, nil
}

func (a *App) Close() error {
	if a.Reporter != nil {
		a.Reporter.Flush(2 * time.Second)
	}
	if a.Broker != nil {
		return a.Broker.Close()
	}
	return nil
}
