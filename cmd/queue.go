package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/wentf9/xdeploy/internal/storage"
	"github.com/wentf9/xdeploy/internal/tasks"
	"github.com/wentf9/xdeploy/pkg/logger"
	"github.com/wentf9/xdeploy/pkg/metrics"
	"github.com/wentf9/xdeploy/pkg/queue"
)

func NewCmdQueue() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "后台任务队列",
		Long: `后台任务队列, 消息保存在 Redis 中。
取出后超过可见性超时 (默认一周) 仍未确认的任务会重新投递; 失败的任务只上报, 不自动重试。`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	cmd.AddCommand(NewCmdQueueWorker())
	cmd.AddCommand(NewCmdQueueSend())
	cmd.AddCommand(NewCmdQueueTasks())
	return cmd
}

// bootstrapQueue 连接 broker 并初始化进程内唯一的队列实例
func bootstrapQueue(ctx context.Context) (*queue.App, error) {
	s, err := rootOpts.Settings()
	if err != nil {
		return nil, err
	}
	rdb, err := storage.InitRedis(ctx, s.Queue.BrokerURL)
	if err != nil {
		return nil, err
	}
	broker := queue.NewRedisBroker(rdb, s.Queue.Namespace, s.Queue.DefaultQueue, s.Queue.VisibilityTimeout)
	app, err := queue.Bootstrap(s, queue.WithBroker(broker))
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return app, nil
}

type QueueWorkerOptions struct {
	Concurrency int
	MetricsAddr string
	Once        bool
}

func NewCmdQueueWorker() *cobra.Command {
	o := &QueueWorkerOptions{}
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "启动任务 worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run(cmd)
		},
	}
	cmd.Flags().IntVarP(&o.Concurrency, "concurrency", "c", 0, "并发执行的任务数 (默认取配置中的 queue.concurrency)")
	cmd.Flags().StringVar(&o.MetricsAddr, "metrics-addr", "", "Prometheus 指标监听地址, 例如 :9090")
	cmd.Flags().BoolVar(&o.Once, "once", false, "只处理一个任务后退出")
	return cmd
}

func (o *QueueWorkerOptions) Run(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrapQueue(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if orch, cleanup, err := newOrchestrator(rootOpts, cmd.OutOrStdout()); err != nil {
		logger.Logger.Warn("deploy tasks unavailable", "error", err)
	} else {
		defer cleanup()
		tasks.Configure(orch)
	}

	w := queue.NewWorker(app)
	if o.Concurrency > 0 {
		w.Concurrency = o.Concurrency
	}
	if o.Once {
		w.Poll = 5 * time.Second
		ok, err := w.RunOnce(ctx)
		if err == nil && !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "队列为空")
		}
		return err
	}

	if o.MetricsAddr != "" {
		srv := serveMetrics(o.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
	return w.Run(ctx)
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Logger.Info("metrics server listening", "addr", addr)
	return srv
}

type QueueSendOptions struct {
	Task      string
	Payload   json.RawMessage
	Countdown time.Duration
	ETA       string
}

func NewCmdQueueSend() *cobra.Command {
	o := &QueueSendOptions{}
	cmd := &cobra.Command{
		Use:   "send <task> [json_payload]",
		Short: "发送一个任务",
		Long: `发送一个任务到队列。
用法示例:
xdeploy queue send ops.ping '{"message":"hello"}'
xdeploy queue send ops.backup --countdown 1h
xdeploy queue send ops.check '{"roles":["backend"]}' --eta 2025-01-02T03:00:00+08:00`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(args); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}
	cmd.Flags().DurationVar(&o.Countdown, "countdown", 0, "延迟执行的时间")
	cmd.Flags().StringVar(&o.ETA, "eta", "", "执行时间 (RFC3339)")
	return cmd
}

func (o *QueueSendOptions) Complete(args []string) error {
	o.Task = args[0]
	if len(args) > 1 {
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("任务参数不是合法的 JSON: %s", args[1])
		}
		o.Payload = json.RawMessage(args[1])
	}
	return nil
}

func (o *QueueSendOptions) Run(cmd *cobra.Command) error {
	opts := queue.SendOptions{Countdown: o.Countdown}
	if o.ETA != "" {
		eta, err := time.Parse(time.RFC3339, o.ETA)
		if err != nil {
			return fmt.Errorf("非法的 eta: %w", err)
		}
		opts.ETA = eta
	}
	app, err := bootstrapQueue(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	var payload any
	if o.Payload != nil {
		payload = o.Payload
	}
	id, err := app.Send(cmd.Context(), o.Task, payload, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func NewCmdQueueTasks() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "列出已注册的任务",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range queue.Registered() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
