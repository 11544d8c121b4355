package deploy

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	ping "github.com/prometheus-community/pro-bing"
	"github.com/wentf9/xdeploy/pkg/models"
	"github.com/wentf9/xdeploy/pkg/runner"
)

// CheckOptions 连通性检查参数
type CheckOptions struct {
	// ICMP 为 true 时额外发送 ICMP ping (raw socket 需要 root 权限)
	ICMP        bool
	Privileged  bool
	Timeout     time.Duration
	Concurrency uint
}

// Probe 探测一个目标, 返回可读的结果描述
type Probe func(ctx context.Context, target models.Target) (string, error)

// Check 并发检查每个目标的 SSH 端口, 结果按主机名排序
func Check(ctx context.Context, targets []models.Target, probe Probe, concurrency uint) (string, error) {
	var mu sync.Mutex
	lines := map[string]string{}
	var failed []string

	for r := range runner.RunParallel(targets, concurrency, func(t models.Target) error {
		msg, err := probe(ctx, t)
		mu.Lock()
		defer mu.Unlock()
		lines[t.Name] = msg
		return err
	}) {
		if r.Error != nil {
			mu.Lock()
			lines[r.Target.Name] = fmt.Sprintf("%s: unreachable: %v", r.Target.Name, r.Error)
			mu.Unlock()
			failed = append(failed, r.Target.Name)
		}
	}

	names := make([]string, 0, len(lines))
	for name := range lines {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		b.WriteString(lines[name])
		b.WriteByte('\n')
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return b.String(), fmt.Errorf("%d host(s) unreachable: %s", len(failed), strings.Join(failed, ", "))
	}
	return b.String(), nil
}

// NetProbe TCP 连接 SSH 端口, 需要时再做 ICMP ping
func NetProbe(opts CheckOptions) Probe {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return func(ctx context.Context, t models.Target) (string, error) {
		addr := t.Host.Addr()
		d := net.Dialer{Timeout: timeout}
		start := time.Now()
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return "", err
		}
		conn.Close()
		msg := fmt.Sprintf("%s: tcp %s ok (%v)", t.Name, addr, time.Since(start).Round(time.Millisecond))

		if !opts.ICMP {
			return msg, nil
		}
		pinger, err := ping.NewPinger(t.Host.Address)
		if err != nil {
			return msg, fmt.Errorf("create pinger: %w", err)
		}
		pinger.SetPrivileged(opts.Privileged)
		pinger.Count = 3
		pinger.Interval = 200 * time.Millisecond
		pinger.Timeout = timeout
		if err := pinger.RunWithContext(ctx); err != nil {
			return msg, fmt.Errorf("icmp: %w", err)
		}
		stats := pinger.Statistics()
		if stats.PacketsRecv == 0 {
			return msg, fmt.Errorf("icmp: %d packets sent, none received", stats.PacketsSent)
		}
		return fmt.Sprintf("%s, icmp %d/%d avg %v", msg, stats.PacketsRecv, stats.PacketsSent, stats.AvgRtt), nil
	}
}

func init() {
	register(&Recipe{
		Name:  "check",
		Short: "检查所选角色主机的连通性",
		Rule:  AnyRole(),
		Build: func(ctx context.Context, o *Orchestrator, targets []models.Target, args Args) (*Plan, error) {
			probe := o.Probe
			if probe == nil {
				probe = NetProbe(CheckOptions{})
			}
			return (&Plan{}).Add(Step{Name: "probe", Run: func(ctx context.Context) (string, error) {
				return Check(ctx, targets, probe, 8)
			}}), nil
		},
	})
}
