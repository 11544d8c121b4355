package deploy

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/wentf9/xdeploy/pkg/executor"
	"github.com/wentf9/xdeploy/pkg/models"
)

// LockName 部署锁目录, 位于远程项目目录下
const LockName = ".xdeploy.lock"

// Cycle 一个 compose 服务的重启方式
type Cycle struct {
	Service string
	// Pull 先拉取镜像再重启
	Pull bool
	// PullService 拉取的镜像所属服务, 为空时与 Service 相同
	PullService string
}

// hostSession 一台主机上的执行器, 由 connect 步骤打开
type hostSession struct {
	o      *Orchestrator
	target models.Target
	exec   executor.Executor
	locked bool
}

func (h *hostSession) name() string { return h.target.Name }

func (h *hostSession) step(name string, run func(ctx context.Context) (string, error)) Step {
	return Step{Name: name, Host: h.name(), Run: run}
}

// remote 在远程项目目录下执行命令
func (h *hostSession) remote(name, cmd string) Step {
	dir := h.o.Inventory.RemoteAppDir
	return h.step(name, func(ctx context.Context) (string, error) {
		return h.exec.Run(ctx, executor.InDir(dir, cmd))
	})
}

func (h *hostSession) connect() Step {
	return h.step("connect", func(ctx context.Context) (string, error) {
		e, err := h.o.Remotes.Open(ctx, h.target)
		if err != nil {
			return "", err
		}
		h.exec = e
		return h.target.Host.Addr(), nil
	})
}

func (h *hostSession) lockPath() string {
	return executor.Join(h.o.Inventory.RemoteAppDir, LockName)
}

// lock 用 mkdir 的原子性保证同一时间只有一个部署在这台主机上修改项目目录
func (h *hostSession) lock() Step {
	return h.step("lock", func(ctx context.Context) (string, error) {
		lock := executor.Quote(h.lockPath())
		if h.o.ForceUnlock {
			if out, err := h.exec.Run(ctx, "rm -rf "+lock); err != nil {
				return out, err
			}
		}
		owner := executor.Quote(fmt.Sprintf("%s %s", lockOwner(), h.o.now().Format("2006-01-02 15:04:05")))
		cmd := fmt.Sprintf(
			"if mkdir %[1]s 2>/dev/null; then echo %[2]s > %[1]s/owner; echo acquired; elif [ -d %[1]s ]; then echo \"held by $(cat %[1]s/owner 2>/dev/null)\"; else exit 1; fi",
			lock, owner)
		out, err := h.exec.Run(ctx, cmd)
		if err != nil {
			return out, err
		}
		if strings.TrimSpace(out) != "acquired" {
			return out, fmt.Errorf("%w: %s on %s %s", ErrLocked, h.lockPath(), h.name(), strings.TrimSpace(out))
		}
		h.locked = true
		return out, nil
	})
}

// unlock 只删除本次执行拿到的锁
func (h *hostSession) unlock() Step {
	return h.step("unlock", func(ctx context.Context) (string, error) {
		if !h.locked {
			return "not held", nil
		}
		out, err := h.exec.Run(ctx, "rm -rf "+executor.Quote(h.lockPath()))
		if err == nil {
			h.locked = false
		}
		return out, err
	})
}

func (h *hostSession) upload() Step {
	inv := h.o.Inventory
	return h.step("upload-code", func(ctx context.Context) (string, error) {
		if _, err := h.exec.Run(ctx, "mkdir -p "+executor.Quote(inv.RemoteUploadDir)); err != nil {
			return "", err
		}
		return "", h.exec.Copy(ctx, inv.ProjectDir(), inv.RemoteUploadDir)
	})
}

func manage(service, cmd string) string {
	return fmt.Sprintf("docker-compose run --rm %s python manage.py %s", service, cmd)
}

// updateSource 丢弃本地修改并拉取最新代码
func (h *hostSession) updateSource() []Step {
	return []Step{
		h.remote("git-checkout", "git checkout -- ."),
		h.remote("git-pull", "git pull --rebase"),
	}
}

func (h *hostSession) migrate(service string) []Step {
	return []Step{
		h.remote("migrate", manage(service, "migrate")),
		h.remote("collectstatic", manage(service, "collectstatic --noinput")),
	}
}

func (h *hostSession) pull(c Cycle) Step {
	svc := c.PullService
	if svc == "" {
		svc = c.Service
	}
	return h.remote("pull:"+svc, "docker-compose pull "+svc)
}

// cycle 停止, 删除并重新启动服务容器
func (h *hostSession) cycle(c Cycle) []Step {
	var steps []Step
	if c.Pull {
		steps = append(steps, h.pull(c))
	}
	return append(steps,
		h.remote("stop:"+c.Service, "docker-compose stop "+c.Service),
		h.remote("rm:"+c.Service, "docker-compose rm -f "+c.Service),
		h.remote("up:"+c.Service, "docker-compose up -d "+c.Service),
	)
}

func lockOwner() string {
	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return user + "@" + host
}
