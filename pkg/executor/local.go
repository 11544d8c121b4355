package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/wentf9/xdeploy/pkg/logger"
)

// LocalExecutor 本地执行器
type LocalExecutor struct {
	// Dir 工作目录, 为空时使用当前目录
	Dir string
	// Env 追加到当前进程环境变量之后
	Env []string
	// Stdin/Stdout/Stderr 非空时连接到子进程, 用于交互命令和实时输出
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{}
}

// WithEnv 返回附加了环境变量的副本
func (e *LocalExecutor) WithEnv(kv ...string) *LocalExecutor {
	cp := *e
	cp.Env = append(append([]string(nil), e.Env...), kv...)
	return &cp
}

func (e *LocalExecutor) Run(ctx context.Context, cmd string) (string, error) {
	logger.Logger.Debug("local run", "cmd", cmd, "dir", e.Dir)
	// 使用 bash -c 执行以支持复杂的 shell 语法
	c := exec.CommandContext(ctx, "bash", "-c", cmd)
	c.Dir = e.Dir
	if len(e.Env) > 0 {
		c.Env = append(os.Environ(), e.Env...)
	}
	c.Stdin = e.Stdin

	var b bytes.Buffer
	c.Stdout, c.Stderr = &b, &b
	if e.Stdout != nil {
		c.Stdout = io.MultiWriter(&b, e.Stdout)
	}
	if e.Stderr != nil {
		c.Stderr = io.MultiWriter(&b, e.Stderr)
	}
	if err := c.Run(); err != nil {
		return b.String(), fmt.Errorf("command failed: %w", err)
	}
	return b.String(), nil
}

func (e *LocalExecutor) Copy(ctx context.Context, src, dst string) error {
	if !filepath.IsAbs(dst) && e.Dir != "" {
		dst = filepath.Join(e.Dir, dst)
	}
	_, err := e.Run(ctx, fmt.Sprintf("cp -R %s %s", Quote(src), Quote(dst)))
	return err
}
