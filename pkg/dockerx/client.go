// Package dockerx 通过 Docker Engine API 在本地数据库容器中执行 mysqldump / mysql
package dockerx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
)

// Client 包装 Docker SDK 客户端
type Client struct {
	inner *client.Client
}

// New host 为空时使用 DOCKER_HOST 等环境变量
func New(host string) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	inner, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Client{inner: inner}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.inner == nil {
		return fmt.Errorf("docker client not initialized")
	}
	ping, err := c.inner.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	if ping.APIVersion == "" {
		return fmt.Errorf("docker ping returned empty API version")
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// ExitError 容器内命令的非零退出
type ExitError struct {
	Container string
	Cmd       string
	Code      int
	Stderr    string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s in %s exited with code %d: %s", e.Cmd, e.Container, e.Code, strings.TrimSpace(e.Stderr))
}

// Exec 相当于 docker exec [-i] container cmd..., stdin/stdout 均可为 nil
func (c *Client) Exec(ctx context.Context, container string, cmd []string, stdin io.Reader, stdout io.Writer) error {
	created, err := c.inner.ContainerExecCreate(ctx, container, types.ExecConfig{
		Cmd:          cmd,
		AttachStdin:  stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("container %s not found", container)
		}
		return fmt.Errorf("exec create in %s: %w", container, err)
	}

	resp, err := c.inner.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return fmt.Errorf("exec attach in %s: %w", container, err)
	}
	defer resp.Close()

	if stdin != nil {
		go func() {
			_, _ = io.Copy(resp.Conn, stdin)
			_ = resp.CloseWrite()
		}()
	}
	if stdout == nil {
		stdout = io.Discard
	}
	var stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(stdout, &stderr, resp.Reader); err != nil {
		return fmt.Errorf("exec read output: %w", err)
	}

	inspect, err := c.inner.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return fmt.Errorf("exec inspect: %w", err)
	}
	if inspect.ExitCode != 0 {
		return &ExitError{Container: container, Cmd: cmd[0], Code: inspect.ExitCode, Stderr: stderr.String()}
	}
	return nil
}
