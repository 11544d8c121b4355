package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wentf9/xdeploy/pkg/models"
	"golang.org/x/crypto/ssh"
)

type Client struct {
	sshClient *ssh.Client
	name      string
	host      models.Host
}

func NewClient(raw *ssh.Client, name string, host models.Host) *Client {
	return &Client{
		sshClient: raw,
		name:      name,
		host:      host,
	}
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.sshClient.Close()
}

// SSHClient 暴露底层的 ssh.Client (供 sftp 使用)
func (c *Client) SSHClient() *ssh.Client {
	return c.sshClient
}

func (c *Client) Name() string { return c.name }

func (c *Client) Host() models.Host { return c.host }

// Run 执行命令并返回合并后的 stdout/stderr
func (c *Client) Run(ctx context.Context, cmd string) (string, error) {
	return c.RunStream(ctx, cmd, nil)
}

// RunStream 与 Run 相同, 同时把输出实时写入 w (w 可为 nil)
func (c *Client) RunStream(ctx context.Context, cmd string, w io.Writer) (string, error) {
	session, err := c.sshClient.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	return startWithTimeout(ctx, session, cmd, w)
}

// RunWithSudo 执行 sudo 命令, 密码通过 stdin 注入
func (c *Client) RunWithSudo(ctx context.Context, command string, password string) (string, error) {
	session, err := c.sshClient.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	if password != "" {
		session.Stdin = strings.NewReader(password + "\n")
	}
	// -p '' 去掉提示符, 输出里不会混入 "Password:"
	return startWithTimeout(ctx, session, fmt.Sprintf("sudo -S -p '' %s", command), nil)
}

func startWithTimeout(ctx context.Context, session *ssh.Session, command string, stream io.Writer) (string, error) {
	var b bytes.Buffer
	var out io.Writer = &b
	if stream != nil {
		out = io.MultiWriter(&b, stream)
	}
	session.Stdout = out
	session.Stderr = out

	if err := session.Start(command); err != nil {
		return "", fmt.Errorf("failed to start command: %w", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			return b.String(), fmt.Errorf("failed to run command: %w", err)
		}
		return b.String(), nil
	case <-ctx.Done():
		if killErr := session.Signal(ssh.SIGKILL); killErr != nil {
			return b.String(), fmt.Errorf("failed to kill command after context done: %w", killErr)
		}
		return b.String(), ctx.Err()
	}
}
