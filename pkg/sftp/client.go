package sftp

import (
	"fmt"

	"github.com/pkg/sftp"
	"github.com/wentf9/xdeploy/pkg/ssh"
)

// Option 定义配置函数的类型
type Option func(*Client)

func WithConcurrentFiles(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.config.ConcurrentFiles = n
		}
	}
}

func WithThreadsPerFile(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.config.ThreadsPerFile = n
		}
	}
}

func WithChunkSize(size int64) Option {
	return func(c *Client) {
		if size > 0 {
			c.config.ChunkSize = size
		}
	}
}

func WithExclude(names ...string) Option {
	return func(c *Client) {
		c.config.Exclude = append(c.config.Exclude, names...)
	}
}

// Client 包装了 sftp.Client, 复用 pkg/ssh 中已经建立好的连接 (包括跳板机隧道)
type Client struct {
	sftpClient *sftp.Client
	config     TransferConfig
}

func NewClient(sshCli *ssh.Client, opts ...Option) (*Client, error) {
	client, err := sftp.NewClient(sshCli.SSHClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create sftp subsystem: %w", err)
	}
	c := &Client{
		sftpClient: client,
		config:     DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close 关闭 SFTP 会话, 不会关闭底层的 SSH 连接
func (c *Client) Close() error {
	return c.sftpClient.Close()
}

// JoinPath 远程路径拼接 (SFTP 协议强制使用 forward slash)
func (c *Client) JoinPath(elem ...string) string {
	return c.sftpClient.Join(elem...)
}
