package ssh

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/wentf9/xdeploy/pkg/logger"
	"github.com/wentf9/xdeploy/pkg/models"
	"github.com/wentf9/xdeploy/pkg/utils/concurrent"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/sync/singleflight"
)

const keepAliveInterval = 30 * time.Second

// Resolver 根据主机名称查找连接信息, 由部署清单实现
type Resolver interface {
	Resolve(name string) (models.Host, models.Identity, error)
}

// Connector 负责创建并缓存 SSH 连接
type Connector struct {
	Resolver Resolver
	// KnownHosts 非空时按 known_hosts 校验主机密钥
	KnownHosts string

	clients *concurrent.Map[string, *ssh.Client]
	sf      singleflight.Group
}

func NewConnector(r Resolver) *Connector {
	return &Connector{
		Resolver: r,
		clients:  concurrent.NewMap[string, *ssh.Client](concurrent.HashString),
	}
}

// Connect 根据主机名称建立 SSH 连接.
// 主机配置了 ProxyJump 时会递归连接跳板机; 并发调用同一主机只会拨号一次.
func (c *Connector) Connect(ctx context.Context, name string) (*Client, error) {
	host, identity, err := c.Resolver.Resolve(name)
	if err != nil {
		return nil, err
	}
	if cached, ok := c.clients.Get(name); ok {
		return NewClient(cached, name, host), nil
	}

	result, err, _ := c.sf.Do(name, func() (any, error) {
		if cached, ok := c.clients.Get(name); ok {
			return cached, nil
		}

		var dialer Dialer = &net.Dialer{Timeout: 10 * time.Second}
		if host.ProxyJump != "" {
			if host.ProxyJump == name {
				return nil, fmt.Errorf("host '%s' uses itself as jump host", name)
			}
			jump, err := c.Connect(ctx, host.ProxyJump)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to jump host '%s': %w", host.ProxyJump, err)
			}
			dialer = &SSHProxyDialer{Client: jump.SSHClient()}
		}

		sshConfig, err := c.buildSSHConfig(identity)
		if err != nil {
			return nil, fmt.Errorf("failed to build ssh config for '%s': %w", name, err)
		}

		addr := host.Addr()
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to dial '%s' (%s): %w", name, addr, err)
		}
		ncc, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("ssh handshake failed for '%s': %w", name, err)
		}
		raw := ssh.NewClient(ncc, chans, reqs)
		c.clients.Set(name, raw)
		StartKeepAlive(raw, keepAliveInterval, func(err error) {
			c.clients.Remove(name)
			logger.Logger.Warn("ssh keepalive failed", "host", name, "err", err)
		})
		logger.Logger.Debug("ssh connected", "host", name, "addr", addr, "user", identity.User)
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return NewClient(result.(*ssh.Client), name, host), nil
}

// CloseAll 关闭所有缓存的连接 (在程序退出前调用)
func (c *Connector) CloseAll() {
	c.clients.IterCb(func(name string, client *ssh.Client) bool {
		client.Close()
		return true
	})
	c.clients.Clear()
}

func (c *Connector) buildSSHConfig(id models.Identity) (*ssh.ClientConfig, error) {
	auth, err := authFor(id)
	if err != nil {
		return nil, err
	}
	method, err := auth.GetMethod()
	if err != nil {
		return nil, err
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if c.KnownHosts != "" {
		hostKey, err = knownhosts.New(expandHomeDir(c.KnownHosts))
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
	}
	return &ssh.ClientConfig{
		User:            id.User,
		Auth:            []ssh.AuthMethod{method},
		HostKeyCallback: hostKey,
		Timeout:         15 * time.Second,
	}, nil
}
