package ssh

import (
	"fmt"
	"net"
	"os"

	"github.com/wentf9/xdeploy/pkg/models"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// AuthMethod 定义获取 SSH 认证方法的接口
type AuthMethod interface {
	GetMethod() (ssh.AuthMethod, error)
}

// PasswordAuth 实现密码认证
type PasswordAuth struct {
	Password string
}

func (p *PasswordAuth) GetMethod() (ssh.AuthMethod, error) {
	if p.Password == "" {
		return nil, fmt.Errorf("auth type is password but password is empty")
	}
	return ssh.Password(p.Password), nil
}

// KeyAuth 实现私钥认证
type KeyAuth struct {
	Path       string
	Passphrase string
}

func (k *KeyAuth) GetMethod() (ssh.AuthMethod, error) {
	if k.Path == "" {
		return nil, fmt.Errorf("auth type is key but key_path is empty")
	}
	keyData, err := os.ReadFile(expandHomeDir(k.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	var signer ssh.Signer
	if k.Passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(k.Passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyData)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}

// AgentAuth 使用 SSH_AUTH_SOCK 指向的 ssh-agent
type AgentAuth struct {
	Socket string
}

func (a *AgentAuth) GetMethod() (ssh.AuthMethod, error) {
	sock := a.Socket
	if sock == "" {
		sock = os.Getenv("SSH_AUTH_SOCK")
	}
	if sock == "" {
		return nil, fmt.Errorf("auth type is agent but SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ssh-agent: %w", err)
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

// authFor 根据 Identity 选择认证方式
func authFor(id models.Identity) (AuthMethod, error) {
	switch id.AuthType {
	case models.AuthPassword:
		return &PasswordAuth{Password: id.Password}, nil
	case models.AuthKey:
		return &KeyAuth{Path: id.KeyPath, Passphrase: id.Passphrase}, nil
	case models.AuthAgent, "":
		return &AgentAuth{}, nil
	}
	return nil, fmt.Errorf("unsupported auth type: %s", id.AuthType)
}

// expandHomeDir 展开路径开头的 ~
func expandHomeDir(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return home + path[1:]
		}
	}
	return path
}
