package models

import (
	"fmt"
	"net"
	"strconv"
)

const (
	AuthPassword = "password"
	AuthKey      = "key"
	AuthAgent    = "agent"
)

// Identity 定义认证信息
type Identity struct {
	User       string `yaml:"user"`
	KeyPath    string `yaml:"key_path,omitempty"`
	Passphrase string `yaml:"passphrase,omitempty"` // 私钥密码
	Password   string `yaml:"password,omitempty"`   // 登录密码
	AuthType   string `yaml:"auth_type"`            // "key", "password", "agent"
}

// Host 一台部署目标机器的连接信息
type Host struct {
	Address     string `yaml:"address"` // IP 或 域名
	Port        int    `yaml:"port,omitempty"`
	IdentityRef string `yaml:"identity_ref,omitempty"`
	ProxyJump   string `yaml:"proxy_jump,omitempty"` // 指向另一个 Host 的名称
}

// Addr 返回 address:port, 端口缺省为 22
func (h Host) Addr() string {
	port := h.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(h.Address, strconv.Itoa(port))
}

// Target 一次配方执行作用的目标: 角色中的某台主机
type Target struct {
	Role     string
	Name     string
	Host     Host
	Identity Identity
}

func (t Target) String() string {
	if t.Role == "" {
		return t.Name
	}
	return fmt.Sprintf("%s(%s)", t.Name, t.Role)
}
