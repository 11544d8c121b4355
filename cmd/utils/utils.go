package utils

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"
)

const (
	// ConfigDirName 用户级配置目录, 保存加密密钥
	ConfigDirName = ".xdeploy"
	KeyFileName   = "key"
	// EnvConfigDir 指定配置文件目录的环境变量
	EnvConfigDir = "XDEPLOY_CONFIG_DIR"
)

func GetCurrentUser() string {
	currentUser, err := user.Current()
	if err != nil {
		return ""
	}
	return currentUser.Username
}

// GetKeyFilePath 返回 ~/.xdeploy/key
func GetKeyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(ConfigDirName, KeyFileName)
	}
	return filepath.Join(home, ConfigDirName, KeyFileName)
}

// GetKnownHostsPath 存在时返回 ~/.ssh/known_hosts, 否则返回空字符串
func GetKnownHostsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".ssh", "known_hosts")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// ReadPasswordFromTerminal 从终端安全地读取密码
func ReadPasswordFromTerminal(prompt string) (string, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // ReadPassword 不会打印换行符
	if err != nil {
		return "", err
	}
	return string(password), nil
}

// SplitList 拆分逗号分隔的列表, 去掉空白项
func SplitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// MaskSecret 把 s 中出现的 secret 替换为星号
func MaskSecret(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "******")
}
