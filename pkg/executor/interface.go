package executor

import (
	"context"
	"path"
	"strings"
)

type Executor interface {
	// Run 执行命令并返回合并后的输出
	Run(ctx context.Context, cmd string) (string, error)
	// Copy 把本地文件或目录复制到目标位置 (本地复制或通过 sftp 上传)
	Copy(ctx context.Context, src, dst string) error
}

// InDir 返回先切换到 dir 再执行 cmd 的命令行
func InDir(dir, cmd string) string {
	if dir == "" {
		return cmd
	}
	return "cd " + Quote(dir) + " && " + cmd
}

// Quote 单引号转义, 用于拼接 shell 命令
func Quote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:@=+,", r))
	}) == -1 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Join 远程路径拼接, 远程主机始终使用 /
func Join(elem ...string) string {
	return path.Join(elem...)
}
