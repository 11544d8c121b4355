package executor

import (
	"context"
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"github.com/wentf9/xdeploy/global"
	"github.com/wentf9/xdeploy/pkg/logger"
	"github.com/wentf9/xdeploy/pkg/sftp"
	"github.com/wentf9/xdeploy/pkg/ssh"
)

// SSHExecutor 包装 ssh.Client 以满足 Executor 接口
type SSHExecutor struct {
	client *ssh.Client
	// Out 非空时实时输出远程命令的输出
	Out io.Writer
	// Exclude 上传目录时跳过的名称
	Exclude []string
}

func NewSSHExecutor(client *ssh.Client) *SSHExecutor {
	return &SSHExecutor{client: client}
}

func (e *SSHExecutor) Run(ctx context.Context, cmd string) (string, error) {
	logger.Logger.Debug("remote run", "host", e.client.Name(), "cmd", cmd)
	return e.client.RunStream(ctx, cmd, e.Out)
}

func (e *SSHExecutor) RunWithSudo(ctx context.Context, cmd, password string) (string, error) {
	return e.client.RunWithSudo(ctx, cmd, password)
}

// Copy 通过 sftp 上传, 终端下显示进度条
func (e *SSHExecutor) Copy(ctx context.Context, src, dst string) error {
	client, err := sftp.NewClient(e.client, sftp.WithExclude(e.Exclude...))
	if err != nil {
		return err
	}
	defer client.Close()

	var progress sftp.ProgressCallback
	if global.IsTerminal {
		total, err := sftp.LocalSize(src, e.Exclude)
		if err != nil {
			return err
		}
		bar := progressbar.DefaultBytes(total, fmt.Sprintf("uploading to %s", e.client.Name()))
		defer bar.Finish()
		progress = func(n int) { _ = bar.Add(n) }
	}
	if err := client.Upload(ctx, src, dst, progress); err != nil {
		return fmt.Errorf("upload %s to %s:%s: %w", src, e.client.Name(), dst, err)
	}
	return nil
}

func (e *SSHExecutor) Close() error {
	return e.client.Close()
}
