package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/wentf9/xdeploy/cmd/utils"
	"github.com/wentf9/xdeploy/pkg/executor"
	"github.com/wentf9/xdeploy/pkg/models"
	"github.com/wentf9/xdeploy/pkg/runner"
	"github.com/wentf9/xdeploy/pkg/ssh"
)

type ExecOptions struct {
	ShellFile string
	Command   string
	TaskCount int
	Sudo      bool
}

func NewCmdExec() *cobra.Command {
	o := &ExecOptions{}
	cmd := &cobra.Command{
		Use:   "exec [flags] [command]",
		Short: "在所选角色的主机上执行命令",
		Long: `在所选角色的全部主机上并行执行命令。
用法示例:
xdeploy -R backend exec "docker ps"
xdeploy -R front1,front2 exec --shell script.sh
xdeploy -R backend exec --sudo "systemctl restart docker"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Complete(args)
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}

	cmd.Flags().StringVarP(&o.Command, "cmd", "c", "", "要执行的命令")
	cmd.Flags().StringVar(&o.ShellFile, "shell", "", "本地Shell脚本文件")
	cmd.Flags().IntVar(&o.TaskCount, "task", 3, "并行执行的主机数")
	cmd.Flags().BoolVarP(&o.Sudo, "sudo", "s", false, "使用sudo执行, 密码取自主机的认证信息")
	cmd.MarkFlagsMutuallyExclusive("cmd", "shell")
	return cmd
}

func (o *ExecOptions) Complete(args []string) {
	if o.Command == "" && len(args) > 0 {
		o.Command = strings.Join(args, " ")
	}
}

func (o *ExecOptions) Validate() error {
	if o.Command == "" && o.ShellFile == "" {
		return fmt.Errorf("必须指定要执行的命令或脚本")
	}
	if len(rootOpts.Roles) == 0 {
		return fmt.Errorf("必须通过 -R 指定目标角色")
	}
	if o.TaskCount <= 0 {
		o.TaskCount = 1
	}
	return nil
}

func (o *ExecOptions) Run(cmd *cobra.Command) error {
	execCmd := o.Command
	if o.ShellFile != "" {
		content, err := os.ReadFile(o.ShellFile)
		if err != nil {
			return fmt.Errorf("读取脚本文件失败: %v", err)
		}
		execCmd = "bash -s <<'XDEPLOY_EOF'\n" + string(content) + "\nXDEPLOY_EOF"
	}

	return forEachTarget(cmd, uint(o.TaskCount), func(ctx context.Context, client *ssh.Client, t models.Target) (string, error) {
		if o.Sudo {
			return client.RunWithSudo(ctx, execCmd, t.Identity.Password)
		}
		return client.Run(ctx, execCmd)
	})
}

func NewCmdUpload() *cobra.Command {
	var taskCount int
	var exclude []string
	cmd := &cobra.Command{
		Use:   "upload <local_path> <remote_dir>",
		Short: "通过 sftp 把本地文件或目录上传到所选角色的主机",
		Long: `通过 sftp 把本地文件或目录上传到所选角色的全部主机。
目录会上传为 <remote_dir>/<目录名>, 与 rsync 不带结尾斜杠时的行为一致。`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(rootOpts.Roles) == 0 {
				return fmt.Errorf("必须通过 -R 指定目标角色")
			}
			if _, err := os.Stat(args[0]); err != nil {
				return err
			}
			return forEachTarget(cmd, uint(max(taskCount, 1)), func(ctx context.Context, client *ssh.Client, t models.Target) (string, error) {
				e := executor.NewSSHExecutor(client)
				e.Exclude = utils.SplitList(exclude)
				if err := e.Copy(ctx, args[0], args[1]); err != nil {
					return "", err
				}
				return fmt.Sprintf("%s -> %s\n", args[0], args[1]), nil
			})
		},
	}
	cmd.Flags().IntVar(&taskCount, "task", 3, "并行上传的主机数")
	cmd.Flags().StringSliceVar(&exclude, "exclude", []string{".git"}, "上传目录时跳过的名称")
	return cmd
}

// forEachTarget 并行连接所选角色的主机并执行 fn, 任一主机失败时返回错误
func forEachTarget(cmd *cobra.Command, concurrency uint, fn func(ctx context.Context, client *ssh.Client, t models.Target) (string, error)) error {
	inv, err := rootOpts.Inventory()
	if err != nil {
		return err
	}
	targets, err := inv.Targets(rootOpts.Roles)
	if err != nil {
		return err
	}
	connector := ssh.NewConnector(inv)
	connector.KnownHosts = utils.GetKnownHostsPath()
	defer connector.CloseAll()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	var mu sync.Mutex
	failed := 0
	for r := range runner.RunParallel(targets, concurrency, func(t models.Target) error {
		var output string
		client, err := connector.Connect(ctx, t.Name)
		if err != nil {
			err = fmt.Errorf("连接失败: %w", err)
		} else {
			output, err = fn(ctx, client, t)
		}
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			fmt.Fprintf(out, "[ERROR] %s\n------------\n%s\n错误: %v\n", t.Name, output, err)
		} else {
			fmt.Fprintf(out, "[SUCCESS] %s\n------------\n%s\n", t.Name, output)
		}
		return err
	}) {
		if r.Error != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d/%d 个主机执行失败", failed, len(targets))
	}
	return nil
}
