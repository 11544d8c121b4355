package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/wentf9/xdeploy/pkg/deploy"
)

// RecipeOptions 一个配方命令的参数
type RecipeOptions struct {
	Recipe *deploy.Recipe
	Args   deploy.Args
	Check  deploy.CheckOptions

	positional []string
}

// recipeUsage 配方的位置参数与专用 flags
type recipeUsage struct {
	use   string
	args  cobra.PositionalArgs
	flags func(cmd *cobra.Command, o *RecipeOptions)
	long  string
}

var recipeUsages = map[string]recipeUsage{
	"deploy-code": {
		flags: func(cmd *cobra.Command, o *RecipeOptions) {
			cmd.Flags().StringVar(&o.Args.Service, "service", "prod", "执行迁移所用的 compose 服务")
		},
	},
	"migrate":    {use: "[version]", args: cobra.MaximumNArgs(1), long: "执行迁移前总是先备份数据库, 备份失败时不会迁移。"},
	"recovery":   {use: "[file]", args: cobra.MaximumNArgs(1), long: "不指定文件时使用 backup/data.sql。恢复会先删除并重建数据库。"},
	"manage":     {use: "<command>...", args: cobra.MinimumNArgs(1)},
	"create-app": {use: "<name>", args: cobra.ExactArgs(1)},
	"runserver": {
		flags: func(cmd *cobra.Command, o *RecipeOptions) {
			cmd.Flags().IntVar(&o.Args.Port, "port", deploy.DefaultRunserverPort, "监听端口")
		},
	},
	"makemigrations": {
		flags: func(cmd *cobra.Command, o *RecipeOptions) {
			cmd.Flags().BoolVar(&o.Args.Merge, "merge", false, "合并冲突的迁移")
		},
	},
	"runtest": {
		flags: func(cmd *cobra.Command, o *RecipeOptions) {
			cmd.Flags().BoolVar(&o.Args.Coverage, "coverage", false, "生成覆盖率报告")
			cmd.Flags().BoolVar(&o.Args.ReuseDB, "reuse-db", false, "复用测试数据库 (默认取配置中的 test.reuse_db)")
		},
	},
	"create-db": {flags: dbFlag},
	"drop-db":   {flags: dbFlag},
	"check": {
		flags: func(cmd *cobra.Command, o *RecipeOptions) {
			cmd.Flags().BoolVar(&o.Check.ICMP, "icmp", false, "额外发送 ICMP ping")
			cmd.Flags().BoolVar(&o.Check.Privileged, "privileged", false, "使用 raw socket 发送 ICMP (需要 root)")
			cmd.Flags().DurationVar(&o.Check.Timeout, "timeout", 5*time.Second, "单个主机的超时时间")
		},
	},
}

func dbFlag(cmd *cobra.Command, o *RecipeOptions) {
	cmd.Flags().StringVar(&o.Args.DB, "db", "", "数据库名 (默认为清单中的数据库)")
}

// NewCmdRecipes 为每个已注册的配方生成一个子命令
func NewCmdRecipes() []*cobra.Command {
	var cmds []*cobra.Command
	for _, r := range deploy.Recipes() {
		cmds = append(cmds, NewCmdRecipe(r))
	}
	return cmds
}

func NewCmdRecipe(r *deploy.Recipe) *cobra.Command {
	o := &RecipeOptions{Recipe: r}
	usage := recipeUsages[r.Name]
	args := usage.args
	if args == nil {
		args = cobra.NoArgs
	}

	long := r.Short
	if r.Rule != nil {
		long += "\n目标角色: " + r.Rule.String() + ", 通过 -R/--roles 指定。"
	}
	if usage.long != "" {
		long += "\n" + usage.long
	}

	cmd := &cobra.Command{
		Use:     strings.TrimSpace(r.Name + " " + usage.use),
		Short:   r.Short,
		Long:    long,
		Args:    args,
		GroupID: recipeGroup(r),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Complete(cmd, args)
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}
	if usage.flags != nil {
		usage.flags(cmd, o)
	}
	return cmd
}

func recipeGroup(r *deploy.Recipe) string {
	if r.Rule != nil {
		return groupRemote
	}
	return groupLocal
}

const (
	groupRemote = "remote"
	groupLocal  = "local"
)

func (o *RecipeOptions) Complete(cmd *cobra.Command, args []string) {
	o.positional = args
	switch o.Recipe.Name {
	case "migrate":
		if len(args) > 0 {
			o.Args.Version = args[0]
		}
	case "recovery":
		if len(args) > 0 {
			o.Args.File = args[0]
		}
	case "manage":
		o.Args.Command = strings.Join(args, " ")
	case "create-app":
		o.Args.Name = args[0]
	case "runtest":
		if !cmd.Flags().Changed("reuse-db") {
			if s, err := rootOpts.Settings(); err == nil {
				o.Args.ReuseDB = s.Test.ReuseDB
			}
		}
	}
}

func (o *RecipeOptions) Validate() error {
	if o.Recipe.Rule != nil && len(rootOpts.Roles) == 0 {
		return fmt.Errorf("配方 %s 需要通过 -R 指定角色 (%s)", o.Recipe.Name, o.Recipe.Rule)
	}
	if o.Args.Port < 0 || o.Args.Port > 65535 {
		return fmt.Errorf("非法的端口: %d", o.Args.Port)
	}
	return nil
}

func (o *RecipeOptions) Run(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, cleanup, err := newOrchestrator(rootOpts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer cleanup()
	if o.Recipe.Name == "check" {
		orch.Probe = deploy.NetProbe(o.Check)
	}

	report, err := orch.Run(ctx, o.Recipe.Name, rootOpts.Roles, o.Args)
	if report != nil {
		printReport(cmd, report)
	}
	if err != nil {
		var roleErr *deploy.RoleError
		if errors.As(err, &roleErr) {
			return fmt.Errorf("角色不匹配: %w", err)
		}
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("已取消: %w", err)
		}
		return err
	}
	return nil
}

func printReport(cmd *cobra.Command, r *deploy.Report) {
	out := cmd.OutOrStdout()
	if r.Succeeded() {
		fmt.Fprintf(out, "\n%s 完成, 共 %d 个步骤, 用时 %v\n", r.Recipe, len(r.Results), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	} else {
		fmt.Fprintf(out, "\n%s 失败:\n", r.Recipe)
		for _, res := range r.Results {
			if res.Status == deploy.StatusFailed || res.Status == deploy.StatusSkipped {
				host := res.Host
				if host == "" {
					host = "local"
				}
				fmt.Fprintf(out, "  [%s] %s: %s %s\n", host, res.Name, res.Status, res.Err)
			}
		}
	}
	if r.Artifact != nil {
		fmt.Fprintf(out, "备份文件: %s (%d bytes)\n", r.Artifact.Path, r.Artifact.Size)
	}
}
