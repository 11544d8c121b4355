package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/wentf9/xdeploy/cmd/utils"
	"github.com/wentf9/xdeploy/cmd/version"
	"github.com/wentf9/xdeploy/pkg/config"
	"github.com/wentf9/xdeploy/pkg/crypto"
	"github.com/wentf9/xdeploy/pkg/logger"
)

// GlobalOptions 所有子命令共享的参数, 配置和清单在首次使用时加载
type GlobalOptions struct {
	ConfigDir     string
	InventoryPath string
	Env           string
	Roles         []string
	Debug         bool
	ForceUnlock   bool

	settings  *config.Settings
	inventory *config.Inventory
	store     config.Store
}

func NewGlobalOptions() *GlobalOptions {
	return &GlobalOptions{ConfigDir: os.Getenv(utils.EnvConfigDir)}
}

// Settings 按层加载进程配置. 未指定 --debug 时使用配置中的日志级别
func (o *GlobalOptions) Settings() (*config.Settings, error) {
	if o.settings != nil {
		return o.settings, nil
	}
	dir := o.ConfigDir
	if dir == "" {
		dir = "."
	}
	s, _, err := config.Load(config.LoadOptions{Dir: dir, Env: o.Env})
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if !o.Debug {
		logger.Logger.SetLogLevel(s.LogLevel)
	}
	o.settings = s
	return s, nil
}

// Store 清单的读写, 敏感字段使用 ~/.xdeploy/key 加密
func (o *GlobalOptions) Store() (config.Store, error) {
	if o.store != nil {
		return o.store, nil
	}
	key, err := crypto.LoadOrGenerateKey(utils.GetKeyFilePath())
	if err != nil {
		return nil, err
	}
	path := o.InventoryPath
	if path == "" {
		path = config.InventoryFile
		if o.ConfigDir != "" {
			path = filepath.Join(o.ConfigDir, config.InventoryFile)
		}
	}
	o.store = config.NewDefaultStore(path, key)
	return o.store, nil
}

func (o *GlobalOptions) Inventory() (*config.Inventory, error) {
	if o.inventory != nil {
		return o.inventory, nil
	}
	store, err := o.Store()
	if err != nil {
		return nil, err
	}
	inv, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("加载部署清单失败: %w", err)
	}
	o.inventory = inv
	return inv, nil
}

var rootOpts = NewGlobalOptions()

func NewCmdRoot() *cobra.Command {
	var showVersion bool
	cmd := &cobra.Command{
		Use:   "xdeploy [command] [flags]",
		Short: "xdeploy 是一个按角色执行部署配方的运维工具",
		Long: `xdeploy 是一个按角色执行部署配方的运维工具,
通过 SSH 把代码同步到各角色主机并重启容器服务, 负责数据库的迁移、备份与恢复,
同时提供后台任务队列的 worker 与本地开发用的 docker-compose 包装命令。

用法示例:
xdeploy -R backend deploy-backend
xdeploy -R front1,front2 deploy-front
xdeploy migrate 0012
xdeploy --env pro queue worker`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			if showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), version.Short())
				return
			}
			cmd.Help()
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			rootOpts.Roles = utils.SplitList(rootOpts.Roles)
			if rootOpts.Debug {
				logger.Logger.SetLogLevel("debug")
				logger.Logger.Debug("调试模式已开启")
			}
		},
	}

	cmd.Flags().BoolVarP(&showVersion, "version", "v", false, "显示版本信息")
	cmd.PersistentFlags().StringVar(&rootOpts.ConfigDir, "config-dir", rootOpts.ConfigDir, "配置文件目录 (也可通过 "+utils.EnvConfigDir+" 指定)")
	cmd.PersistentFlags().StringVar(&rootOpts.InventoryPath, "inventory", "", "部署清单路径 (默认为配置目录下的 "+config.InventoryFile+")")
	cmd.PersistentFlags().StringVar(&rootOpts.Env, "env", "", "运行环境 dev|test|pro (默认读取 ENV 环境变量)")
	cmd.PersistentFlags().StringSliceVarP(&rootOpts.Roles, "roles", "R", nil, "目标角色, 多个角色用逗号分隔")
	cmd.PersistentFlags().BoolVar(&rootOpts.Debug, "debug", false, "开启调试模式")
	cmd.PersistentFlags().BoolVar(&rootOpts.ForceUnlock, "force-unlock", false, "部署前强制删除主机上残留的部署锁")

	cmd.AddGroup(
		&cobra.Group{ID: groupRemote, Title: "部署配方 (需要 -R 指定角色):"},
		&cobra.Group{ID: groupLocal, Title: "本地配方:"},
	)
	for _, c := range NewCmdRecipes() {
		cmd.AddCommand(c)
	}
	cmd.AddCommand(NewCmdExec())
	cmd.AddCommand(NewCmdUpload())
	cmd.AddCommand(NewCmdInventory())
	cmd.AddCommand(NewCmdQueue())
	cmd.AddCommand(NewCmdSettings())
	cmd.AddCommand(NewCmdHistory())
	cmd.AddCommand(NewCmdVersion())
	return cmd
}

func NewCmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示详细版本信息",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			version.PrintFullVersion(cmd.OutOrStdout())
		},
	}
}

// Execute 由 main.main 调用
func Execute() {
	if err := NewCmdRoot().Execute(); err != nil {
		os.Exit(1)
	}
}
