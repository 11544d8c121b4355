// Package deploy 实现按角色限定的部署配方: 代码同步, 容器服务重启,
// 数据库迁移以及备份/恢复. 每个配方在执行前先校验角色, 然后构建成有序的
// 步骤计划; 主机之间顺序执行, 任一步骤失败即终止.
package deploy

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/wentf9/xdeploy/pkg/config"
	"github.com/wentf9/xdeploy/pkg/executor"
	"github.com/wentf9/xdeploy/pkg/logger"
	"github.com/wentf9/xdeploy/pkg/models"
)

// Remotes 为目标主机打开远程执行器
type Remotes interface {
	Open(ctx context.Context, target models.Target) (executor.Executor, error)
}

// Syncer 维护本地部署用代码副本, 返回当前提交
type Syncer interface {
	CloneOrUpdate(ctx context.Context) (string, error)
}

// Dumper 通过数据库容器导出与导入
type Dumper interface {
	Dump(ctx context.Context, w io.Writer) error
	Restore(ctx context.Context, r io.Reader) error
	Exec(ctx context.Context, sql string) error
}

// Recorder 保存执行历史, 失败只记录日志
type Recorder interface {
	Record(ctx context.Context, report *Report) error
}

// Args 配方的可选参数
type Args struct {
	// Service deploy-code 使用的 compose 服务名
	Service string
	// Version migrate 的目标版本
	Version string
	// File recovery 使用的备份文件
	File string
	// Command manage 执行的命令
	Command string
	// Name create-app 的应用名
	Name string
	// DB create-db / drop-db 的库名, 默认为项目名
	DB       string
	Port     int
	Merge    bool
	Coverage bool
	ReuseDB  bool
}

// Orchestrator 持有执行配方需要的全部依赖
type Orchestrator struct {
	Inventory *config.Inventory
	// Local 在 Inventory.WorkDir 中执行本地命令
	Local    executor.Executor
	Remotes  Remotes
	Repo     Syncer
	Dumper   Dumper
	Recorder Recorder
	Out      io.Writer
	Now      func() time.Time
	// Probe check 配方使用的探测方式, 为空时只检查 TCP
	Probe Probe
	// ForceUnlock 加锁前先删除残留的部署锁
	ForceUnlock bool
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Recipe 一个命名的配方. Rule 为 nil 的配方不使用角色
type Recipe struct {
	Name  string
	Short string
	Rule  *RoleRule
	Build func(ctx context.Context, o *Orchestrator, targets []models.Target, args Args) (*Plan, error)
}

var recipes = map[string]*Recipe{}

func register(r *Recipe) {
	if _, dup := recipes[r.Name]; dup {
		panic("deploy: duplicate recipe " + r.Name)
	}
	recipes[r.Name] = r
}

// Lookup 按名称查找配方
func Lookup(name string) (*Recipe, bool) {
	r, ok := recipes[name]
	return r, ok
}

// Recipes 按名称排序返回全部配方
func Recipes() []*Recipe {
	out := make([]*Recipe, 0, len(recipes))
	for _, r := range recipes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run 校验角色, 构建计划并执行. 角色不匹配时不会调用任何执行器
func (o *Orchestrator) Run(ctx context.Context, name string, roles []string, args Args) (*Report, error) {
	recipe, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecipe, name)
	}

	var targets []models.Target
	if recipe.Rule != nil {
		if err := recipe.Rule.Validate(name, roles); err != nil {
			return nil, err
		}
		var err error
		if targets, err = o.Inventory.Targets(roles); err != nil {
			return nil, err
		}
	} else if len(roles) > 0 {
		logger.Logger.Debug("roles ignored by local recipe", "recipe", name, "roles", roles)
	}

	plan, err := recipe.Build(ctx, o, targets, args)
	if err != nil {
		return nil, err
	}
	plan.Recipe = name
	plan.Out = o.Out
	plan.Now = o.Now

	report, runErr := plan.Execute(ctx)
	report.Roles = roles
	if o.Recorder != nil {
		if err := o.Recorder.Record(context.WithoutCancel(ctx), report); err != nil {
			logger.Logger.Warn("failed to record deployment", "recipe", name, "err", err)
		}
	}
	return report, runErr
}

func (o *Orchestrator) local(name string, cmd string) Step {
	return Step{Name: name, Run: func(ctx context.Context) (string, error) {
		return o.Local.Run(ctx, cmd)
	}}
}
