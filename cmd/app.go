package cmd

import (
	"context"
	"io"
	"os"

	"github.com/wentf9/xdeploy/cmd/utils"
	"github.com/wentf9/xdeploy/global"
	"github.com/wentf9/xdeploy/internal/storage"
	"github.com/wentf9/xdeploy/pkg/deploy"
	"github.com/wentf9/xdeploy/pkg/dockerx"
	"github.com/wentf9/xdeploy/pkg/executor"
	"github.com/wentf9/xdeploy/pkg/logger"
	"github.com/wentf9/xdeploy/pkg/models"
	"github.com/wentf9/xdeploy/pkg/ssh"
	"gorm.io/gorm"
)

// sshRemotes 通过共享的 Connector 为每个目标打开 SSH 执行器
type sshRemotes struct {
	connector *ssh.Connector
	out       io.Writer
}

func (r *sshRemotes) Open(ctx context.Context, target models.Target) (executor.Executor, error) {
	client, err := r.connector.Connect(ctx, target.Name)
	if err != nil {
		return nil, err
	}
	e := executor.NewSSHExecutor(client)
	e.Out = r.out
	e.Exclude = []string{".git"}
	return e, nil
}

// newOrchestrator 按清单和配置组装编排器, 返回的 cleanup 关闭所有连接
func newOrchestrator(o *GlobalOptions, out io.Writer) (*deploy.Orchestrator, func(), error) {
	inv, err := o.Inventory()
	if err != nil {
		return nil, nil, err
	}

	env := o.Env
	var db *gorm.DB
	if s, err := o.Settings(); err != nil {
		logger.Logger.Debug("settings unavailable, running without history", "error", err)
	} else {
		env = string(s.Env)
		if s.History.Enabled {
			if db, err = storage.InitMySQL(s.MySQL); err != nil {
				logger.Logger.Warn("deploy history disabled", "error", err)
				db = nil
			}
		}
	}

	local := executor.NewLocalExecutor()
	if env != "" {
		local = local.WithEnv("ENV=" + env)
	}
	local.Dir = inv.WorkDir
	local.Stdin, local.Stdout, local.Stderr = os.Stdin, out, os.Stderr

	connector := ssh.NewConnector(inv)
	connector.KnownHosts = utils.GetKnownHostsPath()

	docker, err := dockerx.New("")
	if err != nil {
		connector.CloseAll()
		storage.CloseMySQL(db)
		return nil, nil, err
	}

	repo := &deploy.Repo{URL: inv.GitRegistry, Branch: inv.Branch, Dir: inv.ProjectDir()}
	if global.IsTerminal {
		repo.Progress = out
	}

	orch := &deploy.Orchestrator{
		Inventory: inv,
		Local:     local,
		Remotes:   &sshRemotes{connector: connector, out: out},
		Repo:      repo,
		Dumper: &dockerx.MySQLContainer{
			Client:    docker,
			Container: inv.DB.Container,
			User:      inv.DB.User,
			Password:  inv.DB.Password,
			Database:  inv.DB.Name,
		},
		Out:         out,
		ForceUnlock: o.ForceUnlock,
	}
	if db != nil {
		orch.Recorder = &storage.GormRecorder{DB: db, Operator: utils.GetCurrentUser()}
	}

	cleanup := func() {
		connector.CloseAll()
		_ = docker.Close()
		storage.CloseMySQL(db)
	}
	return orch, cleanup, nil
}
