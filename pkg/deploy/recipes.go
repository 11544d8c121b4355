package deploy

import (
	"context"

	"github.com/wentf9/xdeploy/pkg/models"
)

// serviceDeploy 同步代码并在每台主机上重启服务, worker 非空时接着重启 worker
type serviceDeploy struct {
	service Cycle
	worker  *Cycle
}

func init() {
	register(&Recipe{
		Name:  "deploy-test",
		Short: "发布测试环境",
		Rule:  Exactly("test"),
		Build: serviceDeploy{
			service: Cycle{Service: "test", Pull: true},
			worker:  &Cycle{Service: "test_celery", Pull: true, PullService: "web"},
		}.build,
	})
	register(&Recipe{
		Name:  "deploy-front",
		Short: "发布前台服务",
		Rule:  SubsetOf("front1", "front2"),
		Build: serviceDeploy{
			service: Cycle{Service: "prod", Pull: true},
		}.build,
	})
	register(&Recipe{
		Name:  "deploy-backend",
		Short: "发布后台服务",
		Rule:  Exactly("backend"),
		Build: serviceDeploy{
			service: Cycle{Service: "prod", Pull: true},
			worker:  &Cycle{Service: "celery", Pull: true, PullService: "web"},
		}.build,
	})
	register(&Recipe{
		Name:  "deploy-code",
		Short: "在远程项目目录中更新代码并迁移, 由 uwsgi 重新加载",
		Rule:  AnyRole(),
		Build: buildDeployCode,
	})
}

func (d serviceDeploy) build(ctx context.Context, o *Orchestrator, targets []models.Target, args Args) (*Plan, error) {
	plan := &Plan{}
	plan.Add(Step{Name: "sync-code", Run: func(ctx context.Context) (string, error) {
		return o.Repo.CloneOrUpdate(ctx)
	}})

	for _, t := range targets {
		h := &hostSession{o: o, target: t}
		plan.Add(h.connect(), h.upload(), h.lock())
		plan.Add(h.updateSource()...)

		svc := d.service
		if svc.Pull {
			plan.Add(h.pull(svc))
			svc.Pull = false
		}
		plan.Add(h.migrate(svc.Service)...)
		plan.Add(h.cycle(svc)...)
		if d.worker != nil {
			plan.Add(h.cycle(*d.worker)...)
		}
		plan.Defer(h.unlock())
	}
	return plan, nil
}

func buildDeployCode(ctx context.Context, o *Orchestrator, targets []models.Target, args Args) (*Plan, error) {
	service := args.Service
	if service == "" {
		service = "prod"
	}
	plan := &Plan{}
	for _, t := range targets {
		h := &hostSession{o: o, target: t}
		plan.Add(h.connect(), h.lock())
		plan.Add(h.updateSource()...)
		plan.Add(h.migrate(service)...)
		plan.Add(h.remote("reload", "touch deploy/uwsgi.ini"))
		plan.Defer(h.unlock())
	}
	return plan, nil
}
