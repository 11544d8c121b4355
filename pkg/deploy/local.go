package deploy

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wentf9/xdeploy/pkg/executor"
	"github.com/wentf9/xdeploy/pkg/models"
)

// DefaultRunserverPort 开发服务器默认端口
const DefaultRunserverPort = 8070

// 本地开发用的 docker-compose 包装
func init() {
	register(&Recipe{Name: "runserver", Short: "启动开发服务器", Build: localBuild(func(o *Orchestrator, a Args) (string, error) {
		port := a.Port
		if port == 0 {
			port = DefaultRunserverPort
		}
		return fmt.Sprintf("docker-compose run --rm -p %[1]d:%[1]d web python manage.py runserver 0.0.0.0:%[1]d", port), nil
	})})
	register(&Recipe{Name: "manage", Short: "执行 manage.py 命令", Build: localBuild(func(o *Orchestrator, a Args) (string, error) {
		if a.Command == "" {
			return "", fmt.Errorf("manage requires a command")
		}
		return manage("web", a.Command), nil
	})})
	register(&Recipe{Name: "makemigrations", Short: "生成迁移文件", Build: localBuild(func(o *Orchestrator, a Args) (string, error) {
		if a.Merge {
			return manage("web", "makemigrations --merge"), nil
		}
		return manage("web", "makemigrations"), nil
	})})
	register(&Recipe{Name: "shell", Short: "进入 Django shell", Build: localBuild(func(o *Orchestrator, a Args) (string, error) {
		return manage("web", "shell"), nil
	})})
	register(&Recipe{Name: "create-app", Short: "创建 Django 应用", Build: localBuild(func(o *Orchestrator, a Args) (string, error) {
		if a.Name == "" {
			return "", fmt.Errorf("create-app requires a name")
		}
		return "docker-compose run --rm web django-admin.py startapp " + executor.Quote(a.Name), nil
	})})
	register(&Recipe{Name: "clean", Short: "清理 pyc 文件", Build: localBuild(func(o *Orchestrator, a Args) (string, error) {
		return `find . -name '*.pyc' -type f -print -exec rm -rf {} \;`, nil
	})})
	register(&Recipe{Name: "celery", Short: "启动 celery worker", Build: localBuild(func(o *Orchestrator, a Args) (string, error) {
		return "docker-compose run --rm web celery -A " + o.Inventory.Project + " worker -l info", nil
	})})
	register(&Recipe{Name: "beat", Short: "启动 celery beat", Build: localBuild(func(o *Orchestrator, a Args) (string, error) {
		return "docker-compose run --rm web celery -A " + o.Inventory.Project + " beat -l info", nil
	})})
	register(&Recipe{Name: "runtest", Short: "运行测试", Build: localBuild(func(o *Orchestrator, a Args) (string, error) {
		cmd := "test --nomigrations"
		if a.Coverage {
			cmd = "test -n --nomigrations --xunit-file=/code/coverage/xunit_report.xml --cover-html-dir=/code/coverage/html"
		}
		reuse := 0
		if a.ReuseDB {
			reuse = 1
		}
		return "REUSE_DB=" + strconv.Itoa(reuse) + " " + manage("web", cmd), nil
	})})
}

// localBuild 只有一个本地命令的配方
func localBuild(command func(o *Orchestrator, a Args) (string, error)) func(context.Context, *Orchestrator, []models.Target, Args) (*Plan, error) {
	return func(ctx context.Context, o *Orchestrator, _ []models.Target, a Args) (*Plan, error) {
		cmd, err := command(o, a)
		if err != nil {
			return nil, err
		}
		return (&Plan{}).Add(o.local("run", cmd)), nil
	}
}
