package deploy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wentf9/xdeploy/pkg/models"
)

func TestRoleMismatchHasNoSideEffects(t *testing.T) {
	cases := map[string][]string{
		"deploy-test":    {"backend"},
		"deploy-backend": {"backend", "front1"},
		"deploy-front":   {"front1", "test"},
		"deploy-code":    nil,
		"check":          {},
	}
	for recipe, roles := range cases {
		t.Run(recipe, func(t *testing.T) {
			h := newHarness(t.TempDir())
			_, err := h.o.Run(context.Background(), recipe, roles, Args{})
			require.ErrorIs(t, err, ErrRoleMismatch)
			require.Empty(t, h.ev.all())
			require.Empty(t, h.remotes.opened)
			require.Zero(t, h.repo.calls)
			require.Empty(t, h.recorder.reports)
		})
	}
}

func TestUnknownRecipe(t *testing.T) {
	h := newHarness(t.TempDir())
	_, err := h.o.Run(context.Background(), "nope", nil, Args{})
	require.ErrorIs(t, err, ErrUnknownRecipe)
}

func TestDeployBackendSequence(t *testing.T) {
	h := newHarness(t.TempDir())
	report, err := h.o.Run(context.Background(), "deploy-backend", []string{"backend"}, Args{})
	require.NoError(t, err)
	require.Equal(t, []string{"b1", "b2"}, h.remotes.opened)

	var b1 []string
	for _, e := range h.ev.all() {
		if strings.HasPrefix(e, "b1: ") {
			b1 = append(b1, strings.TrimPrefix(strings.TrimPrefix(e, "b1: "), "cd /data/opt/shop && "))
		}
	}
	require.Len(t, b1, 16)
	require.Equal(t, "mkdir -p /data/deploy_app", b1[0])
	require.Contains(t, b1[1], "copy ")
	require.Contains(t, b1[2], LockName)
	require.Equal(t, []string{
		"git checkout -- .",
		"git pull --rebase",
		"docker-compose pull prod",
		"docker-compose run --rm prod python manage.py migrate",
		"docker-compose run --rm prod python manage.py collectstatic --noinput",
		"docker-compose stop prod",
		"docker-compose rm -f prod",
		"docker-compose up -d prod",
		"docker-compose pull web",
		"docker-compose stop celery",
		"docker-compose rm -f celery",
		"docker-compose up -d celery",
	}, b1[3:15])
	require.Equal(t, "rm -rf /data/opt/shop/"+LockName, b1[15])

	// 主机之间顺序执行: b2 在 b1 全部步骤之后才开始 (解锁步骤在最后统一执行)
	require.Less(t, h.ev.index("b1: cd /data/opt/shop && docker-compose up -d celery"), h.ev.index("b2: mkdir -p"))
	require.Equal(t, 0, h.ev.index("local: sync"))
	require.Len(t, h.recorder.reports, 1)
	require.Equal(t, []string{"backend"}, report.Roles)
}

func TestDeployTestCyclesWorker(t *testing.T) {
	h := newHarness(t.TempDir())
	_, err := h.o.Run(context.Background(), "deploy-test", []string{"test"}, Args{})
	require.NoError(t, err)
	require.NotEqual(t, -1, h.ev.index("docker-compose pull test"))
	require.NotEqual(t, -1, h.ev.index("docker-compose up -d test_celery"))
}

func TestDeployFrontSubset(t *testing.T) {
	h := newHarness(t.TempDir())
	_, err := h.o.Run(context.Background(), "deploy-front", []string{"front2"}, Args{})
	require.NoError(t, err)
	require.Equal(t, []string{"f2"}, h.remotes.opened)
	require.Equal(t, -1, h.ev.index("celery"))
}

func TestRemoteFailureAbortsRemainingSteps(t *testing.T) {
	h := newHarness(t.TempDir())
	h.remotes.exec = map[string]*fakeExec{"b1": {name: "b1", ev: h.ev, failOn: "manage.py migrate"}}

	report, err := h.o.Run(context.Background(), "deploy-backend", []string{"backend"}, Args{})
	require.ErrorIs(t, err, ErrStepFailed)
	require.Contains(t, err.Error(), "boom output")
	require.Equal(t, -1, h.ev.index("collectstatic"))
	require.Equal(t, -1, h.ev.index("docker-compose stop"))
	require.Equal(t, []string{"b1"}, h.remotes.opened)
	// 已拿到的锁仍然会释放
	require.NotEqual(t, -1, h.ev.index("b1: rm -rf /data/opt/shop/"+LockName))

	var skipped int
	for _, r := range report.Results {
		if r.Status == StatusSkipped {
			skipped++
		}
	}
	require.Positive(t, skipped)
	require.Len(t, h.recorder.reports, 1)
}

func TestLockHeldAborts(t *testing.T) {
	h := newHarness(t.TempDir())
	h.remotes.exec = map[string]*fakeExec{"t1": {name: "t1", ev: h.ev, lockReply: "held by alice@laptop 2018-01-02 15:00:00\n"}}

	_, err := h.o.Run(context.Background(), "deploy-test", []string{"test"}, Args{})
	require.ErrorIs(t, err, ErrLocked)
	require.Equal(t, -1, h.ev.index("git checkout"))
	require.Equal(t, -1, h.ev.index("rm -rf"))
}

func TestForceUnlock(t *testing.T) {
	h := newHarness(t.TempDir())
	h.o.ForceUnlock = true
	_, err := h.o.Run(context.Background(), "deploy-code", []string{"test"}, Args{})
	require.NoError(t, err)
	require.Less(t, h.ev.index("t1: rm -rf"), h.ev.index("t1: if mkdir"))
}

func TestDeployCodeUsesService(t *testing.T) {
	h := newHarness(t.TempDir())
	_, err := h.o.Run(context.Background(), "deploy-code", []string{"front1"}, Args{Service: "web"})
	require.NoError(t, err)
	require.NotEqual(t, -1, h.ev.index("docker-compose run --rm web python manage.py migrate"))
	require.NotEqual(t, -1, h.ev.index("touch deploy/uwsgi.ini"))
	require.Zero(t, h.repo.calls)
}

func TestMigrateBacksUpFirst(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(dir)
	report, err := h.o.Run(context.Background(), "migrate", nil, Args{Version: "0042"})
	require.NoError(t, err)

	dump := h.ev.index("db: dump")
	migrate := h.ev.index("local: docker-compose run --rm web python manage.py migrate shop 0042")
	require.NotEqual(t, -1, dump)
	require.Less(t, dump, migrate)

	stamped := filepath.Join(dir, "backup", "data_201801021504.sql")
	latest := filepath.Join(dir, "backup", LatestBackup)
	for _, p := range []string{stamped, latest} {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		require.Equal(t, "-- dump\n", string(data))
	}
	require.NotNil(t, report.Artifact)
	require.Equal(t, stamped, report.Artifact.Path)
	require.Equal(t, latest, report.Artifact.LatestPath)
}

func TestMigrateStopsWhenBackupFails(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(dir)
	h.dumper.dumpErr = os.ErrPermission

	_, err := h.o.Run(context.Background(), "migrate", nil, Args{})
	require.ErrorIs(t, err, ErrStepFailed)
	require.Equal(t, -1, h.ev.index("manage.py migrate"))

	entries, err := os.ReadDir(filepath.Join(dir, "backup"))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRecoveryDefaultsToLatestAlias(t *testing.T) {
	dir := t.TempDir()
	backup := filepath.Join(dir, "backup")
	require.NoError(t, os.MkdirAll(backup, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(backup, LatestBackup), []byte("latest"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(backup, "data_209901010000.sql"), []byte("newest"), 0644))

	h := newHarness(dir)
	_, err := h.o.Run(context.Background(), "recovery", nil, Args{})
	require.NoError(t, err)
	require.Equal(t, "latest", h.dumper.restored)
	require.Equal(t, []string{
		"DROP DATABASE IF EXISTS `shop`;",
		"CREATE DATABASE IF NOT EXISTS `shop`;",
	}, h.dumper.sql)
	require.Less(t, h.ev.index("CREATE DATABASE"), h.ev.index("db: restore"))
}

func TestRecoveryExplicitFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "old.sql")
	require.NoError(t, os.WriteFile(file, []byte("old"), 0644))

	h := newHarness(dir)
	_, err := h.o.Run(context.Background(), "recovery", nil, Args{File: file})
	require.NoError(t, err)
	require.Equal(t, "old", h.dumper.restored)
}

func TestRecoveryMissingFileDropsNothing(t *testing.T) {
	h := newHarness(t.TempDir())
	_, err := h.o.Run(context.Background(), "recovery", nil, Args{})
	require.ErrorIs(t, err, ErrStepFailed)
	require.Empty(t, h.dumper.sql)
}

func TestMySQLBackupRunsOnDatabaseHost(t *testing.T) {
	h := newHarness(t.TempDir())
	_, err := h.o.Run(context.Background(), "mysql-backup", nil, Args{})
	require.NoError(t, err)
	require.Equal(t, []string{"db1"}, h.remotes.opened)
	require.NotEqual(t, -1, h.ev.index("cd /data/dev-docker-services && docker exec product_mysql sh -c 'mysqldump -uroot -proot shop' > ./backup/data_201801021504.sql"))
	require.Less(t, h.ev.index("data_201801021504.sql ||"), h.ev.index("cp ./backup/data_201801021504.sql ./backup/data.sql"))
}

func TestLocalRecipes(t *testing.T) {
	cases := []struct {
		recipe string
		args   Args
		want   string
	}{
		{"runserver", Args{}, "docker-compose run --rm -p 8070:8070 web python manage.py runserver 0.0.0.0:8070"},
		{"makemigrations", Args{Merge: true}, "docker-compose run --rm web python manage.py makemigrations --merge"},
		{"manage", Args{Command: "check"}, "docker-compose run --rm web python manage.py check"},
		{"celery", Args{}, "docker-compose run --rm web celery -A shop worker -l info"},
		{"runtest", Args{ReuseDB: true}, "REUSE_DB=1 docker-compose run --rm web python manage.py test --nomigrations"},
		{"create-app", Args{Name: "orders"}, "docker-compose run --rm web django-admin.py startapp orders"},
	}
	for _, tc := range cases {
		t.Run(tc.recipe, func(t *testing.T) {
			h := newHarness(t.TempDir())
			_, err := h.o.Run(context.Background(), tc.recipe, []string{"ignored"}, tc.args)
			require.NoError(t, err)
			require.Equal(t, []string{"local: " + tc.want}, h.ev.all())
		})
	}
}

func TestLocalRecipeArgumentErrors(t *testing.T) {
	h := newHarness(t.TempDir())
	_, err := h.o.Run(context.Background(), "manage", nil, Args{})
	require.Error(t, err)
	require.Empty(t, h.ev.all())
}

func TestCreateAndDropDB(t *testing.T) {
	h := newHarness(t.TempDir())
	_, err := h.o.Run(context.Background(), "create-db", nil, Args{DB: "other"})
	require.NoError(t, err)
	_, err = h.o.Run(context.Background(), "drop-db", nil, Args{})
	require.NoError(t, err)
	require.Equal(t, []string{"CREATE DATABASE IF NOT EXISTS `other`;", "DROP DATABASE IF EXISTS `shop`;"}, h.dumper.sql)
}

func TestCheckRecipe(t *testing.T) {
	h := newHarness(t.TempDir())
	var mu sync.Mutex
	var probed []string
	h.o.Probe = func(ctx context.Context, tg models.Target) (string, error) {
		mu.Lock()
		probed = append(probed, tg.Name)
		mu.Unlock()
		if tg.Name == "b2" {
			return "", os.ErrDeadlineExceeded
		}
		return tg.Name + ": ok", nil
	}
	_, err := h.o.Run(context.Background(), "check", []string{"backend"}, Args{})
	require.ErrorIs(t, err, ErrStepFailed)
	require.Contains(t, err.Error(), "b2")
	require.ElementsMatch(t, []string{"b1", "b2"}, probed)
}

func TestRecipesListed(t *testing.T) {
	names := []string{}
	for _, r := range Recipes() {
		names = append(names, r.Name)
	}
	for _, want := range []string{"backup", "check", "deploy-backend", "deploy-code", "deploy-front", "deploy-test", "migrate", "mysql-backup", "recovery"} {
		require.Contains(t, names, want)
	}
}
