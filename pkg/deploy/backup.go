package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wentf9/xdeploy/pkg/executor"
	"github.com/wentf9/xdeploy/pkg/models"
)

const (
	// LatestBackup 最近一次备份的固定别名
	LatestBackup    = "data.sql"
	backupTimestamp = "200601021504"
)

// Artifact 一次数据库备份: 带时间戳的文件及其 latest 副本. 备份文件从不自动清理
type Artifact struct {
	Path       string    `json:"path"`
	LatestPath string    `json:"latest_path"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
}

// BackupName 形如 data_201801021504.sql
func BackupName(t time.Time) string {
	return fmt.Sprintf("data_%s.sql", t.Format(backupTimestamp))
}

func init() {
	register(&Recipe{Name: "backup", Short: "备份数据库", Build: buildBackup})
	register(&Recipe{Name: "recovery", Short: "恢复数据库, 默认使用 backup/data.sql", Build: buildRecovery})
	register(&Recipe{Name: "migrate", Short: "先备份再执行数据库迁移", Build: buildMigrate})
	register(&Recipe{Name: "create-db", Short: "数据库不存在时创建", Build: buildCreateDB})
	register(&Recipe{Name: "drop-db", Short: "删除数据库", Build: buildDropDB})
	register(&Recipe{Name: "mysql-backup", Short: "在生产数据库主机上备份", Build: buildMySQLBackup})
}

// backupSteps 导出到带时间戳的文件, 然后覆盖 latest 副本
func (o *Orchestrator) backupSteps(plan *Plan) []Step {
	dir := o.Inventory.BackupDir()
	return []Step{
		{Name: "backup", Run: func(ctx context.Context) (string, error) {
			if o.Dumper == nil {
				return "", errors.New("no database dumper configured")
			}
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", err
			}
			now := o.now()
			path := filepath.Join(dir, BackupName(now))
			size, err := dumpTo(ctx, o.Dumper, path)
			if err != nil {
				return "", err
			}
			plan.Artifact = &Artifact{Path: path, Size: size, CreatedAt: now}
			return fmt.Sprintf("%s (%d bytes)", path, size), nil
		}},
		{Name: "backup-latest", After: []string{"backup"}, Run: func(ctx context.Context) (string, error) {
			latest := filepath.Join(dir, LatestBackup)
			if err := copyFile(plan.Artifact.Path, latest); err != nil {
				return "", err
			}
			plan.Artifact.LatestPath = latest
			return latest, nil
		}},
	}
}

// dumpTo 失败时删除不完整的文件
func dumpTo(ctx context.Context, d Dumper, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	if err := d.Dump(ctx, f); err != nil {
		f.Close()
		os.Remove(path)
		return 0, fmt.Errorf("dump database: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func buildBackup(ctx context.Context, o *Orchestrator, _ []models.Target, _ Args) (*Plan, error) {
	plan := &Plan{}
	return plan.Add(o.backupSteps(plan)...), nil
}

// buildMigrate 备份是迁移的前置条件: 备份失败时迁移不会执行
func buildMigrate(ctx context.Context, o *Orchestrator, _ []models.Target, args Args) (*Plan, error) {
	cmd := "migrate"
	if args.Version != "" {
		cmd = fmt.Sprintf("migrate %s %s", o.Inventory.Project, args.Version)
	}
	plan := &Plan{}
	plan.Add(o.backupSteps(plan)...)
	migrate := o.local("migrate", manage("web", cmd))
	migrate.After = []string{"backup", "backup-latest"}
	return plan.Add(migrate), nil
}

func quoteIdent(name string) string {
	return "`" + name + "`"
}

func (o *Orchestrator) dbName(args Args) string {
	if args.DB != "" {
		return args.DB
	}
	return o.Inventory.DB.Name
}

func (o *Orchestrator) sql(name, sql string) Step {
	return Step{Name: name, Run: func(ctx context.Context) (string, error) {
		if o.Dumper == nil {
			return "", errors.New("no database dumper configured")
		}
		return sql, o.Dumper.Exec(ctx, sql)
	}}
}

func buildCreateDB(ctx context.Context, o *Orchestrator, _ []models.Target, args Args) (*Plan, error) {
	return (&Plan{}).Add(o.sql("create-db", "CREATE DATABASE IF NOT EXISTS "+quoteIdent(o.dbName(args))+";")), nil
}

func buildDropDB(ctx context.Context, o *Orchestrator, _ []models.Target, args Args) (*Plan, error) {
	return (&Plan{}).Add(o.sql("drop-db", "DROP DATABASE IF EXISTS "+quoteIdent(o.dbName(args))+";")), nil
}

// buildRecovery 未指定文件时使用 latest 别名, 而不是最新的带时间戳文件
func buildRecovery(ctx context.Context, o *Orchestrator, _ []models.Target, args Args) (*Plan, error) {
	file := args.File
	if file == "" {
		file = filepath.Join(o.Inventory.BackupDir(), LatestBackup)
	}
	db := o.dbName(args)
	plan := &Plan{}
	plan.Add(Step{Name: "check-file", Run: func(ctx context.Context) (string, error) {
		info, err := os.Stat(file)
		if err != nil {
			return "", fmt.Errorf("backup file: %w", err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("backup file %s is a directory", file)
		}
		return fmt.Sprintf("%s (%d bytes)", file, info.Size()), nil
	}})
	plan.Add(o.sql("drop-db", "DROP DATABASE IF EXISTS "+quoteIdent(db)+";"))
	plan.Add(o.sql("create-db", "CREATE DATABASE IF NOT EXISTS "+quoteIdent(db)+";"))
	plan.Add(Step{Name: "restore", After: []string{"check-file", "create-db"}, Run: func(ctx context.Context) (string, error) {
		f, err := os.Open(file)
		if err != nil {
			return "", err
		}
		defer f.Close()
		return file, o.Dumper.Restore(ctx, f)
	}})
	return plan, nil
}

// buildMySQLBackup 在 mysql_host 上导出, 备份留在远程的 services 目录下
func buildMySQLBackup(ctx context.Context, o *Orchestrator, _ []models.Target, args Args) (*Plan, error) {
	inv := o.Inventory
	if inv.MySQLHost == "" {
		return nil, errors.New("mysql_host is not configured in the inventory")
	}
	host, identity, err := inv.Resolve(inv.MySQLHost)
	if err != nil {
		return nil, err
	}
	h := &hostSession{o: o, target: models.Target{Name: inv.MySQLHost, Host: host, Identity: identity}}

	name := BackupName(o.now())
	dump := fmt.Sprintf("docker exec %s sh -c %s > ./backup/%[3]s || { rm -f ./backup/%[3]s; exit 1; }",
		executor.Quote(inv.DB.Container),
		executor.Quote(fmt.Sprintf("mysqldump -u%s -p%s %s", inv.DB.User, inv.DB.Password, o.dbName(args))),
		name)

	in := func(step, cmd string) Step {
		return h.step(step, func(ctx context.Context) (string, error) {
			return h.exec.Run(ctx, executor.InDir(inv.RemoteServicesDir, cmd))
		})
	}
	latest := in("backup-latest", fmt.Sprintf("cp ./backup/%s ./backup/%s", name, LatestBackup))
	latest.After = []string{"backup"}
	return (&Plan{}).Add(
		h.connect(),
		in("mkdir", "mkdir -p backup"),
		in("backup", dump),
		latest,
	), nil
}
