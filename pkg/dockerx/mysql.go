package dockerx

import (
	"context"
	"io"
)

// MySQLContainer 运行中的 MySQL 容器及其凭据
type MySQLContainer struct {
	Client    *Client
	Container string
	User      string
	Password  string
	Database  string
}

// Dump 全量导出 Database 到 w
func (m *MySQLContainer) Dump(ctx context.Context, w io.Writer) error {
	return m.Client.Exec(ctx, m.Container, []string{"mysqldump", m.userFlag(), m.passFlag(), m.Database}, nil, w)
}

// Restore 把 r 中的 SQL 导入 Database
func (m *MySQLContainer) Restore(ctx context.Context, r io.Reader) error {
	return m.Client.Exec(ctx, m.Container, []string{"mysql", m.userFlag(), m.passFlag(), m.Database}, r, nil)
}

// Exec 执行一条不依赖当前库的 SQL, 例如 CREATE DATABASE
func (m *MySQLContainer) Exec(ctx context.Context, sql string) error {
	return m.Client.Exec(ctx, m.Container, []string{"mysql", m.userFlag(), m.passFlag(), "-e", sql}, nil, nil)
}

// DatabaseName 当前操作的库名
func (m *MySQLContainer) DatabaseName() string { return m.Database }

func (m *MySQLContainer) userFlag() string { return "-u" + m.User }
func (m *MySQLContainer) passFlag() string { return "-p" + m.Password }
