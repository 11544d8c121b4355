package storage

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wentf9/xdeploy/pkg/config"
)

// InitMySQL 打开到 MySQL 的 GORM 连接, 并通过 AutoMigrate 确保表结构存在
func InitMySQL(cfg config.MySQLConfig) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	db, err := gorm.Open(mysql.Open(cfg.DSN()), gcfg)
	if err != nil {
		return nil, fmt.Errorf("open mysql %s: %w", cfg.DSNMasked(), err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping mysql %s: %w", cfg.DSNMasked(), err)
	}
	if err := db.AutoMigrate(&DeployRecord{}); err != nil {
		return nil, fmt.Errorf("migrate deploy_records: %w", err)
	}
	return db, nil
}

// CloseMySQL 关闭底层 sql.DB 连接
func CloseMySQL(db *gorm.DB) {
	if db == nil {
		return
	}
	s, err := db.DB()
	if err == nil && s != nil {
		_ = s.Close()
	}
}
