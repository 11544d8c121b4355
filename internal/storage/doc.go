// Package storage 管理外部存储连接: MySQL (部署历史, GORM) 与 Redis (任务队列 broker).
package storage
