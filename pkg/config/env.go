package config

import (
	"fmt"
	"strings"
)

// Env 部署阶段, 决定叠加哪一个环境配置层
type Env string

const (
	EnvDev  Env = "dev"
	EnvTest Env = "test"
	EnvPro  Env = "pro"
)

func ParseEnv(s string) (Env, error) {
	switch Env(strings.ToLower(strings.TrimSpace(s))) {
	case "", EnvDev:
		return EnvDev, nil
	case EnvTest:
		return EnvTest, nil
	case EnvPro, "prod":
		return EnvPro, nil
	}
	return "", fmt.Errorf("unknown env %q (expected dev, test or pro)", s)
}

// LayerBuilder 以代码形式给出的环境配置层
type LayerBuilder func() fileModel

// envLayers 环境到内置配置层的映射; dev 只使用基础层
var envLayers = map[Env]LayerBuilder{
	EnvTest: testLayer,
	EnvPro:  proLayer,
}

func testLayer() fileModel {
	return fileModel{
		Debug: ptr(false),
		Redis: &fileRedis{Host: ptr("redis"), Port: ptr(6379), Password: ptr(""), DB: ptr(0)},
		MySQL: &fileMySQL{Host: ptr("mysql"), Port: ptr(3306), User: ptr("root"), Password: ptr("")},
	}
}

// proLayer 只给出服务地址, 密码和 sentry.dsn 由 settings.pro.yaml 提供
func proLayer() fileModel {
	return fileModel{
		Debug:    ptr(false),
		LogLevel: ptr("info"),
		Redis:    &fileRedis{Host: ptr("redis"), Port: ptr(6379)},
		MySQL:    &fileMySQL{Host: ptr("mysql"), Port: ptr(3306), User: ptr("root")},
	}
}

func ptr[T any](v T) *T { return &v }
