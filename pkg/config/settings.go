package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// DefaultVisibilityTimeout 一周, 覆盖一周以内的延时任务, 避免被提前重新投递给其他 worker
const DefaultVisibilityTimeout = 7 * 24 * time.Hour

// Settings 进程级配置, 在启动时解析一次, 之后只读
type Settings struct {
	Project      string
	Env          Env
	Debug        bool
	LogLevel     string
	AllowedHosts []string
	Redis        RedisConfig
	MySQL        MySQLConfig
	Sentry       SentryConfig
	Queue        QueueConfig
	History      HistoryConfig
	Test         TestConfig
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	// 以下字段在所有配置层合并后计算
	HostPort string
	URL      string
}

type MySQLConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DB       string
	Params   string
}

// DSN go-sql-driver 格式的连接串
func (m MySQLConfig) DSN() string {
	port := m.Port
	if port == 0 {
		port = 3306
	}
	params := m.Params
	if params == "" {
		params = "parseTime=true&loc=Local&charset=utf8mb4"
	}
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?%s", m.User, m.Password, net.JoinHostPort(m.Host, strconv.Itoa(port)), m.DB, params)
}

func (m MySQLConfig) DSNMasked() string {
	masked := m
	if masked.Password != "" {
		masked.Password = "******"
	}
	return masked.DSN()
}

type SentryConfig struct {
	DSN string
}

// QueueConfig 任务队列配置, 对应配置文件中的 queue 命名空间
type QueueConfig struct {
	BrokerURL         string
	Namespace         string
	DefaultQueue      string
	VisibilityTimeout time.Duration
	Concurrency       int
	// Imports 限定自动发现的任务名前缀, 为空时加载全部已注册任务
	Imports []string
}

type HistoryConfig struct {
	Enabled bool
}

type TestConfig struct {
	ReuseDB bool
}

// Defaults 基础配置的代码默认值
func Defaults() Settings {
	return Settings{
		Project:      "app",
		Env:          EnvDev,
		Debug:        true,
		LogLevel:     "debug",
		AllowedHosts: []string{"*"},
		Redis:        RedisConfig{Host: "redis", Port: 6379},
		MySQL:        MySQLConfig{Host: "mysql", Port: 3306, User: "root"},
		Queue: QueueConfig{
			Namespace:         "xdeploy",
			DefaultQueue:      "default",
			VisibilityTimeout: DefaultVisibilityTimeout,
			Concurrency:       4,
		},
	}
}

// derive 计算依赖于最终合并结果的字段
func (s *Settings) derive() {
	s.Redis.HostPort = net.JoinHostPort(s.Redis.Host, strconv.Itoa(s.Redis.Port))
	u := url.URL{Scheme: "redis", Host: s.Redis.HostPort}
	if s.Redis.Password != "" {
		u.User = url.UserPassword("", s.Redis.Password)
	}
	if s.Redis.DB != 0 {
		u.Path = "/" + strconv.Itoa(s.Redis.DB)
	}
	s.Redis.URL = u.String()
	if s.MySQL.DB == "" {
		s.MySQL.DB = s.Project
	}
	if s.Queue.BrokerURL == "" {
		s.Queue.BrokerURL = s.Redis.URL
	}
	if s.Queue.VisibilityTimeout <= 0 {
		s.Queue.VisibilityTimeout = DefaultVisibilityTimeout
	}
}
