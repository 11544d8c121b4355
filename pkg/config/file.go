package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// 配置文件模型: 所有字段都是指针, 只有文件里出现的键才会覆盖上一层
type fileModel struct {
	Project      *string      `yaml:"project"`
	Debug        *bool        `yaml:"debug"`
	LogLevel     *string      `yaml:"log_level"`
	AllowedHosts []string     `yaml:"allowed_hosts"`
	Redis        *fileRedis   `yaml:"redis"`
	MySQL        *fileMySQL   `yaml:"mysql"`
	Sentry       *fileSentry  `yaml:"sentry"`
	Queue        *fileQueue   `yaml:"queue"`
	History      *fileHistory `yaml:"history"`
}

type fileRedis struct {
	Host     *string `yaml:"host"`
	Port     *int    `yaml:"port"`
	Password *string `yaml:"password"`
	DB       *int    `yaml:"db"`
}

type fileMySQL struct {
	Host     *string `yaml:"host"`
	Port     *int    `yaml:"port"`
	User     *string `yaml:"user"`
	Password *string `yaml:"password"`
	DB       *string `yaml:"db"`
	Params   *string `yaml:"params"`
}

type fileSentry struct {
	DSN *string `yaml:"dsn"`
}

type fileQueue struct {
	BrokerURL         *string  `yaml:"broker_url"`
	Namespace         *string  `yaml:"namespace"`
	DefaultQueue      *string  `yaml:"default_queue"`
	VisibilityTimeout *string  `yaml:"visibility_timeout"`
	Concurrency       *int     `yaml:"concurrency"`
	Imports           []string `yaml:"imports"`

	visibility time.Duration
}

type fileHistory struct {
	Enabled *bool `yaml:"enabled"`
}

// parseFile 解码并校验一个配置层; 出错时不返回任何部分结果
func parseFile(data []byte) (*fileModel, error) {
	var fm fileModel
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fm); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := fm.validate(); err != nil {
		return nil, err
	}
	return &fm, nil
}

func (fm *fileModel) validate() error {
	if fm.Queue != nil && fm.Queue.VisibilityTimeout != nil {
		d, err := time.ParseDuration(*fm.Queue.VisibilityTimeout)
		if err != nil {
			return fmt.Errorf("queue.visibility_timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("queue.visibility_timeout must be positive")
		}
		fm.Queue.visibility = d
	}
	if fm.Queue != nil && fm.Queue.Concurrency != nil && *fm.Queue.Concurrency <= 0 {
		return fmt.Errorf("queue.concurrency must be positive")
	}
	return nil
}

func (fm *fileModel) apply(s *Settings) {
	set(&s.Project, fm.Project)
	set(&s.Debug, fm.Debug)
	set(&s.LogLevel, fm.LogLevel)
	if fm.AllowedHosts != nil {
		s.AllowedHosts = append([]string(nil), fm.AllowedHosts...)
	}
	if r := fm.Redis; r != nil {
		set(&s.Redis.Host, r.Host)
		set(&s.Redis.Port, r.Port)
		set(&s.Redis.Password, r.Password)
		set(&s.Redis.DB, r.DB)
	}
	if m := fm.MySQL; m != nil {
		set(&s.MySQL.Host, m.Host)
		set(&s.MySQL.Port, m.Port)
		set(&s.MySQL.User, m.User)
		set(&s.MySQL.Password, m.Password)
		set(&s.MySQL.DB, m.DB)
		set(&s.MySQL.Params, m.Params)
	}
	if fm.Sentry != nil {
		set(&s.Sentry.DSN, fm.Sentry.DSN)
	}
	if q := fm.Queue; q != nil {
		set(&s.Queue.BrokerURL, q.BrokerURL)
		set(&s.Queue.Namespace, q.Namespace)
		set(&s.Queue.DefaultQueue, q.DefaultQueue)
		set(&s.Queue.Concurrency, q.Concurrency)
		if q.VisibilityTimeout != nil {
			s.Queue.VisibilityTimeout = q.visibility
		}
		if q.Imports != nil {
			s.Queue.Imports = append([]string(nil), q.Imports...)
		}
	}
	if fm.History != nil {
		set(&s.History.Enabled, fm.History.Enabled)
	}
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
