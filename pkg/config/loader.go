package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/wentf9/xdeploy/pkg/logger"
)

const (
	BaseFile  = "settings.yaml"
	LocalFile = "settings.local.yaml"
)

// ErrBaseMissing 基础配置文件是必需的
var ErrBaseMissing = errors.New("base settings missing")

// LayerStatus 可选配置层的叠加结果
type LayerStatus int

const (
	LayerApplied LayerStatus = iota
	LayerAbsent
	LayerFailed
)

func (s LayerStatus) String() string {
	switch s {
	case LayerApplied:
		return "applied"
	case LayerAbsent:
		return "absent"
	case LayerFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome 记录一个配置层的处理结果
type Outcome struct {
	Layer  string
	Source string
	Status LayerStatus
	Err    error
}

type LoadOptions struct {
	// Dir 配置目录, 为空时使用当前目录
	Dir string
	// Env 显式指定环境, 为空时读取 ENV 环境变量
	Env string
	// Getenv 默认为 os.Getenv
	Getenv func(string) string
}

// Load 依次叠加 基础层 -> 环境层 -> 本地覆盖层, 后者覆盖前者.
// 基础层缺失或无法解析是致命错误; 可选层失败只记录日志并保留上一层的值.
func Load(opts LoadOptions) (*Settings, []Outcome, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	s := Defaults()
	var outcomes []Outcome

	basePath := filepath.Join(dir, BaseFile)
	data, err := os.ReadFile(basePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrBaseMissing, basePath)
		}
		return nil, nil, fmt.Errorf("read base settings: %w", err)
	}
	base, err := parseFile(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse base settings %s: %w", basePath, err)
	}
	base.apply(&s)
	outcomes = append(outcomes, Outcome{Layer: "base", Source: basePath, Status: LayerApplied})

	envName := opts.Env
	if envName == "" {
		envName = getenv("ENV")
	}
	env, err := ParseEnv(envName)
	if err != nil {
		return nil, nil, err
	}
	s.Env = env

	if build, ok := envLayers[env]; ok {
		fm := build()
		fm.apply(&s)
		outcomes = append(outcomes, Outcome{Layer: "env:" + string(env), Source: "builtin", Status: LayerApplied})
	}
	outcomes = append(outcomes, overlayFile(&s, "env-file", filepath.Join(dir, fmt.Sprintf("settings.%s.yaml", env))))
	outcomes = append(outcomes, overlayFile(&s, "local", filepath.Join(dir, LocalFile)))

	if v := getenv("REUSE_DB"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Test.ReuseDB = b
		}
	}

	s.derive()

	for _, o := range outcomes {
		switch o.Status {
		case LayerFailed:
			logger.Logger.Warn("settings overlay ignored", "layer", o.Layer, "source", o.Source, "err", o.Err)
		case LayerAbsent:
			logger.Logger.Debug("settings overlay absent", "layer", o.Layer, "source", o.Source)
		default:
			logger.Logger.Debug("settings overlay applied", "layer", o.Layer, "source", o.Source)
		}
	}
	return &s, outcomes, nil
}

func overlayFile(s *Settings, layer, path string) Outcome {
	o := Outcome{Layer: layer, Source: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			o.Status = LayerAbsent
			return o
		}
		o.Status, o.Err = LayerFailed, err
		return o
	}
	fm, err := parseFile(data)
	if err != nil {
		o.Status, o.Err = LayerFailed, err
		return o
	}
	fm.apply(s)
	o.Status = LayerApplied
	return o
}
