package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log 在 slog.Logger 之上附带可动态调整的日志级别
type Log struct {
	*slog.LevelVar
	*slog.Logger
}

// Logger 全局日志实例, 默认输出到 stderr, 级别为 error
var Logger *Log

func init() {
	Logger = New(os.Stderr)
}

// New 创建一个写入 w 的文本日志实例
func New(w io.Writer) *Log {
	level := &slog.LevelVar{}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{Key: "timestamp", Value: slog.TimeValue(a.Value.Time())}
			}
			return a
		},
	}
	l := &Log{
		LevelVar: level,
		Logger:   slog.New(slog.NewTextHandler(w, opts)),
	}
	l.SetLogLevel("error")
	return l
}

// SetLogLevel 按名称设置级别, 无法识别的名称保持原级别并返回 false
func (l *Log) SetLogLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l.Set(slog.LevelDebug)
	case "info":
		l.Set(slog.LevelInfo)
	case "warn", "warning":
		l.Set(slog.LevelWarn)
	case "error":
		l.Set(slog.LevelError)
	default:
		return false
	}
	return true
}

// With 返回携带固定属性的子日志实例, 共享同一个级别
func (l *Log) With(args ...any) *Log {
	return &Log{LevelVar: l.LevelVar, Logger: l.Logger.With(args...)}
}

func (l *Log) Fatal(msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}
