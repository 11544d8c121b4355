package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wentf9/xdeploy/pkg/utils/concurrent"
)

// Handler 任务处理函数, payload 为发送时的 JSON 参数
type Handler func(ctx context.Context, payload json.RawMessage) error

var registry = concurrent.NewMap[string, Handler](concurrent.HashString)

// Register 在任务包的 init 中注册任务, 重名会 panic
func Register(name string, h Handler) {
	if name == "" || h == nil {
		panic("queue: Register with empty name or nil handler")
	}
	if _, stored := registry.SetIfAbsent(name, h); !stored {
		panic(fmt.Sprintf("queue: task %q registered twice", name))
	}
}

// Registered 返回所有已注册的任务名
func Registered() []string {
	return concurrent.SortedKeys(registry)
}

func matchImports(name string, imports []string) bool {
	if len(imports) == 0 {
		return true
	}
	for _, prefix := range imports {
		if prefix == name || strings.HasPrefix(name, strings.TrimSuffix(prefix, ".")+".") {
			return true
		}
	}
	return false
}
