package global

import (
	"os"

	"golang.org/x/term"
)

var (
	IsTerminal bool = term.IsTerminal(int(os.Stdout.Fd())) //是否是交互式环境,false表示可能是管道或重定向
)
