package main

import "github.com/wentf9/xdeploy/cmd"

func main() {
	cmd.Execute()
}
