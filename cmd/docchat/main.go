// Package main 是 docchat 命令行工具的入口，用于在不启动 HTTP 服务的情况下运维文档库。
package main

import (
	"fmt"
	"os"

	"docchat-go/cmd/docchat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
