// Package main 提供 cdpoverride 命令行：将线上站点的指定资源替换为本地构建产物。
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
