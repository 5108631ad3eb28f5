// Package main provides the cachepool CLI for inspecting and maintaining a
// cache described by a config file.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
