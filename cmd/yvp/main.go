// Package main is the single-binary entrypoint for YVP.
package main

import "github.com/yanzu-lab/yvp/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
