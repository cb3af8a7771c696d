// Package main implements the mockprobe CLI.
// It provides commands for discovering mockable dependencies of C modules,
// inspecting conditional compilation guards, and scaffolding test benches.
package main

import (
	"os"

	"github.com/mockprobe/mockprobe/cmd/mockprobe/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Flags().BoolP("version", "v", false, "Print version information")
	commands.RootCmd.SetVersionTemplate(`mockprobe version {{.Version}}
`)
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version = version + " (built " + buildTime + ")"
	}

	if err := commands.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
