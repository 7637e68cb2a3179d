// Package main provides the CLI entry point for the stomper application.
package main

import (
	"fmt"
	"os"

	"github.com/stomper-go/stomper/internal/cmd"
)

// version is set at build time via -ldflags "-X main.version=...". It is
// threaded into cmd.Version before the root command is built so every
// subcommand (and each fix commit's "Fixed by" trailer) sees it.
var version = "dev"

func main() {
	cmd.Version = version

	rootCmd := cmd.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
