package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for stomper.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stomper",
		Short: "Parallel quality-defect fix orchestrator",
		Long: `Stomper collects code-quality defects (lint and type-check findings),
fans out one isolated git worktree per affected file, drives an AI coding
assistant through a bounded retry loop per file, validates the result, and
integrates successful fixes back into the project under a single
serialization lock.

Configuration is loaded from stomper.toml, or a [tool.stomper] table in
pyproject.toml, in the project root. CLI flags override STOMPER_*
environment variables, which override the config file, which overrides
the built-in defaults.`,
		Version:      Version,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewLearningCommand())

	return cmd
}

// resolveProjectRoot resolves the --project flag, defaulting to the
// working directory the command was invoked from.
func resolveProjectRoot(cmd *cobra.Command) (string, error) {
	root, _ := cmd.Flags().GetString("project")
	if root != "" {
		return root, nil
	}
	return os.Getwd()
}
