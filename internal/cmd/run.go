package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the 'stomper run' command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect defects and fix them",
		Long: `Run collects code-quality defects across the selected files, then fixes
them: one isolated git worktree per affected file, a bounded retry loop
against the configured AI coding assistant, validation, and integration
of successful fixes back into the project.

Configuration is loaded from stomper.toml (or pyproject.toml's
[tool.stomper] table) in the project root. Flags below override the
config file and STOMPER_* environment variables.

Examples:
  stomper run
  stomper run --selection changed
  stomper run --tools ruff,mypy --max-parallel-files 8
  stomper run --dry-run --selection directory --targets src/`,
		RunE: runRun,
	}

	addSessionFlags(cmd)
	cmd.Flags().Bool("dry-run", false, "Collect and report defects without fixing them")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	orch, err := buildSession(ctx, cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("dry-run") {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		orch.Config.DryRun = dryRun
	}

	result, err := orch.Run(ctx)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "fixed %d file(s), failed %d, skipped %d, %d error(s) resolved\n",
		len(result.SuccessfulFixes), len(result.FailedFixes), len(result.SkippedFiles), result.TotalErrorsFixed)

	if result.Status == "failed" {
		return fmt.Errorf("run: %d file(s) failed", len(result.FailedFixes))
	}
	return nil
}
