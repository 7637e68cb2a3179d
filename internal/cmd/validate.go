package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/stomper-go/stomper/internal/defect"
)

// NewValidateCommand creates the 'stomper validate' command.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Report defects without fixing them",
		Long: `Validate collects defects across the selected files and reports them,
without creating worktrees, invoking the assistant, or changing anything.
It is equivalent to 'stomper run --dry-run', exposed as its own
subcommand for use in CI gates.`,
		RunE: runValidate,
	}

	addSessionFlags(cmd)

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	orch, err := buildSession(ctx, cmd)
	if err != nil {
		return err
	}
	orch.Config.DryRun = true

	result, err := orch.Run(ctx)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(result.RemainingByFile) == 0 {
		fmt.Fprintln(out, "no defects found")
		return nil
	}

	total := 0
	for _, file := range sortedKeys(result.RemainingByFile) {
		defects := result.RemainingByFile[file]
		total += len(defects)
		fmt.Fprintf(out, "%s (%d)\n", file, len(defects))
		for _, d := range defects {
			fmt.Fprintf(out, "  %s\n", formatDefect(d))
		}
	}
	fmt.Fprintf(out, "\n%d file(s), %d defect(s)\n", len(result.RemainingByFile), total)

	return fmt.Errorf("validate: %d defect(s) found", total)
}

func formatDefect(d defect.Defect) string {
	return fmt.Sprintf("%s:%d:%d %s %s", d.File, d.Line, d.Column, d.Code, d.Message)
}

func sortedKeys(m map[string][]defect.Defect) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
