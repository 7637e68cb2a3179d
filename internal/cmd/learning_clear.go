package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stomper-go/stomper/internal/learning"
)

// NewLearningClearCommand creates the 'stomper learning clear' command.
func NewLearningClearCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Reset the learning store",
		Long: `Discard every recorded fix-attempt pattern, returning the store to an
empty state. Asks for confirmation unless --yes is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLearningClear(cmd, yes)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	addProjectFlag(cmd)

	return cmd
}

func runLearningClear(cmd *cobra.Command, yes bool) error {
	root, err := resolveProjectRoot(cmd)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	out := cmd.OutOrStdout()

	if !yes {
		fmt.Fprintf(out, "This will delete all learning data for %s.\n", root)
		if !confirmPrompt(out) {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	store, err := learning.NewStore(root, true, newConsoleLogger(cmd))
	if err != nil {
		return fmt.Errorf("open learning store: %w", err)
	}

	discarded, err := store.Reset()
	if err != nil {
		return fmt.Errorf("clear learning store: %w", err)
	}

	plural := "s"
	if discarded == 1 {
		plural = ""
	}
	fmt.Fprintf(out, "Cleared %d pattern%s.\n", discarded, plural)
	return nil
}

func confirmPrompt(out io.Writer) bool {
	fmt.Fprintf(out, "Continue? [y/N]: ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	response := strings.TrimSpace(strings.ToLower(scanner.Text()))
	return response == "y" || response == "yes"
}
