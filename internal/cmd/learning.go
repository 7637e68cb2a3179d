package cmd

import (
	"github.com/spf13/cobra"
)

// NewLearningCommand creates the 'stomper learning' parent command.
func NewLearningCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learning",
		Short: "Inspect and manage the adaptive prompting store",
		Long: `Commands for viewing and managing the learning store at
.stomper/learning_data.json: the per-(tool, code) fix-attempt history the
orchestrator uses to pick prompt strategy on retries.`,
	}

	cmd.AddCommand(NewLearningStatsCommand())
	cmd.AddCommand(NewLearningClearCommand())

	return cmd
}
