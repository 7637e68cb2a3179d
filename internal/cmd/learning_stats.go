package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stomper-go/stomper/internal/learning"
)

// NewLearningStatsCommand creates the 'stomper learning stats' command.
func NewLearningStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show learning store statistics",
		Long: `Display the learning store's overall success rate, total attempts, and
the most difficult and easiest defect patterns by historical fix
success rate.`,
		RunE: runLearningStats,
	}
	addProjectFlag(cmd)
	return cmd
}

func runLearningStats(cmd *cobra.Command, args []string) error {
	root, err := resolveProjectRoot(cmd)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	store, err := learning.NewStore(root, false, newConsoleLogger(cmd))
	if err != nil {
		return fmt.Errorf("open learning store: %w", err)
	}

	printLearningStats(cmd.OutOrStdout(), store.Statistics())
	return nil
}

func printLearningStats(w io.Writer, stats learning.Statistics) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	cyan.Fprintf(w, "\n=== Learning Statistics ===\n\n")

	if stats.TotalAttempts == 0 {
		fmt.Fprintf(w, "No recorded attempts.\n\n")
		return
	}

	fmt.Fprintf(w, "Total attempts: %d\n", stats.TotalAttempts)
	fmt.Fprintf(w, "Total successes: %d\n", stats.TotalSuccesses)
	fmt.Fprintf(w, "Tracked patterns: %d\n", stats.TotalPatterns)
	fmt.Fprintf(w, "Overall success rate: ")
	printRate(w, green, yellow, red, stats.OverallSuccessRate)
	fmt.Fprintf(w, "\n")
	if !stats.LastUpdated.IsZero() {
		fmt.Fprintf(w, "Last updated: %s\n", stats.LastUpdated.Format("2006-01-02 15:04:05"))
	}

	if len(stats.DifficultErrors) > 0 {
		fmt.Fprintf(w, "\n")
		cyan.Fprintf(w, "Difficult patterns:\n")
		for _, p := range stats.DifficultErrors {
			fmt.Fprintf(w, "  %s/%s: ", p.Tool, p.Code)
			printRate(w, green, yellow, red, p.SuccessRate()*100)
			fmt.Fprintf(w, " (%d/%d)\n", p.Successes, p.TotalAttempts)
		}
	}

	if len(stats.EasyErrors) > 0 {
		fmt.Fprintf(w, "\n")
		cyan.Fprintf(w, "Reliably-fixed patterns:\n")
		for _, p := range stats.EasyErrors {
			fmt.Fprintf(w, "  %s/%s: ", p.Tool, p.Code)
			printRate(w, green, yellow, red, p.SuccessRate()*100)
			fmt.Fprintf(w, " (%d/%d)\n", p.Successes, p.TotalAttempts)
		}
	}

	fmt.Fprintf(w, "\n")
}

func printRate(w io.Writer, green, yellow, red *color.Color, rate float64) {
	switch {
	case rate >= 70:
		green.Fprintf(w, "%.1f%%", rate)
	case rate >= 40:
		yellow.Fprintf(w, "%.1f%%", rate)
	default:
		red.Fprintf(w, "%.1f%%", rate)
	}
}
