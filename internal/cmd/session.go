package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stomper-go/stomper/internal/assistant"
	"github.com/stomper-go/stomper/internal/config"
	"github.com/stomper-go/stomper/internal/diagnostics"
	"github.com/stomper-go/stomper/internal/discovery"
	"github.com/stomper-go/stomper/internal/fixapplier"
	"github.com/stomper-go/stomper/internal/learning"
	"github.com/stomper-go/stomper/internal/logger"
	"github.com/stomper-go/stomper/internal/orchestrator"
	"github.com/stomper-go/stomper/internal/prompt"
	"github.com/stomper-go/stomper/internal/validator"
	"github.com/stomper-go/stomper/internal/worktree"
)

// addProjectFlag adds the --project/-C flag every subcommand that
// resolves a project root needs.
func addProjectFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("project", "C", "", "Project root (default: current directory)")
}

// addSessionFlags adds the run/validate flags shared between the two
// commands; both load and resolve config identically and differ only in
// what they do with the result.
func addSessionFlags(cmd *cobra.Command) {
	addProjectFlag(cmd)
	cmd.Flags().StringSlice("tools", nil, "Diagnostics tools to run (ruff, mypy)")
	cmd.Flags().String("selection", "", "File selection mode: files, directory, glob, changed, staged, vs-branch")
	cmd.Flags().StringSlice("targets", nil, "Files, directories, or glob patterns to select, per --selection")
	cmd.Flags().String("base-branch", "", "Base branch for --selection=vs-branch")
	cmd.Flags().StringSlice("include", nil, "Glob patterns a file must match to be processed")
	cmd.Flags().StringSlice("exclude", nil, "Glob patterns that exclude a file from processing")
	cmd.Flags().Int("max-files", 0, "Maximum number of files to process (0 = unlimited)")
	cmd.Flags().String("error-type", "", "Restrict to a single defect code")
	cmd.Flags().StringSlice("ignore", nil, "Defect codes to ignore")
	cmd.Flags().Int("max-errors-per-iteration", 0, "Maximum defects collected for the session (0 = unlimited)")
	cmd.Flags().Bool("use-sandbox", false, "Recorded in the session config; the assistant always runs in a per-file git worktree whether or not this is set")
	cmd.Flags().Bool("run-tests", true, "Run the test suite in a file's worktree once its defects are fixed")
	cmd.Flags().Int("max-parallel-files", 0, "Maximum files processed concurrently")
	cmd.Flags().String("test-validation", "", "Test validation mode: full, quick, final, none (none skips the test run; the other three all run the whole suite)")
	cmd.Flags().Bool("continue-on-error", true, "Keep processing other files after a failure")
	cmd.Flags().Int("max-retries", 0, "Maximum fix attempts per file")
	cmd.Flags().String("processing-strategy", "", "Recorded in the session config (batch_errors, one_error_type, all_errors); every prompt includes all of a file's remaining defects whichever value is set")
	cmd.Flags().String("agent-name", "", "AI coding assistant binary to invoke")
	cmd.Flags().Duration("timeout", 0, "Per-attempt assistant timeout")
}

// flagsFromCmd builds a config.Flags from whichever of addSessionFlags's
// flags were actually set on cmd, leaving the rest nil so MergeFlags
// skips them.
func flagsFromCmd(cmd *cobra.Command) config.Flags {
	var f config.Flags
	changed := cmd.Flags().Changed

	if changed("tools") {
		v, _ := cmd.Flags().GetStringSlice("tools")
		f.Tools = &v
	}
	if changed("selection") {
		v, _ := cmd.Flags().GetString("selection")
		f.Selection = &v
	}
	if changed("targets") {
		v, _ := cmd.Flags().GetStringSlice("targets")
		f.Targets = &v
	}
	if changed("base-branch") {
		v, _ := cmd.Flags().GetString("base-branch")
		f.BaseBranch = &v
	}
	if changed("include") {
		v, _ := cmd.Flags().GetStringSlice("include")
		f.Include = &v
	}
	if changed("exclude") {
		v, _ := cmd.Flags().GetStringSlice("exclude")
		f.Exclude = &v
	}
	if changed("max-files") {
		v, _ := cmd.Flags().GetInt("max-files")
		f.MaxFiles = &v
	}
	if changed("error-type") {
		v, _ := cmd.Flags().GetString("error-type")
		f.ErrorType = &v
	}
	if changed("ignore") {
		v, _ := cmd.Flags().GetStringSlice("ignore")
		f.Ignore = &v
	}
	if changed("max-errors-per-iteration") {
		v, _ := cmd.Flags().GetInt("max-errors-per-iteration")
		f.MaxErrorsPerIteration = &v
	}
	if changed("use-sandbox") {
		v, _ := cmd.Flags().GetBool("use-sandbox")
		f.UseSandbox = &v
	}
	if changed("run-tests") {
		v, _ := cmd.Flags().GetBool("run-tests")
		f.RunTests = &v
	}
	if changed("max-parallel-files") {
		v, _ := cmd.Flags().GetInt("max-parallel-files")
		f.MaxParallelFiles = &v
	}
	if changed("test-validation") {
		v, _ := cmd.Flags().GetString("test-validation")
		f.TestValidation = &v
	}
	if changed("continue-on-error") {
		v, _ := cmd.Flags().GetBool("continue-on-error")
		f.ContinueOnError = &v
	}
	if changed("max-retries") {
		v, _ := cmd.Flags().GetInt("max-retries")
		f.MaxRetries = &v
	}
	if changed("processing-strategy") {
		v, _ := cmd.Flags().GetString("processing-strategy")
		f.ProcessingStrategy = &v
	}
	if changed("agent-name") {
		v, _ := cmd.Flags().GetString("agent-name")
		f.AgentName = &v
	}
	if changed("timeout") {
		v, _ := cmd.Flags().GetDuration("timeout")
		f.Timeout = &v
	}

	return f
}

// newConsoleLogger builds the shared console logger for a session. It
// satisfies orchestrator.Logger, worktree.Logger, config.Logger, and
// learning.Logger, all of which only need (some of) Infof/Warnf.
func newConsoleLogger(cmd *cobra.Command) *logger.ConsoleLogger {
	return logger.NewConsoleLogger(cmd.OutOrStdout(), "info")
}

// buildSession resolves a SessionConfig for cmd (project root, config
// file, environment, and CLI flags, in that precedence order), discovers
// the target file list, and wires every orchestrator collaborator
// against it.
func buildSession(ctx context.Context, cmd *cobra.Command) (*orchestrator.Orchestrator, error) {
	root, err := resolveProjectRoot(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	log := newConsoleLogger(cmd)

	cfg, err := config.Load(root, log)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	config.MergeFlags(&cfg, flagsFromCmd(cmd))

	scanner := discovery.NewScanner(cfg.ProjectRoot)
	files, err := scanner.Discover(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}
	cfg.Targets = files

	reg := diagnostics.NewDefaultRegistry()
	wt := worktree.NewManager(cfg.ProjectRoot, log)
	store, err := learning.NewStore(cfg.ProjectRoot, true, log)
	if err != nil {
		return nil, fmt.Errorf("open learning store: %w", err)
	}
	pb, err := prompt.NewBuilder()
	if err != nil {
		return nil, fmt.Errorf("build prompt template: %w", err)
	}
	runner := assistant.NewRunner(cfg.AgentName)
	v := validator.New(reg, cfg.Tools)
	applier := fixapplier.New(cfg.ProjectRoot, wt)

	return orchestrator.New(cfg, reg, wt, store, pb, runner, v, applier, log, Version), nil
}
