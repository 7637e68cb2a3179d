// Package orchestrator drives one fix session from defect collection
// through bounded per-file fan-out to result aggregation, per spec.md
// §4.6. It is the top-level state machine wiring together worktree
// isolation, prompt construction, the AI assistant, validation, and the
// integration-locked apply-and-commit step.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stomper-go/stomper/internal/assistant"
	"github.com/stomper-go/stomper/internal/defect"
	"github.com/stomper-go/stomper/internal/diagnostics"
	"github.com/stomper-go/stomper/internal/fixapplier"
	"github.com/stomper-go/stomper/internal/learning"
	"github.com/stomper-go/stomper/internal/models"
	"github.com/stomper-go/stomper/internal/prompt"
	"github.com/stomper-go/stomper/internal/validator"
	"github.com/stomper-go/stomper/internal/worktree"
)

// Logger receives orchestrator progress and diagnostics.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// defaultTimeout bounds an assistant invocation when the session config
// leaves Timeout unset.
const defaultTimeout = 5 * time.Minute

// Orchestrator wires the session's collaborators together. All fields
// besides Config are collaborator seams, injectable for tests.
type Orchestrator struct {
	Config models.SessionConfig

	Registry      *diagnostics.Registry
	Worktree      *worktree.Manager
	Learning      *learning.Store
	PromptBuilder *prompt.Builder
	Assistant     *assistant.Runner
	Validator     *validator.Validator
	Applier       *fixapplier.Applier
	Logger        Logger

	// Version is embedded in each commit's "Fixed by" trailer, per
	// spec.md §6. New sets it to "dev" when given an empty version, so
	// commits then read "Fixed by: stomper vdev".
	Version string

	// SessionID disambiguates this session's worktrees and ephemeral
	// branches from every other session's, per spec.md §3's requirement
	// that a WorktreeHandle's id be unique per file and session: two
	// concurrent sessions (or a re-run after an orphaned worktree)
	// fixing the same file must never collide on the same branch name.
	SessionID string

	// integrationLock is the mutual-exclusion primitive shared by every
	// branch of this session, held only for apply-and-commit, per
	// spec.md §5's shared-resources clause.
	integrationLock sync.Mutex
}

// New builds an Orchestrator for one session. All collaborators must
// already be constructed against the same Config.ProjectRoot.
func New(cfg models.SessionConfig, reg *diagnostics.Registry, wt *worktree.Manager, store *learning.Store, pb *prompt.Builder, runner *assistant.Runner, v *validator.Validator, applier *fixapplier.Applier, logger Logger, version string) *Orchestrator {
	if version == "" {
		version = "dev"
	}
	return &Orchestrator{
		Config:        cfg,
		Registry:      reg,
		Worktree:      wt,
		Learning:      store,
		PromptBuilder: pb,
		Assistant:     runner,
		Validator:     v,
		Applier:       applier,
		Logger:        logger,
		Version:       version,
		SessionID:     uuid.NewString(),
	}
}

// Run executes the full session state machine: collect, fan out,
// aggregate. It returns a non-nil ExecutionResult whenever collection
// succeeds, even when every branch fails.
func (o *Orchestrator) Run(ctx context.Context) (*models.ExecutionResult, error) {
	start := time.Now()

	if err := o.Config.Validate(); err != nil {
		return nil, err
	}

	o.infof("collecting defects in %s", o.Config.ProjectRoot)
	defects, err := o.Registry.RunAll(ctx, o.Config.Tools, o.Config.ProjectRoot, o.Config.Targets)
	if err != nil {
		return nil, newFileError("", PhaseCollect, err)
	}

	defects = filterDefects(defects, o.Config)
	tasks := limitFiles(buildFileTasks(defects, o.Config.MaxRetries), o.Config.MaxFiles)

	if len(tasks) == 0 {
		o.infof("no defects found, nothing to fix")
		return models.NewExecutionResult(nil, time.Since(start)), nil
	}

	if o.Config.DryRun {
		o.infof("dry run: %d file(s) with defects, no changes will be made", len(tasks))
		return models.NewExecutionResult(dryRunResults(tasks), time.Since(start)), nil
	}

	results := o.fanOut(ctx, tasks)

	execResult := models.NewExecutionResult(results, time.Since(start))
	if !o.Config.ContinueOnError && len(execResult.FailedFixes) > 0 {
		execResult.Status = "failed"
	}
	o.infof("session complete: %d fixed, %d failed, %d skipped",
		len(execResult.SuccessfulFixes), len(execResult.FailedFixes), len(execResult.SkippedFiles))

	return execResult, nil
}

// taskOutcome pairs a fan-out branch's result with its position in the
// original task list, so results can be reassembled in input order
// regardless of completion order.
type taskOutcome struct {
	index  int
	result models.FileTaskResult
}

// fanOut schedules one branch per task, bounded by max_parallel_files
// concurrent branches, and waits for every branch to finish before
// returning — the synchronization barrier spec.md §5 requires of
// aggregation.
func (o *Orchestrator) fanOut(ctx context.Context, tasks []*models.FileTask) []models.FileTaskResult {
	maxConcurrency := o.Config.MaxParallelFiles
	if maxConcurrency > len(tasks) {
		maxConcurrency = len(tasks)
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	semaphore := make(chan struct{}, maxConcurrency)
	resultsCh := make(chan taskOutcome, len(tasks))
	var wg sync.WaitGroup

	// stopScheduling is set once a branch fails under
	// continue_on_error = false. It only gates new launches; in-flight
	// branches are left to finish their own cleanup, per spec.md §4.6's
	// error policy.
	var stopScheduling int32

launch:
	for i, task := range tasks {
		if atomic.LoadInt32(&stopScheduling) == 1 {
			resultsCh <- taskOutcome{index: i, result: skippedResult(task)}
			continue
		}

		select {
		case <-ctx.Done():
			resultsCh <- taskOutcome{index: i, result: skippedResult(task)}
			continue launch
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(index int, task *models.FileTask) {
			defer wg.Done()
			defer func() { <-semaphore }()

			result := o.processFileTask(ctx, task)

			if !o.Config.ContinueOnError && result.Outcome == models.OutcomeFailure {
				atomic.StoreInt32(&stopScheduling, 1)
			}

			select {
			case resultsCh <- taskOutcome{index: index, result: result}:
			case <-ctx.Done():
			}
		}(i, task)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	ordered := make([]models.FileTaskResult, len(tasks))
	seen := make([]bool, len(tasks))
	for outcome := range resultsCh {
		ordered[outcome.index] = outcome.result
		seen[outcome.index] = true
	}

	final := make([]models.FileTaskResult, len(tasks))
	for i := range tasks {
		if seen[i] {
			final[i] = ordered[i]
		} else {
			final[i] = skippedResult(tasks[i])
		}
	}
	return final
}

// processFileTask runs one file's full per-file state machine: create
// worktree, retry loop, tests, integration critical section, destroy
// worktree. The worktree is always destroyed before returning, on every
// exit path.
func (o *Orchestrator) processFileTask(ctx context.Context, task *models.FileTask) models.FileTaskResult {
	start := time.Now()
	task.Status = models.StatusInProgress
	task.StartedAt = start

	h, err := o.Worktree.Create(ctx, taskID(o.SessionID, task.File), "HEAD")
	if err != nil {
		task.Status = models.StatusFailed
		return models.FileTaskResult{
			File:      task.File,
			Outcome:   models.OutcomeFailure,
			Remaining: task.Defects,
			Err:       newFileError(task.File, PhaseWorktree, err),
			Duration:  time.Since(start),
		}
	}
	// Unconditional, on both success and failure branches, per
	// spec.md §4.6's worktree-destruction clause.
	defer o.Worktree.Destroy(context.Background(), h)

	outcome, fixed, remaining, attempts, procErr := o.retryLoop(ctx, task, h)
	task.Attempt = attempts
	task.Fixed = fixed

	if outcome != models.OutcomeSuccess {
		task.Status = models.StatusFailed
		if outcome == models.OutcomeSkipped {
			task.Status = models.StatusSkipped
		}
		return models.FileTaskResult{
			File:      task.File,
			Outcome:   outcome,
			Fixed:     fixed,
			Remaining: remaining,
			Attempts:  attempts,
			Err:       procErr,
			Duration:  time.Since(start),
		}
	}

	if testErr := o.runConfiguredTests(ctx, h); testErr != nil {
		task.Status = models.StatusFailed
		return models.FileTaskResult{
			File:      task.File,
			Outcome:   models.OutcomeFailure,
			Fixed:     fixed,
			Remaining: remaining,
			Attempts:  attempts,
			Err:       newFileError(task.File, PhaseValidate, testErr),
			Duration:  time.Since(start),
		}
	}

	result := o.integrate(ctx, task, h, fixed, remaining)
	result.Attempts = attempts
	result.Duration = time.Since(start)
	if result.Outcome == models.OutcomeSuccess {
		task.Status = models.StatusCompleted
	} else {
		task.Status = models.StatusFailed
	}
	task.CompletedAt = time.Now()
	return result
}

// retryLoop implements spec.md §4.6's per-file retry loop: strategy ->
// prompt -> assistant -> validate -> break-or-escalate.
func (o *Orchestrator) retryLoop(ctx context.Context, task *models.FileTask, h *worktree.Handle) (outcome models.FixOutcome, fixed, remaining []defect.Defect, attempts int, err error) {
	remaining = task.Defects
	var failedStrategies []learning.PromptStrategy

	for attempt := 0; attempt < task.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return models.OutcomeSkipped, fixed, remaining, attempt, nil
		default:
		}

		attempts = attempt + 1
		task.Attempt = attempt

		if len(remaining) == 0 {
			return models.OutcomeSuccess, fixed, remaining, attempts, nil
		}

		strategy := o.Learning.AdaptiveStrategy(remaining[0], attempt)
		if strategyFailed(failedStrategies, strategy.Verbosity) {
			if next, ok := o.Learning.FallbackStrategy(remaining[0], failedStrategies); ok {
				strategy.Verbosity = next
			}
		}

		promptText, buildErr := o.PromptBuilder.Build(remaining, h.Path, attempt, strategy)
		if buildErr != nil {
			o.recordOutcome(remaining, learning.OutcomeFailure, strategy.Verbosity, task.File)
			if attempt+1 == task.MaxAttempts {
				return models.OutcomeFailure, fixed, remaining, attempts, newFileError(task.File, PhaseAssistant, buildErr)
			}
			continue
		}

		timeout := o.Config.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}

		assistantResult, runErr := o.Assistant.Run(ctx, promptText, h.Path, timeout)
		if runErr != nil || assistantResult.ReturnCode != 0 {
			if runErr == nil {
				runErr = fmt.Errorf("assistant exited %d", assistantResult.ReturnCode)
			}
			o.recordOutcome(remaining, learning.OutcomeFailure, strategy.Verbosity, task.File)
			failedStrategies = append(failedStrategies, strategy.Verbosity)
			if attempt+1 == task.MaxAttempts {
				return models.OutcomeFailure, fixed, remaining, attempts, newFileError(task.File, PhaseAssistant, runErr)
			}
			continue
		}

		validation, valErr := o.Validator.Validate(ctx, h.Path, []string{task.File}, remaining)
		if valErr != nil {
			o.recordOutcome(remaining, learning.OutcomeFailure, strategy.Verbosity, task.File)
			if attempt+1 == task.MaxAttempts {
				return models.OutcomeFailure, fixed, remaining, attempts, newFileError(task.File, PhaseValidate, valErr)
			}
			continue
		}

		fixed = append(fixed, validation.Fixed...)
		shrank := len(validation.Remaining) < len(remaining)
		remaining = validation.Remaining

		attemptOutcome := learning.OutcomeFailure
		if shrank && validation.NewErrorsIntroduced == 0 {
			attemptOutcome = learning.OutcomeSuccess
		}
		o.recordOutcome(validation.Fixed, attemptOutcome, strategy.Verbosity, task.File)

		if len(remaining) == 0 {
			return models.OutcomeSuccess, fixed, remaining, attempts, nil
		}

		if attempt+1 == task.MaxAttempts {
			outcome := models.OutcomeFailure
			if len(fixed) > 0 {
				outcome = models.OutcomePartial
			}
			return outcome, fixed, remaining, attempts, nil
		}

		failedStrategies = append(failedStrategies, strategy.Verbosity)
	}

	return models.OutcomeFailure, fixed, remaining, attempts, nil
}

// runConfiguredTests runs the pytest adapter inside the worktree when
// configured to, per spec.md §4.6's "Tests" clause. A nil error does not
// imply tests ran: test_validation = none or no test adapter registered
// both mean "nothing to run".
func (o *Orchestrator) runConfiguredTests(ctx context.Context, h *worktree.Handle) error {
	if !o.Config.RunTests || o.Config.TestValidation == models.TestValidationNone {
		return nil
	}

	adapter, ok := o.Registry.Get("pytest")
	if !ok || !adapter.Available() {
		return nil
	}

	failures, err := adapter.Run(ctx, h.Path, nil)
	if err != nil {
		return err
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d test failure(s) in %s", len(failures), h.Path)
	}
	return nil
}

// integrate runs the integration critical section: snapshot the target
// file, acquire the integration lock, extract the worktree's diff and
// apply it (both inside Applier.Apply), commit, release the lock. The diff
// is extracted while the lock is held, not before it is acquired. The
// lock is never held across a diagnostics rerun, so integrate trusts the
// retry loop's own in-worktree validation (remaining = ∅) rather than
// re-validating the main tree under the lock. A snapshot taken before the
// lock lets a failed apply or commit be undone.
func (o *Orchestrator) integrate(ctx context.Context, task *models.FileTask, h *worktree.Handle, fixed, remaining []defect.Defect) models.FileTaskResult {
	status, err := o.Worktree.Status(ctx, h)
	if err != nil {
		return models.FileTaskResult{File: task.File, Outcome: models.OutcomeFailure, Fixed: fixed, Remaining: remaining, Err: newFileError(task.File, PhaseIntegration, err)}
	}
	if len(status.Modified) == 0 && len(status.Added) == 0 && len(status.Deleted) == 0 {
		// Nothing changed: treat as success with no-op integration.
		return models.FileTaskResult{File: task.File, Outcome: models.OutcomeSuccess, Fixed: fixed, Remaining: remaining}
	}

	targetFiles := []string{task.File}

	snap, backupErr := o.Applier.Backup(targetFiles)
	if backupErr != nil {
		return models.FileTaskResult{File: task.File, Outcome: models.OutcomeFailure, Fixed: fixed, Remaining: remaining, Err: newFileError(task.File, PhaseIntegration, backupErr)}
	}

	o.integrationLock.Lock()
	applyResult, applyErr := o.Applier.Apply(ctx, h, targetFiles)
	var commitErr error
	if applyErr == nil && applyResult.Success {
		commitErr = o.Worktree.Commit(ctx, o.Applier.ProjectRoot, fixapplier.CommitMessage(task.File, defectCodes(fixed), o.Version))
	}
	o.integrationLock.Unlock()

	if applyErr != nil || !applyResult.Success {
		o.Applier.Restore(snap)
		reason := applyResult.ErrorMessage
		if applyErr != nil {
			reason = applyErr.Error()
		}
		o.warnf("rolled back %s: apply failed: %s", task.File, reason)
		return models.FileTaskResult{File: task.File, Outcome: models.OutcomeFailure, Remaining: task.Defects, Err: newFileError(task.File, PhaseIntegration, fmt.Errorf("apply failed: %s", reason))}
	}
	if commitErr != nil {
		o.Applier.Restore(snap)
		o.warnf("rolled back %s: commit failed: %v", task.File, commitErr)
		return models.FileTaskResult{File: task.File, Outcome: models.OutcomeFailure, Remaining: task.Defects, Err: newFileError(task.File, PhaseIntegration, commitErr)}
	}

	o.Applier.Discard(snap)
	return models.FileTaskResult{File: task.File, Outcome: models.OutcomeSuccess, Fixed: fixed, Remaining: remaining}
}

// defectCodes extracts each defect's code in fix order, per spec.md §6's
// commit message format (one bullet per resolved defect, duplicates
// included so the bullet count matches the stated issue count).
func defectCodes(fixed []defect.Defect) []string {
	codes := make([]string, len(fixed))
	for i, d := range fixed {
		codes[i] = d.Code
	}
	return codes
}

func strategyFailed(failed []learning.PromptStrategy, s learning.PromptStrategy) bool {
	for _, f := range failed {
		if f == s {
			return true
		}
	}
	return false
}

func (o *Orchestrator) recordOutcome(defects []defect.Defect, outcome learning.AttemptOutcome, strategy learning.PromptStrategy, file string) {
	for _, d := range defects {
		o.Learning.RecordAttempt(d, outcome, strategy, file)
	}
}

// taskID builds a worktree/branch id unique per file and session: the
// session's uuid (shared by every file processed in this run) plus a
// path-slug of file, so two sessions touching the same file never derive
// the same worktree path or branch name.
func taskID(sessionID, file string) string {
	slug := strings.NewReplacer("/", "-", "\\", "-").Replace(file)
	return sessionID + "-" + slug
}

func (o *Orchestrator) infof(format string, args ...interface{}) {
	if o.Logger != nil {
		o.Logger.Infof(format, args...)
	}
}

func (o *Orchestrator) warnf(format string, args ...interface{}) {
	if o.Logger != nil {
		o.Logger.Warnf(format, args...)
	}
}
