// Package models holds the session-scoped data types that flow between
// the orchestrator and its collaborators: FileTask, WorktreeHandle,
// FixOutcome, FileTaskResult, SessionConfig, and the aggregate
// ExecutionResult.
package models

import (
	"time"

	"github.com/stomper-go/stomper/internal/defect"
)

// TaskStatus is the lifecycle state of a FileTask.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusRetrying   TaskStatus = "retrying"
	StatusSkipped    TaskStatus = "skipped"
)

// FileTask is one unit of parallel work: a single file and the defects
// found in it at collection time. A FileTask is owned exclusively by the
// branch that processes it and is discarded after aggregation.
type FileTask struct {
	File        string
	Defects     []defect.Defect // initial snapshot
	Fixed       []defect.Defect // populated during processing
	Attempt     int
	MaxAttempts int
	Status      TaskStatus
	StartedAt   time.Time
	CompletedAt time.Time
}

// NewFileTask creates a FileTask at its initial pending state.
func NewFileTask(file string, defects []defect.Defect, maxAttempts int) *FileTask {
	return &FileTask{
		File:        file,
		Defects:     defects,
		MaxAttempts: maxAttempts,
		Status:      StatusPending,
	}
}

// WorktreeHandle identifies one isolated checkout. Its lifetime spans
// exactly one FileTask's processing.
type WorktreeHandle struct {
	ID           string
	Path         string
	BaseRevision string
	Branch       string
}

// FixOutcome classifies the result of attempting to fix a file.
type FixOutcome string

const (
	OutcomeSuccess FixOutcome = "success"
	OutcomeFailure FixOutcome = "failure"
	OutcomePartial FixOutcome = "partial"
	OutcomeSkipped FixOutcome = "skipped"
)

// FileTaskResult is what a fan-out branch reports back to the aggregator.
type FileTaskResult struct {
	File      string
	Outcome   FixOutcome
	Fixed     []defect.Defect
	Remaining []defect.Defect
	Attempts  int
	Err       error
	Duration  time.Duration
}

// ExecutionResult is the session-scoped aggregate the orchestrator returns.
type ExecutionResult struct {
	SuccessfulFixes  []string
	FailedFixes      []string
	SkippedFiles     []string
	TotalErrorsFixed int
	RemainingByFile  map[string][]defect.Defect
	Duration         time.Duration
	Status           string // "completed" or "failed"
}

// NewExecutionResult aggregates a slice of per-file results, mirroring
// spec §4.6's aggregation step: list-concat and integer-sum, plus a
// per-file map of the defects that remain.
func NewExecutionResult(results []FileTaskResult, duration time.Duration) *ExecutionResult {
	er := &ExecutionResult{
		RemainingByFile: make(map[string][]defect.Defect),
		Duration:        duration,
		Status:          "completed",
	}

	for _, r := range results {
		switch r.Outcome {
		case OutcomeSuccess, OutcomePartial:
			er.SuccessfulFixes = append(er.SuccessfulFixes, r.File)
		case OutcomeSkipped:
			er.SkippedFiles = append(er.SkippedFiles, r.File)
		default:
			er.FailedFixes = append(er.FailedFixes, r.File)
		}

		er.TotalErrorsFixed += len(r.Fixed)

		if len(r.Remaining) > 0 {
			er.RemainingByFile[r.File] = r.Remaining
		}
	}

	return er
}
