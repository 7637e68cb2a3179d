package orchestrator

import (
	"fmt"
	"time"
)

// Phase names the stage of the per-file state machine an error occurred
// in, per spec.md §4.6.
type Phase int

const (
	PhaseCollect Phase = iota
	PhaseWorktree
	PhaseAssistant
	PhaseValidate
	PhaseIntegration
)

func (p Phase) String() string {
	switch p {
	case PhaseCollect:
		return "collect"
	case PhaseWorktree:
		return "worktree"
	case PhaseAssistant:
		return "assistant"
	case PhaseValidate:
		return "validate"
	case PhaseIntegration:
		return "integration"
	default:
		return "unknown"
	}
}

// FileError carries the phase and file a branch failed in, for logging
// and for the result's Err field.
type FileError struct {
	File      string
	Phase     Phase
	Err       error
	Timestamp time.Time
}

func newFileError(file string, phase Phase, err error) *FileError {
	return &FileError{File: file, Phase: phase, Err: err, Timestamp: time.Now()}
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.File, e.Phase, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
