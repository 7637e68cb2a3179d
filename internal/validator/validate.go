// Package validator reruns diagnostics tools over changed files and
// classifies the outcome as fixed / remaining / introduced, per
// spec.md §4.4.
package validator

import (
	"context"
	"fmt"

	"github.com/stomper-go/stomper/internal/defect"
	"github.com/stomper-go/stomper/internal/diagnostics"
)

// Result is the outcome of one validation pass.
type Result struct {
	Passed              bool
	ErrorsFixed         int
	ErrorsRemaining     int
	NewErrorsIntroduced int
	Fixed               []defect.Defect
	Remaining           []defect.Defect
	NewErrors           []defect.Defect
	Summary             string
}

// Validator reruns a configured set of diagnostics tools restricted to a
// file set and diffs against the defects that existed before
// modification.
type Validator struct {
	Registry *diagnostics.Registry
	ToolIDs  []string
}

// New builds a Validator bound to registry and the given tool ids.
func New(registry *diagnostics.Registry, toolIDs []string) *Validator {
	return &Validator{Registry: registry, ToolIDs: toolIDs}
}

// Validate reruns the configured tools against files and compares the
// resulting defects to originalDefects, per spec.md §4.4's algorithm.
func (v *Validator) Validate(ctx context.Context, projectRoot string, files []string, originalDefects []defect.Defect) (Result, error) {
	newDefects, err := v.Registry.RunAll(ctx, v.ToolIDs, projectRoot, files)
	if err != nil {
		return Result{}, fmt.Errorf("rerun diagnostics: %w", err)
	}

	fixed, remaining, introduced := defect.Diff(originalDefects, newDefects)

	result := Result{
		ErrorsFixed:         len(fixed),
		ErrorsRemaining:     len(remaining),
		NewErrorsIntroduced: len(introduced),
		Fixed:               fixed,
		Remaining:           remaining,
		NewErrors:           introduced,
	}

	switch {
	case len(introduced) > 0:
		result.Passed = false
	case len(fixed) == 0 && len(remaining) > 0:
		result.Passed = false
	default:
		result.Passed = true
	}

	result.Summary = summarize(result)

	return result, nil
}

func summarize(r Result) string {
	status := "passed"
	if !r.Passed {
		status = "failed"
	}
	return fmt.Sprintf("validation %s: %d fixed, %d remaining, %d introduced",
		status, r.ErrorsFixed, r.ErrorsRemaining, r.NewErrorsIntroduced)
}
