package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/stomper-go/stomper/internal/defect"
)

// ruffViolation mirrors the subset of `ruff check --output-format=json`
// fields this adapter needs.
type ruffViolation struct {
	Filename string `json:"filename"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Fix      *struct {
		Applicability string `json:"applicability"`
	} `json:"fix"`
	Location struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	} `json:"location"`
}

// ruffSeverityByPrefix maps a ruff rule-code category prefix to a
// defect.Severity, following the tool's own category groupings.
var ruffSeverityByPrefix = map[string]defect.Severity{
	"E": defect.SeverityError,
	"F": defect.SeverityError,
	"W": defect.SeverityWarning,
	"B": defect.SeverityWarning,
	"C": defect.SeverityWarning,
	"D": defect.SeverityWarning,
	"N": defect.SeverityWarning,
	"UP": defect.SeverityWarning,
	"S":  defect.SeverityWarning,
	"SIM": defect.SeverityWarning,
	"RUF": defect.SeverityWarning,
}

// RuffAdapter wraps the ruff linter.
type RuffAdapter struct {
	runner CommandRunner
}

// NewRuffAdapter builds a RuffAdapter that invokes tools through runner.
func NewRuffAdapter(runner CommandRunner) *RuffAdapter {
	return &RuffAdapter{runner: runner}
}

func (a *RuffAdapter) ID() string { return "ruff" }

func (a *RuffAdapter) Available() bool {
	_, err := exec.LookPath("ruff")
	return err == nil
}

func (a *RuffAdapter) Run(ctx context.Context, projectRoot string, targetPaths []string) ([]defect.Defect, error) {
	args := append([]string{"check", "--output-format=json"}, targetPaths...)

	out, exitCode, err := a.runner.Run(ctx, projectRoot, "ruff", args)
	if err != nil {
		return nil, fmt.Errorf("run ruff: %w", err)
	}
	// ruff exits 1 when it finds violations; anything else is unexpected.
	if exitCode != 0 && exitCode != 1 {
		return nil, fmt.Errorf("ruff exited %d: %s", exitCode, out)
	}

	return parseRuffOutput(out)
}

func parseRuffOutput(out string) ([]defect.Defect, error) {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return nil, nil
	}

	var violations []ruffViolation
	if err := json.Unmarshal([]byte(trimmed), &violations); err != nil {
		return nil, fmt.Errorf("parse ruff json: %w", err)
	}

	defects := make([]defect.Defect, 0, len(violations))
	for _, v := range violations {
		defects = append(defects, defect.Defect{
			Tool:        "ruff",
			File:        v.Filename,
			Line:        intOrDefault(v.Location.Row, 1),
			Column:      v.Location.Column,
			Code:        v.Code,
			Message:     v.Message,
			Severity:    ruffSeverity(v.Code),
			AutoFixable: v.Fix != nil,
		})
	}

	return defects, nil
}

func ruffSeverity(code string) defect.Severity {
	for _, prefixLen := range []int{3, 2, 1} {
		if len(code) >= prefixLen {
			if sev, ok := ruffSeverityByPrefix[code[:prefixLen]]; ok {
				return sev
			}
		}
	}
	return defect.SeverityWarning
}

// DiscoverConfig follows ruff's own discovery order: pyproject.toml's
// [tool.ruff] table, then ruff.toml, .ruff.toml, ruff.ini, then setup.cfg's
// [tool.ruff] section.
func (a *RuffAdapter) DiscoverConfig(projectRoot string) (string, bool) {
	if path, ok := pyprojectHasTable(projectRoot, "ruff"); ok {
		return path, true
	}
	for _, name := range []string{"ruff.toml", ".ruff.toml", "ruff.ini"} {
		if path, ok := fileExists(projectRoot, name); ok {
			return path, true
		}
	}
	if path, ok := fileExists(projectRoot, "setup.cfg"); ok {
		if data, err := os.ReadFile(path); err == nil && strings.Contains(string(data), "[tool.ruff]") {
			return path, true
		}
	}
	return "", false
}

func intOrDefault(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
