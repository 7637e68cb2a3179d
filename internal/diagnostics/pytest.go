package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/stomper-go/stomper/internal/defect"
)

// pytestReport mirrors the subset of pytest-json-report's schema this
// adapter needs.
type pytestReport struct {
	Tests []struct {
		NodeID  string `json:"nodeid"`
		Outcome string `json:"outcome"`
		Call    struct {
			LongRepr string `json:"longrepr"`
		} `json:"call"`
	} `json:"tests"`
}

// PytestAdapter wraps the pytest test runner via the pytest-json-report
// plugin, which writes its report to a file rather than stdout.
type PytestAdapter struct {
	runner CommandRunner
}

// NewPytestAdapter builds a PytestAdapter that invokes tools through runner.
func NewPytestAdapter(runner CommandRunner) *PytestAdapter {
	return &PytestAdapter{runner: runner}
}

func (a *PytestAdapter) ID() string { return "pytest" }

func (a *PytestAdapter) Available() bool {
	_, err := exec.LookPath("pytest")
	return err == nil
}

func (a *PytestAdapter) Run(ctx context.Context, projectRoot string, targetPaths []string) ([]defect.Defect, error) {
	reportPath := filepath.Join(os.TempDir(), fmt.Sprintf("stomper-pytest-report-%d.json", os.Getpid()))
	defer os.Remove(reportPath)

	args := append([]string{"--json-report", "--json-report-file=" + reportPath}, targetPaths...)

	out, exitCode, err := a.runner.Run(ctx, projectRoot, "pytest", args)
	if err != nil {
		return nil, fmt.Errorf("run pytest: %w", err)
	}
	// pytest exits 1 when tests fail; anything beyond "tests collected and some failed" is unexpected.
	if exitCode != 0 && exitCode != 1 {
		return nil, fmt.Errorf("pytest exited %d: %s", exitCode, out)
	}

	return parsePytestReport(reportPath)
}

// DiscoverConfig follows pytest's own discovery order: pytest.ini, then
// pyproject.toml, then tox.ini.
func (a *PytestAdapter) DiscoverConfig(projectRoot string) (string, bool) {
	for _, name := range []string{"pytest.ini", "pyproject.toml", "tox.ini"} {
		if path, ok := fileExists(projectRoot, name); ok {
			return path, true
		}
	}
	return "", false
}

func parsePytestReport(reportPath string) ([]defect.Defect, error) {
	raw, err := os.ReadFile(reportPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pytest report: %w", err)
	}

	var report pytestReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("parse pytest report: %w", err)
	}

	var defects []defect.Defect
	for _, test := range report.Tests {
		if test.Outcome != "failed" {
			continue
		}

		file := test.NodeID
		if idx := strings.Index(file, "::"); idx >= 0 {
			file = file[:idx]
		}

		message := fmt.Sprintf("Test failed: %s", test.NodeID)
		if test.Call.LongRepr != "" {
			message = test.Call.LongRepr
		}

		defects = append(defects, defect.Defect{
			Tool:     "pytest",
			File:     file,
			Line:     1,
			Code:     "TEST_FAILED",
			Message:  message,
			Severity: defect.SeverityError,
		})
	}

	return defects, nil
}
