package diagnostics

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/stomper-go/stomper/internal/defect"
)

// MypyAdapter wraps the mypy type checker. Unlike ruff, mypy's
// human-readable text output is parsed line by line rather than as JSON.
type MypyAdapter struct {
	runner CommandRunner
}

// NewMypyAdapter builds a MypyAdapter that invokes tools through runner.
func NewMypyAdapter(runner CommandRunner) *MypyAdapter {
	return &MypyAdapter{runner: runner}
}

func (a *MypyAdapter) ID() string { return "mypy" }

func (a *MypyAdapter) Available() bool {
	_, err := exec.LookPath("mypy")
	return err == nil
}

func (a *MypyAdapter) Run(ctx context.Context, projectRoot string, targetPaths []string) ([]defect.Defect, error) {
	args := append([]string{"--show-error-codes"}, targetPaths...)

	out, exitCode, err := a.runner.Run(ctx, projectRoot, "mypy", args)
	if err != nil {
		return nil, fmt.Errorf("run mypy: %w", err)
	}
	// mypy exits 1 when it finds errors.
	if exitCode != 0 && exitCode != 1 {
		return nil, fmt.Errorf("mypy exited %d: %s", exitCode, out)
	}

	return parseMypyOutput(out), nil
}

// DiscoverConfig follows mypy's own discovery order: mypy.ini, .mypy.ini,
// setup.cfg's [mypy] section, then pyproject.toml's [tool.mypy] table.
func (a *MypyAdapter) DiscoverConfig(projectRoot string) (string, bool) {
	for _, name := range []string{"mypy.ini", ".mypy.ini"} {
		if path, ok := fileExists(projectRoot, name); ok {
			return path, true
		}
	}
	if path, ok := fileExists(projectRoot, "setup.cfg"); ok {
		if data, err := os.ReadFile(path); err == nil && strings.Contains(string(data), "[mypy]") {
			return path, true
		}
	}
	if path, ok := pyprojectHasTable(projectRoot, "mypy"); ok {
		return path, true
	}
	return "", false
}

// parseMypyOutput parses lines shaped like:
//
//	file.py:10: error: Incompatible types [assignment]
func parseMypyOutput(out string) []defect.Defect {
	var defects []defect.Defect

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if !strings.Contains(line, "error:") {
			continue
		}

		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 3 {
			continue
		}

		file := strings.TrimSpace(parts[0])
		if file == "" {
			continue
		}

		lineNum, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			lineNum = 1
		}

		rest := strings.TrimSpace(parts[2])
		message := rest
		if idx := strings.Index(rest, "error:"); idx >= 0 {
			message = strings.TrimSpace(rest[idx+len("error:"):])
		}

		code := "unknown"
		if strings.HasSuffix(message, "]") {
			if start := strings.LastIndex(message, "["); start >= 0 {
				code = message[start+1 : len(message)-1]
				message = strings.TrimSpace(message[:start])
			}
		}

		defects = append(defects, defect.Defect{
			Tool:     "mypy",
			File:     file,
			Line:     lineNum,
			Code:     code,
			Message:  message,
			Severity: defect.SeverityError,
		})
	}

	return defects
}
