package diagnostics

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	output   string
	exitCode int
	err      error
	onRun    func(dir, name string, args []string)
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args []string) (string, int, error) {
	if f.onRun != nil {
		f.onRun(dir, name, args)
	}
	return f.output, f.exitCode, f.err
}

func TestRuffAdapter_ParsesViolations(t *testing.T) {
	runner := &fakeRunner{
		exitCode: 1,
		output: `[{"filename":"a.py","code":"E501","message":"line too long","location":{"row":5,"column":80},"fix":null}]`,
	}
	a := NewRuffAdapter(runner)

	defects, err := a.Run(context.Background(), "/proj", []string{"."})
	require.NoError(t, err)
	require.Len(t, defects, 1)
	assert.Equal(t, "ruff", defects[0].Tool)
	assert.Equal(t, "E501", defects[0].Code)
	assert.Equal(t, 5, defects[0].Line)
	assert.False(t, defects[0].AutoFixable)
}

func TestRuffAdapter_emptyOutput(t *testing.T) {
	runner := &fakeRunner{exitCode: 0, output: ""}
	a := NewRuffAdapter(runner)

	defects, err := a.Run(context.Background(), "/proj", []string{"."})
	require.NoError(t, err)
	assert.Empty(t, defects)
}

func TestRuffAdapter_unexpectedExitCode(t *testing.T) {
	runner := &fakeRunner{exitCode: 2, output: "boom"}
	a := NewRuffAdapter(runner)

	_, err := a.Run(context.Background(), "/proj", []string{"."})
	assert.Error(t, err)
}

func TestMypyAdapter_ParsesTextOutput(t *testing.T) {
	runner := &fakeRunner{
		exitCode: 1,
		output:   "src/file.py:10: error: Incompatible types [assignment]\n",
	}
	a := NewMypyAdapter(runner)

	defects, err := a.Run(context.Background(), "/proj", []string{"."})
	require.NoError(t, err)
	require.Len(t, defects, 1)
	assert.Equal(t, "src/file.py", defects[0].File)
	assert.Equal(t, 10, defects[0].Line)
	assert.Equal(t, "assignment", defects[0].Code)
	assert.Equal(t, "Incompatible types", defects[0].Message)
}

func TestPytestAdapter_ParsesFailedTests(t *testing.T) {
	tmp := t.TempDir()
	var capturedReportPath string

	runner := &fakeRunner{
		exitCode: 1,
		onRun: func(dir, name string, args []string) {
			for _, a := range args {
				const prefix = "--json-report-file="
				if len(a) > len(prefix) && a[:len(prefix)] == prefix {
					capturedReportPath = a[len(prefix):]
				}
			}
			report := map[string]interface{}{
				"tests": []map[string]interface{}{
					{
						"nodeid":  "tests/test_x.py::test_one",
						"outcome": "failed",
						"call":    map[string]interface{}{"longrepr": "AssertionError"},
					},
					{
						"nodeid":  "tests/test_x.py::test_two",
						"outcome": "passed",
					},
				},
			}
			raw, _ := json.Marshal(report)
			_ = os.WriteFile(capturedReportPath, raw, 0644)
		},
	}

	a := NewPytestAdapter(runner)
	defects, err := a.Run(context.Background(), tmp, []string{"tests/"})
	require.NoError(t, err)
	require.Len(t, defects, 1)
	assert.Equal(t, "tests/test_x.py", defects[0].File)
	assert.Equal(t, "AssertionError", defects[0].Message)
}

func TestRegistry_RunAll_skipsUnavailableAndUnregistered(t *testing.T) {
	r := NewRegistry()
	r.Register(NewRuffAdapter(&fakeRunner{exitCode: 0, output: "[]"}))

	defects, err := r.RunAll(context.Background(), []string{"ruff", "nonexistent"}, "/proj", []string{"."})
	require.NoError(t, err)
	assert.Empty(t, defects)
}

func TestNewDefaultRegistry_registersAllThree(t *testing.T) {
	r := NewDefaultRegistry()
	ids := r.IDs()
	assert.Contains(t, ids, "ruff")
	assert.Contains(t, ids, "mypy")
	assert.Contains(t, ids, "pytest")
}

func TestExecRunner_capturesOutput(t *testing.T) {
	out, code, err := ExecRunner{}.Run(context.Background(), "", "true", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Empty(t, out)
}
