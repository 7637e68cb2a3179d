// Package diagnostics adapts external quality tools (linters, type
// checkers, test runners) to a common interface producing
// defect.Defect slices, per spec.md's diagnostics-tool integration
// surface.
package diagnostics

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/stomper-go/stomper/internal/defect"
)

// CommandRunner abstracts subprocess execution for testability.
type CommandRunner interface {
	// Run executes name with args under dir, returning combined output and
	// the process's exit code. A non-nil err other than *exec.ExitError
	// indicates the tool could not be started at all.
	Run(ctx context.Context, dir, name string, args []string) (output string, exitCode int, err error)
}

// ExecRunner runs tools via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args []string) (string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err == nil {
		return string(out), 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return string(out), exitErr.ExitCode(), nil
	}
	return string(out), -1, err
}

// Adapter wraps one diagnostics tool: it knows how to invoke it and how to
// parse its output into normalized defects.
type Adapter interface {
	// ID is the tool identifier stored on each defect, e.g. "ruff".
	ID() string

	// Available reports whether the underlying binary can be found.
	Available() bool

	// Run executes the tool against targetPaths (files or directories,
	// relative to projectRoot) and returns normalized defects.
	Run(ctx context.Context, projectRoot string, targetPaths []string) ([]defect.Defect, error)

	// DiscoverConfig reports the path to the tool's own configuration file
	// within projectRoot, following that tool's native discovery order, and
	// false if none of the candidates exist.
	DiscoverConfig(projectRoot string) (string, bool)
}

// fileExists reports whether projectRoot/name exists as a regular file.
func fileExists(projectRoot, name string) (string, bool) {
	path := filepath.Join(projectRoot, name)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// pyprojectHasTable reports whether projectRoot/pyproject.toml exists and
// declares a [tool.<name>] table, mirroring the tomllib probe each of the
// original tool adapters runs before falling back to its own config files.
func pyprojectHasTable(projectRoot, name string) (string, bool) {
	path, ok := fileExists(projectRoot, "pyproject.toml")
	if !ok {
		return "", false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}

	var root map[string]interface{}
	if err := toml.Unmarshal(data, &root); err != nil {
		return "", false
	}

	tool, _ := root["tool"].(map[string]interface{})
	if _, ok := tool[name]; !ok {
		return "", false
	}
	return path, true
}

// Registry maps a tool id to its Adapter, mirroring the discovery-table
// idiom the teacher uses for its agent registry.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds or replaces the adapter for its own ID().
func (r *Registry) Register(a Adapter) {
	r.adapters[a.ID()] = a
}

// Get returns the adapter registered under id, if any.
func (r *Registry) Get(id string) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// IDs returns the registered tool ids, in no particular order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}

// RunAll runs every adapter named in toolIDs against targetPaths,
// concatenating their defects. An unregistered tool id or an unavailable
// binary is skipped with no error, matching the original tool's
// is_available() guard.
func (r *Registry) RunAll(ctx context.Context, toolIDs []string, projectRoot string, targetPaths []string) ([]defect.Defect, error) {
	var all []defect.Defect

	for _, id := range toolIDs {
		adapter, ok := r.Get(id)
		if !ok || !adapter.Available() {
			continue
		}

		found, err := adapter.Run(ctx, projectRoot, targetPaths)
		if err != nil {
			return nil, err
		}
		all = append(all, found...)
	}

	return all, nil
}

// NewDefaultRegistry builds a Registry with the ruff, mypy, and pytest
// adapters registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewRuffAdapter(ExecRunner{}))
	r.Register(NewMypyAdapter(ExecRunner{}))
	r.Register(NewPytestAdapter(ExecRunner{}))
	return r
}
