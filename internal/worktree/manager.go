// Package worktree creates and destroys isolated, writable checkouts of a
// git repository and exposes diff/patch primitives over them, per spec.md
// §4.2.
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CommandRunner abstracts shell command execution for testability, the same
// seam the teacher's executor package uses for git invocation.
type CommandRunner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (output string, err error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

// ErrUnavailable is returned by Create when the project root is not a
// version-controlled repository.
var ErrUnavailable = fmt.Errorf("worktree: project root is not a git repository")

// Handle identifies one isolated checkout. Its lifetime spans exactly one
// FileTask's processing.
type Handle struct {
	ID           string
	Path         string
	BaseRevision string
	Branch       string
}

// Status lists the paths changed in a worktree, relative to its root.
type Status struct {
	Modified  []string
	Added     []string
	Deleted   []string
	Untracked []string
}

// Logger receives best-effort diagnostics about worktree destruction.
type Logger interface {
	Warnf(format string, args ...interface{})
}

// Manager creates and destroys worktrees rooted at a single project.
type Manager struct {
	ProjectRoot string
	Runner      CommandRunner
	Logger      Logger

	// BaseDir is where per-handle worktree directories are created.
	// Defaults to <ProjectRoot>/.stomper/worktrees when empty.
	BaseDir string

	// BranchPrefix names the ephemeral branches Create makes. Defaults to
	// "stomper-fix-".
	BranchPrefix string
}

// NewManager builds a Manager that shells out to the real git binary.
func NewManager(projectRoot string, logger Logger) *Manager {
	return &Manager{
		ProjectRoot: projectRoot,
		Runner:      ExecRunner{},
		Logger:      logger,
	}
}

func (m *Manager) baseDir() string {
	if m.BaseDir != "" {
		return m.BaseDir
	}
	return filepath.Join(m.ProjectRoot, ".stomper", "worktrees")
}

func (m *Manager) branchPrefix() string {
	if m.BranchPrefix != "" {
		return m.BranchPrefix
	}
	return "stomper-fix-"
}

func (m *Manager) run(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := m.Runner.Run(ctx, dir, "git", args...)
	if err != nil {
		return out, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, out)
	}
	return out, nil
}

// Create materializes a new linked checkout at a unique path derived from
// id, on a fresh branch based at baseRevision.
func (m *Manager) Create(ctx context.Context, id, baseRevision string) (*Handle, error) {
	if _, err := m.run(ctx, m.ProjectRoot, "rev-parse", "--is-inside-work-tree"); err != nil {
		return nil, ErrUnavailable
	}

	if err := os.MkdirAll(m.baseDir(), 0755); err != nil {
		return nil, fmt.Errorf("create worktree base dir: %w", err)
	}

	path := filepath.Join(m.baseDir(), id)
	branch := m.branchPrefix() + id

	if _, err := m.run(ctx, m.ProjectRoot, "worktree", "add", "-b", branch, path, baseRevision); err != nil {
		return nil, fmt.Errorf("create worktree: %w", err)
	}

	return &Handle{
		ID:           id,
		Path:         path,
		BaseRevision: baseRevision,
		Branch:       branch,
	}, nil
}

// Status reports modified/added/deleted/untracked paths relative to the
// worktree root, parsed from `git status --porcelain`.
func (m *Manager) Status(ctx context.Context, h *Handle) (Status, error) {
	out, err := m.run(ctx, h.Path, "status", "--porcelain")
	if err != nil {
		return Status{}, err
	}

	var s Status
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 3 {
			continue
		}
		code := line[:2]
		path := strings.TrimSpace(line[2:])

		switch {
		case code == "??":
			s.Untracked = append(s.Untracked, path)
		case strings.Contains(code, "D"):
			s.Deleted = append(s.Deleted, path)
		case strings.Contains(code, "A"):
			s.Added = append(s.Added, path)
		default:
			s.Modified = append(s.Modified, path)
		}
	}

	return s, nil
}

// Diff returns a textual patch of the worktree's changes against base,
// suitable for reapplication elsewhere.
func (m *Manager) Diff(ctx context.Context, h *Handle, base string) (string, error) {
	return m.run(ctx, h.Path, "diff", base)
}

// ApplyPatch applies patch to targetRepo, returning whether it applied
// cleanly.
func (m *Manager) ApplyPatch(ctx context.Context, targetRepo, patch string) (bool, error) {
	if strings.TrimSpace(patch) == "" {
		return true, nil
	}

	tmp, err := os.CreateTemp("", "stomper-patch-*.diff")
	if err != nil {
		return false, fmt.Errorf("create patch temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(patch); err != nil {
		tmp.Close()
		return false, fmt.Errorf("write patch temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("close patch temp file: %w", err)
	}

	if _, err := m.run(ctx, targetRepo, "apply", tmp.Name()); err != nil {
		return false, err
	}
	return true, nil
}

// Commit stages everything under targetRepo and commits with message. A
// clean tree (nothing to stage) is not an error.
func (m *Manager) Commit(ctx context.Context, targetRepo, message string) error {
	if _, err := m.run(ctx, targetRepo, "add", "-A"); err != nil {
		return err
	}

	out, err := m.run(ctx, targetRepo, "commit", "-m", message)
	if err != nil {
		if strings.Contains(out, "nothing to commit") {
			return nil
		}
		return err
	}
	return nil
}

// Destroy removes the worktree and its ephemeral branch. Idempotent;
// always logs but never raises, per spec.
func (m *Manager) Destroy(ctx context.Context, h *Handle) {
	if h == nil {
		return
	}

	if _, err := m.run(ctx, m.ProjectRoot, "worktree", "remove", "--force", h.Path); err != nil {
		m.warnf("remove worktree %s: %v", h.Path, err)
	}
	if h.Branch != "" {
		if _, err := m.run(ctx, m.ProjectRoot, "branch", "-D", h.Branch); err != nil {
			m.warnf("delete branch %s: %v", h.Branch, err)
		}
	}
}

func (m *Manager) warnf(format string, args ...interface{}) {
	if m.Logger != nil {
		m.Logger.Warnf(format, args...)
	}
}

// Run executes name with args in dir via os/exec, combining stdout/stderr.
func (ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, error) {
	return execCombinedOutput(ctx, dir, name, args...)
}
