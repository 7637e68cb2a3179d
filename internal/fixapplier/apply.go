// Package fixapplier atomically integrates a worktree's changes into the
// main working tree, with snapshot-based rollback, per spec.md §4.5.
package fixapplier

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/stomper-go/stomper/internal/defect"
	"github.com/stomper-go/stomper/internal/validator"
	"github.com/stomper-go/stomper/internal/worktree"
)

// excludedDirs are heavy artefact directories never touched by backup or
// apply, matching spec.md §4.5's path-safety clause.
var excludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"dist":         true,
	"build":        true,
	".stomper":     true,
}

// ApplyResult is the outcome of one apply operation.
type ApplyResult struct {
	Success      bool
	FilesApplied []string
	FilesFailed  []string
	ErrorMessage string
}

// RollbackReason classifies why apply_and_validate rolled back.
type RollbackReason string

const (
	ReasonValidationFailed    RollbackReason = "validation_failed"
	ReasonNewErrorsIntroduced RollbackReason = "new_errors_introduced"
	ReasonApplyFailed         RollbackReason = "apply_failed"
)

// FixApplicationResult is the composite result of apply_and_validate.
type FixApplicationResult struct {
	Apply          ApplyResult
	Validation     validator.Result
	RolledBack     bool
	RollbackReason RollbackReason
}

// snapshot is a directory copy of a set of files, keyed by the path that
// produced it, kept only in a temp directory for the snapshot's lifetime.
type snapshot struct {
	dir   string
	files map[string]bool // relative paths captured, including ones that didn't exist (tombstones)
}

// Applier integrates worktree changes into projectRoot.
type Applier struct {
	ProjectRoot string
	Worktree    *worktree.Manager
}

// New builds an Applier rooted at projectRoot, using wt for diff/apply
// primitives.
func New(projectRoot string, wt *worktree.Manager) *Applier {
	return &Applier{ProjectRoot: projectRoot, Worktree: wt}
}

// normalizePath resolves rel against the project root and requires the
// result to stay within it, and outside any excluded directory.
func (a *Applier) normalizePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("fixapplier: unsafe path %q", rel)
	}

	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if excludedDirs[part] {
			return "", fmt.Errorf("fixapplier: path %q touches excluded directory %q", rel, part)
		}
	}

	abs := filepath.Join(a.ProjectRoot, cleaned)
	root := filepath.Clean(a.ProjectRoot)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("fixapplier: path %q escapes project root", rel)
	}

	return abs, nil
}

// Apply pulls the worktree's net diff against its base revision and
// applies it to the main tree. It prefers a single patch application;
// when that fails (or the diff is empty) it falls back to a per-file
// copy of targetFiles.
func (a *Applier) Apply(ctx context.Context, h *worktree.Handle, targetFiles []string) (ApplyResult, error) {
	patch, err := a.Worktree.Diff(ctx, h, h.BaseRevision)
	if err != nil {
		return ApplyResult{Success: false, ErrorMessage: err.Error()}, nil
	}

	if strings.TrimSpace(patch) != "" {
		if applied, err := a.Worktree.ApplyPatch(ctx, a.ProjectRoot, patch); err == nil && applied {
			return ApplyResult{Success: true, FilesApplied: targetFiles}, nil
		}
	}

	return a.applyByCopy(h, targetFiles)
}

// applyByCopy copies each of targetFiles from the worktree into the main
// tree, preserving file mode (including the executable bit) and treating
// content as opaque bytes so binary files round-trip unchanged.
func (a *Applier) applyByCopy(h *worktree.Handle, targetFiles []string) (ApplyResult, error) {
	result := ApplyResult{Success: true}

	for _, rel := range targetFiles {
		dst, err := a.normalizePath(rel)
		if err != nil {
			result.Success = false
			result.FilesFailed = append(result.FilesFailed, rel)
			continue
		}
		src := filepath.Join(h.Path, rel)

		if err := copyFile(src, dst); err != nil {
			result.Success = false
			result.FilesFailed = append(result.FilesFailed, rel)
			continue
		}
		result.FilesApplied = append(result.FilesApplied, rel)
	}

	if !result.Success {
		result.ErrorMessage = fmt.Sprintf("failed to copy %d file(s)", len(result.FilesFailed))
	}

	return result, nil
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		return os.Remove(dst) // the assistant deleted the file; propagate the deletion
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// Backup snapshots the current on-disk state of files into a temp
// directory, returning nil when there is nothing to back up (no files
// given).
func (a *Applier) Backup(files []string) (*snapshot, error) {
	if len(files) == 0 {
		return nil, nil
	}

	dir, err := os.MkdirTemp("", "stomper-snapshot-*")
	if err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	s := &snapshot{dir: dir, files: make(map[string]bool, len(files))}

	for _, rel := range files {
		abs, err := a.normalizePath(rel)
		if err != nil {
			os.RemoveAll(dir)
			return nil, err
		}

		snapPath := filepath.Join(dir, rel)
		if err := copyFile(abs, snapPath); err != nil && !os.IsNotExist(err) {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("snapshot %s: %w", rel, err)
		}
		s.files[rel] = true
	}

	return s, nil
}

// Discard consumes s without restoring anything, removing its temp
// directory. Callers use this once a change has been accepted and the
// snapshot is no longer needed.
func (a *Applier) Discard(s *snapshot) {
	if s == nil {
		return
	}
	os.RemoveAll(s.dir)
}

// Restore restores and consumes s, writing every captured file back to
// its original location (removing files that did not exist at snapshot
// time) and deleting the snapshot directory afterward.
func (a *Applier) Restore(s *snapshot) bool {
	if s == nil {
		return false
	}
	defer os.RemoveAll(s.dir)

	ok := true
	for rel := range s.files {
		abs, err := a.normalizePath(rel)
		if err != nil {
			ok = false
			continue
		}

		snapPath := filepath.Join(s.dir, rel)
		if _, err := os.Stat(snapPath); os.IsNotExist(err) {
			if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
				ok = false
			}
			continue
		}

		if err := copyFile(snapPath, abs); err != nil {
			ok = false
		}
	}

	return ok
}

// CommitMessage formats the commit produced once a file's fixes have been
// applied to the main tree, per spec.md §6: a summary line naming the
// issue count and file, one bullet per resolved defect code (in fix
// order, duplicates included), and a trailing attribution line.
func CommitMessage(file string, codes []string, version string) string {
	plural := "s"
	if len(codes) == 1 {
		plural = ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "fix(quality): resolve %d issue%s in %s\n\n", len(codes), plural, filepath.Base(file))
	for _, code := range codes {
		fmt.Fprintf(&b, "- %s\n", code)
	}
	fmt.Fprintf(&b, "\nFixed by: stomper v%s", version)
	return b.String()
}

// ApplyAndValidate snapshots, applies, validates, and rolls back when the
// result doesn't justify keeping the change. It is a general-purpose
// apply-with-rollback primitive; the orchestrator does not call it
// directly because its internal validation call would hold the
// integration lock across a diagnostics invocation (see
// internal/orchestrator's integrate for the lock-scoped variant using
// Backup/Apply/Restore/Discard directly).
func (a *Applier) ApplyAndValidate(ctx context.Context, h *worktree.Handle, targetFiles []string, v *validator.Validator, originalDefects []defect.Defect) (FixApplicationResult, error) {
	snap, err := a.Backup(targetFiles)
	if err != nil {
		return FixApplicationResult{}, fmt.Errorf("backup before apply: %w", err)
	}

	applyResult, err := a.Apply(ctx, h, targetFiles)
	if err != nil {
		return FixApplicationResult{}, fmt.Errorf("apply: %w", err)
	}

	if !applyResult.Success {
		a.Restore(snap)
		return FixApplicationResult{
			Apply:          applyResult,
			RolledBack:     true,
			RollbackReason: ReasonApplyFailed,
		}, nil
	}

	validationResult, err := v.Validate(ctx, a.ProjectRoot, targetFiles, originalDefects)
	if err != nil {
		a.Restore(snap)
		return FixApplicationResult{
			Apply:          applyResult,
			RolledBack:     true,
			RollbackReason: ReasonApplyFailed,
		}, fmt.Errorf("validate: %w", err)
	}

	switch {
	case !validationResult.Passed && validationResult.NewErrorsIntroduced > 0:
		a.Restore(snap)
		return FixApplicationResult{
			Apply:          applyResult,
			Validation:     validationResult,
			RolledBack:     true,
			RollbackReason: ReasonNewErrorsIntroduced,
		}, nil
	case !validationResult.Passed:
		a.Restore(snap)
		return FixApplicationResult{
			Apply:          applyResult,
			Validation:     validationResult,
			RolledBack:     true,
			RollbackReason: ReasonValidationFailed,
		}, nil
	default:
		if snap != nil {
			os.RemoveAll(snap.dir)
		}
		return FixApplicationResult{
			Apply:      applyResult,
			Validation: validationResult,
		}, nil
	}
}
