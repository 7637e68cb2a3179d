// Package discovery resolves a session's file-discovery selection (files,
// directory, glob, or git-status filter) into a concrete list of files
// the orchestrator should process, per spec.md §6's command-line-surface
// selection modes.
package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/stomper-go/stomper/internal/models"
	"github.com/stomper-go/stomper/internal/worktree"
)

// excludedDirs are never descended into, regardless of selection mode.
var excludedDirs = map[string]bool{
	".git":          true,
	"node_modules":  true,
	"__pycache__":   true,
	".venv":         true,
	"venv":          true,
	"env":           true,
	"dist":          true,
	"build":         true,
	".pytest_cache": true,
	".mypy_cache":   true,
	".stomper":      true,
	"htmlcov":       true,
}

// Scanner resolves file selections relative to ProjectRoot.
type Scanner struct {
	ProjectRoot string
	Runner      worktree.CommandRunner
}

// NewScanner builds a Scanner that shells out to the real git binary for
// the git-status selection modes.
func NewScanner(projectRoot string) *Scanner {
	return &Scanner{ProjectRoot: projectRoot, Runner: worktree.ExecRunner{}}
}

// Discover resolves cfg's Selection/Targets/BaseBranch into an ordered,
// deduplicated list of project-root-relative file paths, after applying
// Include/Exclude patterns and MaxFiles.
func (s *Scanner) Discover(ctx context.Context, cfg models.SessionConfig) ([]string, error) {
	var (
		files []string
		err   error
	)

	switch cfg.Selection {
	case models.SelectionFiles:
		files = append([]string(nil), cfg.Targets...)
	case models.SelectionDirectory:
		files, err = s.scanDirectories(cfg.Targets)
	case models.SelectionGlob:
		files, err = s.scanGlobs(cfg.Targets)
	case models.SelectionChanged:
		files, err = s.gitChanged(ctx)
	case models.SelectionStaged:
		files, err = s.gitStaged(ctx)
	case models.SelectionVsBranch:
		files, err = s.gitVsBranch(ctx, cfg.BaseBranch)
	default:
		return nil, fmt.Errorf("discovery: unknown selection %q", cfg.Selection)
	}
	if err != nil {
		return nil, err
	}

	files, err = applyPatterns(files, cfg.Include, cfg.Exclude)
	if err != nil {
		return nil, err
	}

	files = dedupeAndSort(files)

	if cfg.MaxFiles > 0 && len(files) > cfg.MaxFiles {
		files = files[:cfg.MaxFiles]
	}

	return files, nil
}

// scanDirectories walks each target directory (relative to ProjectRoot)
// collecting every file, skipping hidden and excluded directories.
func (s *Scanner) scanDirectories(targets []string) ([]string, error) {
	if len(targets) == 0 {
		targets = []string{"."}
	}

	var files []string
	for _, target := range targets {
		root := filepath.Join(s.ProjectRoot, target)
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("discovery: %w", err)
		}
		if !info.IsDir() {
			rel, err := filepath.Rel(s.ProjectRoot, root)
			if err != nil {
				return nil, err
			}
			files = append(files, rel)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path == root {
				return nil
			}
			name := d.Name()
			if d.IsDir() {
				if excludedDirs[name] || strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				return nil
			}

			rel, err := filepath.Rel(s.ProjectRoot, path)
			if err != nil {
				return err
			}
			files = append(files, rel)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("discovery: scan %s: %w", target, err)
		}
	}

	return files, nil
}

// scanGlobs walks the whole project root once and keeps every file whose
// project-root-relative path matches at least one of patterns.
func (s *Scanner) scanGlobs(patterns []string) ([]string, error) {
	globs, err := compileGlobs(patterns)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(s.ProjectRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == s.ProjectRoot {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if excludedDirs[name] || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(s.ProjectRoot, path)
		if err != nil {
			return err
		}
		for _, g := range globs {
			if g.Match(rel) {
				files = append(files, rel)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: glob scan: %w", err)
	}

	return files, nil
}

func (s *Scanner) run(ctx context.Context, args ...string) (string, error) {
	out, err := s.Runner.Run(ctx, s.ProjectRoot, "git", args...)
	if err != nil {
		return "", fmt.Errorf("discovery: git %s: %w: %s", strings.Join(args, " "), err, out)
	}
	return out, nil
}

// gitChanged returns every file with a working-tree difference against
// HEAD (staged or unstaged) plus untracked files, matching the
// "unstaged + staged working tree changes" sense of SelectionChanged.
func (s *Scanner) gitChanged(ctx context.Context) ([]string, error) {
	diffed, err := s.run(ctx, "diff", "--name-only", "HEAD")
	if err != nil {
		return nil, err
	}
	untracked, err := s.run(ctx, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	return append(splitLines(diffed), splitLines(untracked)...), nil
}

// gitStaged returns files staged for commit (index vs HEAD).
func (s *Scanner) gitStaged(ctx context.Context) ([]string, error) {
	out, err := s.run(ctx, "diff", "--name-only", "--cached", "HEAD")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// gitVsBranch returns files differing between HEAD and base.
func (s *Scanner) gitVsBranch(ctx context.Context, base string) ([]string, error) {
	if base == "" {
		return nil, fmt.Errorf("discovery: vs-branch selection requires base_branch")
	}
	out, err := s.run(ctx, "diff", "--name-only", fmt.Sprintf("%s...HEAD", base))
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// applyPatterns keeps files matching at least one include pattern (when
// any are given) and excludes files matching any exclude pattern,
// per original_source's FileFilter.filter_files.
func applyPatterns(files, include, exclude []string) ([]string, error) {
	includeGlobs, err := compileGlobs(include)
	if err != nil {
		return nil, err
	}
	excludeGlobs, err := compileGlobs(exclude)
	if err != nil {
		return nil, err
	}

	if len(includeGlobs) == 0 && len(excludeGlobs) == 0 {
		return files, nil
	}

	filtered := make([]string, 0, len(files))
	for _, f := range files {
		if len(includeGlobs) > 0 && !matchesAny(includeGlobs, f) {
			continue
		}
		if matchesAny(excludeGlobs, f) {
			continue
		}
		filtered = append(filtered, f)
	}
	return filtered, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		// A "**/" segment also matches zero directories, so "pkg/**/*.py"
		// matches "pkg/b.py" as well as "pkg/sub/c.py".
		variants := []string{p}
		if collapsed := strings.TrimPrefix(strings.ReplaceAll(p, "/**/", "/"), "**/"); collapsed != p {
			variants = append(variants, collapsed)
		}
		for _, v := range variants {
			g, err := glob.Compile(v, '/')
			if err != nil {
				return nil, fmt.Errorf("discovery: invalid pattern %q: %w", p, err)
			}
			globs = append(globs, g)
		}
	}
	return globs, nil
}

func matchesAny(globs []glob.Glob, path string) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func dedupeAndSort(files []string) []string {
	seen := make(map[string]bool, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		f = filepath.ToSlash(filepath.Clean(f))
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
