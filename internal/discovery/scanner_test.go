package discovery

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stomper-go/stomper/internal/models"
)

func initGitRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = root
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	run("init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 1\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "b.py"), []byte("y = 1\n"), 0644))
	run("add", ".")
	run("commit", "-q", "-m", "initial")

	return root
}

func TestDiscover_selectionFilesReturnsTargetsVerbatim(t *testing.T) {
	s := NewScanner(t.TempDir())
	files, err := s.Discover(context.Background(), models.SessionConfig{
		Selection: models.SelectionFiles,
		Targets:   []string{"a.py", "pkg/b.py"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "pkg/b.py"}, files)
}

func TestDiscover_selectionDirectoryWalksRecursively(t *testing.T) {
	root := initGitRepo(t)
	s := NewScanner(root)

	files, err := s.Discover(context.Background(), models.SessionConfig{
		Selection: models.SelectionDirectory,
		Targets:   []string{"."},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.py", "pkg/b.py"}, files)
}

func TestDiscover_selectionDirectorySkipsExcludedDirs(t *testing.T) {
	root := initGitRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "x"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "x", "c.py"), []byte("z = 1\n"), 0644))

	s := NewScanner(root)
	files, err := s.Discover(context.Background(), models.SessionConfig{
		Selection: models.SelectionDirectory,
		Targets:   []string{"."},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.py", "pkg/b.py"}, files)
}

func TestDiscover_selectionGlobMatchesDoubleStarPattern(t *testing.T) {
	root := initGitRepo(t)
	s := NewScanner(root)

	files, err := s.Discover(context.Background(), models.SessionConfig{
		Selection: models.SelectionGlob,
		Targets:   []string{"pkg/**/*.py"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/b.py"}, files)
}

func TestDiscover_includeExcludePatternsFilterResults(t *testing.T) {
	root := initGitRepo(t)
	s := NewScanner(root)

	files, err := s.Discover(context.Background(), models.SessionConfig{
		Selection: models.SelectionDirectory,
		Targets:   []string{"."},
		Exclude:   []string{"pkg/**"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py"}, files)
}

func TestDiscover_maxFilesTruncates(t *testing.T) {
	root := initGitRepo(t)
	s := NewScanner(root)

	files, err := s.Discover(context.Background(), models.SessionConfig{
		Selection: models.SelectionDirectory,
		Targets:   []string{"."},
		MaxFiles:  1,
	})
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestDiscover_selectionChangedFindsUnstagedAndUntracked(t *testing.T) {
	root := initGitRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 2\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.py"), []byte("n = 1\n"), 0644))

	s := NewScanner(root)
	files, err := s.Discover(context.Background(), models.SessionConfig{Selection: models.SelectionChanged})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.py", "new.py"}, files)
}

func TestDiscover_selectionStagedFindsIndexOnly(t *testing.T) {
	root := initGitRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 2\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.py"), []byte("n = 1\n"), 0644))

	cmd := exec.Command("git", "add", "a.py")
	cmd.Dir = root
	require.NoError(t, cmd.Run())

	s := NewScanner(root)
	files, err := s.Discover(context.Background(), models.SessionConfig{Selection: models.SelectionStaged})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py"}, files)
}

func TestDiscover_selectionVsBranchRequiresBaseBranch(t *testing.T) {
	root := initGitRepo(t)
	s := NewScanner(root)

	_, err := s.Discover(context.Background(), models.SessionConfig{Selection: models.SelectionVsBranch})
	assert.Error(t, err)
}

func TestDiscover_selectionVsBranchDiffsAgainstBase(t *testing.T) {
	root := initGitRepo(t)

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = root
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("branch", "base")
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 2\n"), 0644))
	run("add", ".")
	run("commit", "-q", "-m", "change a")

	s := NewScanner(root)
	files, err := s.Discover(context.Background(), models.SessionConfig{
		Selection:  models.SelectionVsBranch,
		BaseBranch: "base",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py"}, files)
}

func TestDiscover_unknownSelectionErrors(t *testing.T) {
	s := NewScanner(t.TempDir())
	_, err := s.Discover(context.Background(), models.SessionConfig{Selection: models.Selection("bogus")})
	assert.Error(t, err)
}
