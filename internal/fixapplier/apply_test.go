package fixapplier

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stomper-go/stomper/internal/defect"
	"github.com/stomper-go/stomper/internal/diagnostics"
	"github.com/stomper-go/stomper/internal/validator"
	"github.com/stomper-go/stomper/internal/worktree"
)

type stubAdapter struct {
	id      string
	defects []defect.Defect
}

func (s stubAdapter) ID() string      { return s.id }
func (s stubAdapter) Available() bool { return true }
func (s stubAdapter) Run(ctx context.Context, projectRoot string, targetPaths []string) ([]defect.Defect, error) {
	return s.defects, nil
}
func (s stubAdapter) DiscoverConfig(projectRoot string) (string, bool) { return "", false }

func initRepoWithFile(t *testing.T) string {
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
	run("add", ".")
	run("commit", "-q", "-m", "initial")

	return root
}

func TestApplyAndValidate_keepsChangeOnPass(t *testing.T) {
	root := initRepoWithFile(t)
	wt := worktree.NewManager(root, nil)

	h, err := wt.Create(context.Background(), "t1", "HEAD")
	require.NoError(t, err)
	defer wt.Destroy(context.Background(), h)

	require.NoError(t, os.WriteFile(filepath.Join(h.Path, "a.py"), []byte("x = 2\n"), 0644))

	reg := diagnostics.NewRegistry()
	reg.Register(stubAdapter{id: "ruff", defects: nil})
	v := validator.New(reg, []string{"ruff"})

	a := New(root, wt)
	original := []defect.Defect{{Tool: "ruff", Code: "E501", File: "a.py", Line: 1}}

	result, err := a.ApplyAndValidate(context.Background(), h, []string{"a.py"}, v, original)
	require.NoError(t, err)

	assert.True(t, result.Apply.Success)
	assert.True(t, result.Validation.Passed)
	assert.False(t, result.RolledBack)

	content, err := os.ReadFile(filepath.Join(root, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 2\n", string(content))
}

func TestApplyAndValidate_rollsBackOnIntroducedError(t *testing.T) {
	root := initRepoWithFile(t)
	wt := worktree.NewManager(root, nil)

	h, err := wt.Create(context.Background(), "t2", "HEAD")
	require.NoError(t, err)
	defer wt.Destroy(context.Background(), h)

	require.NoError(t, os.WriteFile(filepath.Join(h.Path, "a.py"), []byte("x = 2\n"), 0644))

	introduced := []defect.Defect{{Tool: "ruff", Code: "F401", File: "a.py", Line: 5}}
	reg := diagnostics.NewRegistry()
	reg.Register(stubAdapter{id: "ruff", defects: introduced})
	v := validator.New(reg, []string{"ruff"})

	a := New(root, wt)
	original := []defect.Defect{{Tool: "ruff", Code: "E501", File: "a.py", Line: 1}}

	result, err := a.ApplyAndValidate(context.Background(), h, []string{"a.py"}, v, original)
	require.NoError(t, err)

	assert.True(t, result.RolledBack)
	assert.Equal(t, ReasonNewErrorsIntroduced, result.RollbackReason)

	content, err := os.ReadFile(filepath.Join(root, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(content))
}

func TestCommitMessage_formatsSummaryAndTrailer(t *testing.T) {
	msg := CommitMessage("pkg/mod.py", []string{"E501", "F401"}, "0.3.0")
	assert.Equal(t, "fix(quality): resolve 2 issues in mod.py\n\n- E501\n- F401\n\nFixed by: stomper v0.3.0", msg)
}

func TestCommitMessage_singularWording(t *testing.T) {
	msg := CommitMessage("a.py", []string{"E501"}, "0.3.0")
	assert.Equal(t, "fix(quality): resolve 1 issue in a.py\n\n- E501\n\nFixed by: stomper v0.3.0", msg)
}

func TestDiscard_removesSnapshotDirWithoutRestoring(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 1\n"), 0644))

	a := New(root, nil)
	snap, err := a.Backup([]string{"a.py"})
	require.NoError(t, err)
	require.NotNil(t, snap)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 2\n"), 0644))
	a.Discard(snap)

	_, err = os.Stat(snap.dir)
	assert.True(t, os.IsNotExist(err))

	content, err := os.ReadFile(filepath.Join(root, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 2\n", string(content))
}

func TestBackup_nilWhenNoFiles(t *testing.T) {
	root := t.TempDir()
	a := New(root, nil)

	s, err := a.Backup(nil)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestNormalizePath_rejectsEscapes(t *testing.T) {
	a := New("/proj", nil)

	_, err := a.normalizePath("../etc/passwd")
	assert.Error(t, err)

	_, err = a.normalizePath(".git/config")
	assert.Error(t, err)

	abs, err := a.normalizePath("pkg/file.go")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/proj", "pkg/file.go"), abs)
}
