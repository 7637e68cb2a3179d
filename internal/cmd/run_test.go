package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_noToolsAvailableReportsNoDefects(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 1\n"), 0644))

	cmd := NewRunCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--project", root, "--selection", "directory", "--targets", "."})

	err := cmd.ExecuteContext(context.Background())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "fixed 0 file(s)")
}

func TestRun_dryRunFlagOverridesConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 1\n"), 0644))

	cmd := NewRunCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--project", root, "--dry-run"})

	err := cmd.ExecuteContext(context.Background())
	require.NoError(t, err)
}

func TestRun_invalidMaxParallelFilesIsRejected(t *testing.T) {
	root := t.TempDir()

	cmd := NewRunCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--project", root, "--max-parallel-files", "0"})

	err := cmd.ExecuteContext(context.Background())
	assert.Error(t, err)
}
