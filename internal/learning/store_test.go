package learning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stomper-go/stomper/internal/defect"
)

func TestNewStore_freshProject(t *testing.T) {
	root := t.TempDir()

	s, err := NewStore(root, false, nil)
	require.NoError(t, err)

	stats := s.Statistics()
	assert.Equal(t, 0, stats.TotalAttempts)
	assert.Equal(t, float64(0), stats.OverallSuccessRate)
}

func TestStore_RecordAttemptAndSave(t *testing.T) {
	root := t.TempDir()
	d := defect.Defect{Tool: "ruff", Code: "E501", File: "a.py", Line: 1}

	s, err := NewStore(root, true, nil)
	require.NoError(t, err)

	s.RecordAttempt(d, OutcomeSuccess, StrategyNormal, "a.py")
	s.RecordAttempt(d, OutcomeFailure, StrategyNormal, "a.py")

	assert.InDelta(t, 0.5, s.SuccessRate("ruff", "E501"), 0.0001)

	path := filepath.Join(root, ".stomper", StoreFileName)
	assert.FileExists(t, path)

	reloaded, err := NewStore(root, false, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, reloaded.SuccessRate("ruff", "E501"), 0.0001)
	assert.Equal(t, 2, reloaded.Statistics().TotalAttempts)
}

func TestStore_Reset_discardsPatternsAndPersists(t *testing.T) {
	root := t.TempDir()
	d := defect.Defect{Tool: "ruff", Code: "E501", File: "a.py", Line: 1}

	s, err := NewStore(root, true, nil)
	require.NoError(t, err)
	s.RecordAttempt(d, OutcomeSuccess, StrategyNormal, "a.py")

	discarded, err := s.Reset()
	require.NoError(t, err)
	assert.Equal(t, 1, discarded)
	assert.Equal(t, 0, s.Statistics().TotalPatterns)

	reloaded, err := NewStore(root, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Statistics().TotalAttempts)
}

func TestStore_RecordAttempt_unknownPatternHasZeroRate(t *testing.T) {
	s, err := NewStore(t.TempDir(), false, nil)
	require.NoError(t, err)

	assert.Equal(t, float64(0), s.SuccessRate("mypy", "unseen"))
}

type recordingLogger struct {
	messages []string
}

func (l *recordingLogger) Warnf(format string, args ...interface{}) {
	l.messages = append(l.messages, format)
}

func TestNewStore_corruptFileStartsFresh(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, ".stomper", StoreFileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	logger := &recordingLogger{}
	s, err := NewStore(root, false, logger)
	require.NoError(t, err)

	assert.Equal(t, 0, s.Statistics().TotalAttempts)
	assert.NotEmpty(t, logger.messages)
}
