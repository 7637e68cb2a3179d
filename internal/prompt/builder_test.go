package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stomper-go/stomper/internal/defect"
	"github.com/stomper-go/stomper/internal/learning"
)

func TestBuilder_Build_includesDefectsAndPath(t *testing.T) {
	b, err := NewBuilder()
	require.NoError(t, err)

	defects := []defect.Defect{
		{Tool: "ruff", Code: "E501", File: "a.py", Line: 10, Column: 1, Message: "line too long", Severity: defect.SeverityWarning},
	}

	out, err := b.Build(defects, "/tmp/wt-1", 0, learning.AdaptiveStrategy{Verbosity: learning.StrategyNormal})
	require.NoError(t, err)

	assert.Contains(t, out, "a.py")
	assert.Contains(t, out, "/tmp/wt-1")
	assert.Contains(t, out, "E501")
	assert.NotContains(t, out, "retry attempt")
}

func TestBuilder_Build_retryAndHistoryHints(t *testing.T) {
	b, err := NewBuilder()
	require.NoError(t, err)

	defects := []defect.Defect{{Tool: "mypy", Code: "arg-type", File: "b.py", Line: 3}}
	strategy := learning.AdaptiveStrategy{
		Verbosity:         learning.StrategyVerbose,
		IncludeExamples:   true,
		IncludeHistory:    true,
		RetryCount:        2,
		SuggestedApproach: `the "detailed" strategy has succeeded most often (3 time(s)) for this error`,
	}

	out, err := b.Build(defects, "/tmp/wt-2", 2, strategy)
	require.NoError(t, err)

	assert.Contains(t, out, "retry attempt 2")
	assert.Contains(t, out, "recorded history")
	assert.Contains(t, out, "detailed")
}

func TestBuilder_Build_rejectsEmptyDefects(t *testing.T) {
	b, err := NewBuilder()
	require.NoError(t, err)

	_, err = b.Build(nil, "/tmp", 0, learning.AdaptiveStrategy{})
	assert.Error(t, err)
}
