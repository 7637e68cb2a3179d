package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stomper-go/stomper/internal/defect"
	"github.com/stomper-go/stomper/internal/diagnostics"
)

type stubAdapter struct {
	id        string
	available bool
	defects   []defect.Defect
}

func (s stubAdapter) ID() string      { return s.id }
func (s stubAdapter) Available() bool { return s.available }
func (s stubAdapter) Run(ctx context.Context, projectRoot string, targetPaths []string) ([]defect.Defect, error) {
	return s.defects, nil
}
func (s stubAdapter) DiscoverConfig(projectRoot string) (string, bool) { return "", false }

func TestValidate_passesWhenAllFixed(t *testing.T) {
	original := []defect.Defect{{Tool: "ruff", Code: "E501", File: "a.py", Line: 1}}

	reg := diagnostics.NewRegistry()
	reg.Register(stubAdapter{id: "ruff", available: true, defects: nil})

	v := New(reg, []string{"ruff"})
	result, err := v.Validate(context.Background(), "/proj", []string{"a.py"}, original)
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, 1, result.ErrorsFixed)
	assert.Equal(t, 0, result.ErrorsRemaining)
}

func TestValidate_failsOnIntroducedDefect(t *testing.T) {
	original := []defect.Defect{{Tool: "ruff", Code: "E501", File: "a.py", Line: 1}}
	introduced := []defect.Defect{{Tool: "ruff", Code: "F401", File: "a.py", Line: 2}}

	reg := diagnostics.NewRegistry()
	reg.Register(stubAdapter{id: "ruff", available: true, defects: introduced})

	v := New(reg, []string{"ruff"})
	result, err := v.Validate(context.Background(), "/proj", []string{"a.py"}, original)
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Equal(t, 1, result.NewErrorsIntroduced)
}

func TestValidate_failsOnNoProgress(t *testing.T) {
	original := []defect.Defect{{Tool: "ruff", Code: "E501", File: "a.py", Line: 1}}

	reg := diagnostics.NewRegistry()
	reg.Register(stubAdapter{id: "ruff", available: true, defects: original})

	v := New(reg, []string{"ruff"})
	result, err := v.Validate(context.Background(), "/proj", []string{"a.py"}, original)
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Equal(t, 0, result.ErrorsFixed)
	assert.Equal(t, 1, result.ErrorsRemaining)
}
