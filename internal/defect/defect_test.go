package defect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	a := Defect{Tool: "ruff", Code: "E501", File: "a.py", Line: 10}

	t.Run("identical tuple matches", func(t *testing.T) {
		b := Defect{Tool: "ruff", Code: "E501", File: "a.py", Line: 10, Message: "different message"}
		assert.True(t, Match(a, b))
	})

	t.Run("different line does not match", func(t *testing.T) {
		b := a
		b.Line = 11
		assert.False(t, Match(a, b))
	})

	t.Run("different tool does not match", func(t *testing.T) {
		b := a
		b.Tool = "mypy"
		assert.False(t, Match(a, b))
	})
}

func TestGroupByFile(t *testing.T) {
	defects := []Defect{
		{File: "b.py", Code: "E1"},
		{File: "a.py", Code: "E2"},
		{File: "b.py", Code: "E3"},
	}

	order, byFile := GroupByFile(defects)

	assert.Equal(t, []string{"b.py", "a.py"}, order)
	assert.Len(t, byFile["b.py"], 2)
	assert.Len(t, byFile["a.py"], 1)
}

func TestDiff(t *testing.T) {
	original := []Defect{
		{Tool: "ruff", Code: "E501", File: "a.py", Line: 1},
		{Tool: "ruff", Code: "E502", File: "a.py", Line: 2},
	}

	t.Run("one fixed, one remaining, one introduced", func(t *testing.T) {
		updated := []Defect{
			{Tool: "ruff", Code: "E502", File: "a.py", Line: 2},
			{Tool: "ruff", Code: "E999", File: "a.py", Line: 3},
		}

		fixed, remaining, introduced := Diff(original, updated)

		assert.Len(t, fixed, 1)
		assert.Equal(t, "E501", fixed[0].Code)

		assert.Len(t, remaining, 1)
		assert.Equal(t, "E502", remaining[0].Code)

		assert.Len(t, introduced, 1)
		assert.Equal(t, "E999", introduced[0].Code)
	})

	t.Run("all fixed, nothing introduced", func(t *testing.T) {
		fixed, remaining, introduced := Diff(original, nil)

		assert.Len(t, fixed, 2)
		assert.Empty(t, remaining)
		assert.Empty(t, introduced)
	})

	t.Run("nothing fixed when everything persists", func(t *testing.T) {
		fixed, remaining, introduced := Diff(original, original)

		assert.Empty(t, fixed)
		assert.Len(t, remaining, 2)
		assert.Empty(t, introduced)
	})
}
