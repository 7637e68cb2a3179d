package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stomper-go/stomper/internal/config"
)

func TestFlagsFromCmd_onlySetFlagsArePopulated(t *testing.T) {
	cmd := NewRunCommand()
	require.NoError(t, cmd.Flags().Set("max-retries", "7"))
	require.NoError(t, cmd.Flags().Set("tools", "ruff,mypy"))

	f := flagsFromCmd(cmd)

	require.NotNil(t, f.MaxRetries)
	assert.Equal(t, 7, *f.MaxRetries)
	require.NotNil(t, f.Tools)
	assert.Equal(t, []string{"ruff", "mypy"}, *f.Tools)

	assert.Nil(t, f.DryRun)
	assert.Nil(t, f.Selection)
	assert.Nil(t, f.AgentName)
}

func TestFlagsFromCmd_noFlagsSetYieldsEmptyFlags(t *testing.T) {
	cmd := NewRunCommand()
	f := flagsFromCmd(cmd)
	assert.Equal(t, config.Flags{}, f)
}
