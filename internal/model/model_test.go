package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	byID, err := Parse("gemini-3-pro-preview")
	require.NoError(t, err)
	require.Equal(t, "pro", byID.Alias)

	byAlias, err := Parse("flash")
	require.NoError(t, err)
	require.Equal(t, "gemini-3-flash-preview", byAlias.ID)

	trimmed, err := Parse("  pro  ")
	require.NoError(t, err)
	require.Equal(t, "gemini-3-pro-preview", trimmed.ID)

	_, err = Parse("gpt-7")
	require.Error(t, err)
}

func TestDefault(t *testing.T) {
	def := Default()
	require.NotNil(t, def)
	parsed, err := Parse(def.ID)
	require.NoError(t, err)
	require.Equal(t, def, parsed)
}

func TestListPricing(t *testing.T) {
	listed := List()
	require.Len(t, listed, 2)
	for _, m := range listed {
		require.True(t, m.InputPricing.IsPositive())
		require.True(t, m.OutputPricing.GreaterThan(m.InputPricing))
	}
}
