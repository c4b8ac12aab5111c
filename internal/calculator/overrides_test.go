package calculator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverrides(t *testing.T) {
	input := "note,coefficient,contributionId\n" +
		"spam,0,c-1\n" +
		"ok, 1 ,c-2\n" +
		",0,\n" +
		"later wins,1,c-1\n"

	o, err := ParseOverrides(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, Overrides{"c-1": "1", "c-2": "1"}, o)
	assert.False(t, o.Excludes("c-1"))
	assert.False(t, o.Excludes("unknown"))
}

func TestParseOverrides_HeaderWithBOM(t *testing.T) {
	o, err := ParseOverrides(strings.NewReader("\ufeffcontributionId,coefficient\nc-9,0\n"))
	require.NoError(t, err)
	assert.True(t, o.Excludes("c-9"))
}

func TestParseOverrides_MissingColumns(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no coefficient", "contributionId,weight\nc-1,0\n", "coefficient"},
		{"no id", "id,coefficient\nc-1,0\n", "contributionId"},
		{"empty", "", "contributionId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOverrides(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, IsConfiguration(err))
			assert.ErrorIs(t, err, ErrConfiguration)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseOverrides_ShortRow(t *testing.T) {
	_, err := ParseOverrides(strings.NewReader("contributionId,coefficient\nc-1\n"))
	require.Error(t, err)
	assert.False(t, IsConfiguration(err))
	assert.Contains(t, err.Error(), "line 2")
}
