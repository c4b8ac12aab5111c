package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectors_Golden(t *testing.T) {
	vectors, err := LoadVectors("testdata/vectors", "")
	require.NoError(t, err)
	require.NotEmpty(t, vectors)

	for _, v := range vectors {
		t.Run(v.Name, func(t *testing.T) {
			res := RunWithGolden(t, v)
			assert.True(t, res.Pass, "errors: %v", res.Errors)
		})
	}
}

func TestSnapshot_Canonical(t *testing.T) {
	v, err := LoadVector("testdata/vectors/basic.yaml")
	require.NoError(t, err)
	res, err := Run(v)
	require.NoError(t, err)

	first, err := Snapshot(res)
	require.NoError(t, err)
	second, err := Snapshot(res)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, string(first), `"name":"basic"`)
	assert.Equal(t, byte('\n'), first[len(first)-1])
}

func TestCompareGolden(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "golden")
	snap := []byte("{\"a\":1}\n")

	ok, err := CompareGolden(dir, "x", snap, false)
	require.NoError(t, err)
	assert.False(t, ok, "missing golden file is a mismatch")

	ok, err = CompareGolden(dir, "x", snap, true)
	require.NoError(t, err)
	assert.True(t, ok)
	written, err := os.ReadFile(filepath.Join(dir, "x.golden"))
	require.NoError(t, err)
	assert.Equal(t, snap, written)

	ok, err = CompareGolden(dir, "x", snap, false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CompareGolden(dir, "x", []byte("{\"a\":2}\n"), false)
	require.NoError(t, err)
	assert.False(t, ok)
}
