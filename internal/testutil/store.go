package testutil

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
	"github.com/shuoer86/grants-stack-indexer/internal/store"
)

// NewStore opens namespace in a fresh temp data dir and closes it when the
// test ends. It returns the store and its data dir.
func NewStore(t *testing.T, namespace string) (*store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.OpenNamespace(dir, namespace)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, dir
}

// Seed applies changes at seq 1, 2, ... and fails the test on any error.
func Seed(t *testing.T, st *store.Store, changes ...model.DataChange) {
	t.Helper()
	ctx := context.Background()
	last, err := st.LastChangeSeq(ctx)
	require.NoError(t, err)
	for i, c := range changes {
		_, err := st.ApplyChange(ctx, last+int64(i)+1, c)
		require.NoError(t, err, "seed %s", c.Kind())
	}
}

// WriteChanges writes changes as JSON lines to a temp file and returns its
// path.
func WriteChanges(t *testing.T, changes ...model.DataChange) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "changes.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, c := range changes {
		line, err := model.MarshalChange(c)
		require.NoError(t, err)
		_, err = w.Write(append(line, '\n'))
		require.NoError(t, err)
	}
	require.NoError(t, w.Flush())
	return path
}
