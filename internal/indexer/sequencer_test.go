package indexer

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuoer86/grants-stack-indexer/internal/logging"
	"github.com/shuoer86/grants-stack-indexer/internal/metrics"
	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

func TestSequencer_StampsIncreasingSeqs(t *testing.T) {
	ctx := context.Background()
	st := createTestStore(t)
	m := metrics.New("")
	seq, err := NewSequencer(ctx, st, Options{Logger: logging.Discard(), Metrics: m})
	require.NoError(t, err)

	_, err = seq.Write(ctx, model.InsertRound{Round: testRound()})
	require.NoError(t, err)
	_, err = seq.Write(ctx, model.InsertApplication{Application: testApplication("0")})
	require.NoError(t, err)

	logged, err := st.ReadChanges(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, logged, 2)
	assert.Equal(t, int64(1), logged[0].Seq)
	assert.Equal(t, model.KindInsertRound, logged[0].Kind)
	assert.Equal(t, int64(2), logged[1].Seq)
	assert.Equal(t, int64(2), seq.LastSeq())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChangesApplied.WithLabelValues("InsertRound")))
}

func TestSequencer_ResumesFromLog(t *testing.T) {
	ctx := context.Background()
	st := createTestStore(t)

	first, err := NewSequencer(ctx, st, testOptions())
	require.NoError(t, err)
	_, err = first.Write(ctx, model.InsertRound{Round: testRound()})
	require.NoError(t, err)
	_, err = first.Write(ctx, model.InsertApplication{Application: testApplication("0")})
	require.NoError(t, err)

	// A restarted process continues after the last logged seq.
	second, err := NewSequencer(ctx, st, testOptions())
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.LastSeq())

	_, err = second.Write(ctx, model.InsertApplication{Application: testApplication("1")})
	require.NoError(t, err)
	last, err := st.LastChangeSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestSequencer_FailedWriteLeavesGap(t *testing.T) {
	ctx := context.Background()
	st := createTestStore(t)
	seq, err := NewSequencer(ctx, st, testOptions())
	require.NoError(t, err)

	bad := testRound()
	bad.MatchTokenAddress = "not-an-address"
	_, err = seq.Write(ctx, model.InsertRound{Round: bad})
	require.Error(t, err)

	_, err = seq.Write(ctx, model.InsertRound{Round: testRound()})
	require.NoError(t, err)

	logged, err := st.ReadChanges(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, int64(2), logged[0].Seq)
}

func TestSequencer_NilChange(t *testing.T) {
	seq, err := NewSequencer(context.Background(), createTestStore(t), testOptions())
	require.NoError(t, err)
	_, err = seq.Write(context.Background(), nil)
	assert.Error(t, err)
}
