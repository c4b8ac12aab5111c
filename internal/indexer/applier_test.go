package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
	"github.com/shuoer86/grants-stack-indexer/internal/store"
)

func newTestApplier(t *testing.T) (*Applier, *DonationQueue, *Sequencer) {
	t.Helper()
	a, q, seq, _ := newTestApplierWithStore(t)
	return a, q, seq
}

func newTestApplierWithStore(t *testing.T) (*Applier, *DonationQueue, *Sequencer, *store.Store) {
	t.Helper()
	ctx := context.Background()
	st := createTestStore(t)
	seq, err := NewSequencer(ctx, st, testOptions())
	require.NoError(t, err)
	q := NewDonationQueue(seq, 0, testOptions())
	return NewApplier(seq, q, testOptions()), q, seq, st
}

func TestApplier_DivertsSingleDonations(t *testing.T) {
	ctx := context.Background()
	a, q, seq, st := newTestApplierWithStore(t)

	require.NoError(t, a.Apply(ctx, model.InsertRound{Round: testRound()}))
	require.NoError(t, a.Apply(ctx, model.InsertDonation{Donation: testDonation(1, "0", testDonorA, "2")}))

	assert.Equal(t, 1, q.Len(), "donation waits in the queue")
	count, err := st.CountDonations(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "nothing written before the flush")
	assert.Equal(t, int64(1), seq.LastSeq(), "only the round consumed a seq")

	_, err = q.Flush(ctx)
	require.NoError(t, err)
	count, err = st.CountDonations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestApplier_BulkDonationsWrittenSynchronously(t *testing.T) {
	ctx := context.Background()
	a, q, seq := newTestApplier(t)

	require.NoError(t, a.Apply(ctx, model.NewDonations{Donations: []model.Donation{
		testDonation(1, "0", testDonorA, "2"),
		testDonation(2, "0", testDonorB, "3"),
	}}))
	assert.Zero(t, q.Len())
	assert.Equal(t, int64(1), seq.LastSeq())
}

func TestApplier_ApplyAllStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	a, _, seq := newTestApplier(t)

	bad := testApplication("1")
	bad.CreatedByAddress = "0xnope"
	n, err := a.ApplyAll(ctx, []model.DataChange{
		model.InsertRound{Round: testRound()},
		model.InsertApplication{Application: testApplication("0")},
		model.InsertApplication{Application: bad},
		model.InsertApplication{Application: testApplication("2")},
	})
	require.Error(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, err.Error(), "change 2")
	assert.Equal(t, int64(3), seq.LastSeq(), "the failed change consumed a seq, the last was never tried")
}

func TestApplier_RejectsAfterQueueClosed(t *testing.T) {
	ctx := context.Background()
	a, q, _ := newTestApplier(t)
	require.NoError(t, q.Close(ctx))

	err := a.Apply(ctx, model.InsertDonation{Donation: testDonation(1, "0", testDonorA, "2")})
	assert.ErrorIs(t, err, ErrQueueClosed)

	// Other changes still go through.
	assert.NoError(t, a.Apply(ctx, model.InsertRound{Round: testRound()}))
}

func TestApplier_NilChange(t *testing.T) {
	a, _, _ := newTestApplier(t)
	assert.Error(t, a.Apply(context.Background(), nil))
}
