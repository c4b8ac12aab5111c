package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
	"github.com/shuoer86/grants-stack-indexer/internal/store"
)

type failingRecomputer struct{}

func (failingRecomputer) RecomputeDonationStats(context.Context) (store.RecomputeResult, error) {
	return store.RecomputeResult{}, errors.New("database is locked")
}

func TestFlushJob(t *testing.T) {
	w := &recordingWriter{}
	q := NewDonationQueue(w, 0, testOptions())
	job := FlushJob(q, 250*time.Millisecond)

	assert.Equal(t, FlushJobName, job.Name())
	assert.Equal(t, 250*time.Millisecond, job.Interval())

	require.NoError(t, q.Enqueue(testDonation(1, "0", testDonorA, "1")))
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, w.written(), 1)
}

func TestStatsJob_HealsAggregates(t *testing.T) {
	ctx := context.Background()
	st := createTestStore(t)
	seq, err := NewSequencer(ctx, st, testOptions())
	require.NoError(t, err)

	for _, c := range []model.DataChange{
		model.InsertRound{Round: testRound()},
		model.InsertApplication{Application: testApplication("0")},
		model.NewDonations{Donations: []model.Donation{
			testDonation(1, "0", testDonorA, "10"),
			testDonation(2, "0", testDonorA, "5"),
			testDonation(3, "0", testDonorB, "2.5"),
		}},
		// An increment that double counts one donation.
		model.IncrementRoundDonationStats{ChainID: testChainID, RoundID: testRoundID, AmountInUSD: decimal.RequireFromString("10")},
	} {
		_, err := seq.Write(ctx, c)
		require.NoError(t, err)
	}

	job := StatsJob(st, time.Minute, testOptions())
	assert.Equal(t, RecomputeJobName, job.Name())
	require.NoError(t, job.Run(ctx))

	round, err := st.GetRoundByID(ctx, testChainID, testRoundID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("17.5").Equal(round.TotalAmountDonatedInUSD), "got %s", round.TotalAmountDonatedInUSD)
	assert.Equal(t, int64(3), round.TotalDonationsCount)
	assert.Equal(t, int64(2), round.UniqueDonorsCount)

	app, err := st.GetApplicationByID(ctx, testChainID, testRoundID, "0")
	require.NoError(t, err)
	assert.Equal(t, int64(3), app.TotalDonationsCount)
	assert.Equal(t, int64(2), app.UniqueDonorsCount)
}

func TestStatsJob_PropagatesError(t *testing.T) {
	job := StatsJob(failingRecomputer{}, time.Minute, testOptions())
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}
