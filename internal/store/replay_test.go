package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

func TestLastChangeSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.LastChangeSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	seedRound(t, s)

	seq, err = s.LastChangeSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), seq)
}

func TestReadChanges(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedRound(t, s)

	all, err := s.ReadChanges(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, model.KindInsertRound, all[0].Kind)
	assert.Equal(t, int64(1), all[0].Seq)
	assert.Equal(t, model.KindInsertApplication, all[2].Change.Kind())

	page, err := s.ReadChanges(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(2), page[0].Seq)

	wantID, err := model.ChangeID(all[0].Seq, all[0].Change)
	require.NoError(t, err)
	assert.Equal(t, wantID, all[0].ID, "decoded change must hash to its logged id")
}

func TestReadChanges_UnknownKindFails(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.db.Exec(`INSERT INTO changes (id, seq, kind, payload) VALUES ('x', 1, 'Mystery', '{"type":"Mystery"}')`)
	require.NoError(t, err)

	_, err = s.ReadChanges(ctx, 0, 0)
	require.Error(t, err)
	assert.True(t, model.IsUnknownChangeKind(err))
}

func TestReplay(t *testing.T) {
	src := createTestStore(t)
	dst := createTestStore(t)
	ctx := context.Background()

	seedRound(t, src)
	mustApply(t, src, 4, model.NewDonations{Donations: []model.Donation{
		testDonation(1, "0", testDonorA, "2"),
		testDonation(2, "1", testDonorB, "3"),
	}})
	mustApply(t, src, 5, model.IncrementRoundDonationStats{ChainID: testChainID, RoundID: testRoundID, AmountInUSD: decimal.RequireFromString("5")})

	applied, err := dst.Replay(ctx, src, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, applied)

	// Second replay is a no-op; increments are not applied twice.
	applied, err = dst.Replay(ctx, src, 2)
	require.NoError(t, err)
	assert.Zero(t, applied)

	r, err := dst.GetRoundByID(ctx, testChainID, testRoundID)
	require.NoError(t, err)
	assert.Equal(t, "5", r.TotalAmountDonatedInUSD.String())
	assert.Equal(t, int64(1), r.TotalDonationsCount)

	n, err := dst.CountDonations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	lastSrc, err := src.LastChangeSeq(ctx)
	require.NoError(t, err)
	lastDst, err := dst.LastChangeSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, lastSrc, lastDst)
}
