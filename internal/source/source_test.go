package source

import (
	"context"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/shuoer86/grants-stack-indexer/internal/calculator"
	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

var _ calculator.InputSource = (*BlobSource)(nil)

const roundsDoc = `[
	{"id": "0xOTHER", "matchTokenAddress": "0x0000000000000000000000000000000000000000", "matchAmount": "1"},
	{"id": "0xRound", "matchTokenAddress": "0x0000000000000000000000000000000000000000", "matchAmount": "1000",
	 "metadata": {"quadraticFundingConfig": {"matchingCap": true, "matchingCapAmount": 10}}}
]`

func newBucket(t *testing.T, docs map[string][]byte) *blob.Bucket {
	t.Helper()
	b := memblob.OpenBucket(nil)
	t.Cleanup(func() { b.Close() })
	for key, data := range docs {
		require.NoError(t, b.WriteAll(context.Background(), key, data, nil))
	}
	return b
}

func newSource(t *testing.T, b *blob.Bucket, prefix string) *BlobSource {
	t.Helper()
	s, err := New(b, prefix)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func compress(t *testing.T, data string) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll([]byte(data), nil)
}

func TestBlobSource_Round(t *testing.T) {
	s := newSource(t, newBucket(t, map[string][]byte{
		"data/10/rounds.json": []byte(roundsDoc),
	}), "/data/")
	ctx := context.Background()

	r, err := s.Round(ctx, 10, "0xround")
	require.NoError(t, err)
	assert.Equal(t, "0xRound", r.ID)
	assert.Equal(t, "1000", r.MatchAmount.String())
	pct, ok := r.Metadata.QuadraticFundingConfig.CapPercent()
	assert.True(t, ok)
	assert.Equal(t, "10", pct.String())

	_, err = s.Round(ctx, 10, "0xmissing")
	assert.True(t, model.IsNotFound(err))

	_, err = s.Round(ctx, 1, "0xround")
	assert.True(t, model.IsNotFound(err), "missing rounds document")
}

func TestBlobSource_RoundDocumentsUseStoredID(t *testing.T) {
	s := newSource(t, newBucket(t, map[string][]byte{
		"1/rounds.json":                    []byte(`[{"id":"0xABC","matchTokenAddress":"0x0000000000000000000000000000000000000000","matchAmount":"1"}]`),
		"1/rounds/0xABC/applications.json": []byte(`[{"id":"0","projectId":"p0","roundId":"0xABC"}]`),
	}), "")
	ctx := context.Background()

	r, err := s.Round(ctx, 1, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xABC", r.ID)

	apps, err := s.Applications(ctx, 1, r.ID)
	require.NoError(t, err)
	assert.Len(t, apps, 1)

	_, err = s.Applications(ctx, 1, "0xabc")
	assert.True(t, model.IsNotFound(err), "document keys are case-sensitive")
}

func TestBlobSource_RoundDocuments(t *testing.T) {
	s := newSource(t, newBucket(t, map[string][]byte{
		"10/rounds/0xr/applications.json": []byte(`[{"id":"0","projectId":"p0","roundId":"0xr","payoutAddress":"0xpay","projectTitle":"Zero"}]`),
		"10/rounds/0xr/votes.json.zst":    compress(t, `[{"id":"v1","voter":"0xA","applicationId":"0","amountRoundToken":"25","amountUSD":2.5}]`),
		"passport_scores.json":            []byte(`[{"address":"0xa","evidence":{"success":true,"rawScore":"21"}},{"address":"0xb","evidence":null}]`),
	}), "")
	ctx := context.Background()

	apps, err := s.Applications(ctx, 10, "0xr")
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "Zero", apps[0].ProjectTitle)

	votes, err := s.Contributions(ctx, 10, "0xr")
	require.NoError(t, err, "compressed fallback")
	require.Len(t, votes, 1)
	assert.Equal(t, "25", votes[0].AmountRoundToken.String())
	assert.Equal(t, "0xA", votes[0].Voter)

	scores, err := s.ReputationScores(ctx)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.True(t, scores[0].Evidence.Passed())
	assert.False(t, scores[1].Evidence.Present())
}

func TestBlobSource_Errors(t *testing.T) {
	s := newSource(t, newBucket(t, map[string][]byte{
		"1/rounds/0xr/votes.json":            []byte(`{not json`),
		"1/rounds/0xr/applications.json.zst": []byte("not zstd"),
	}), "")
	ctx := context.Background()

	_, err := s.Contributions(ctx, 1, "0xr")
	require.Error(t, err)
	assert.False(t, model.IsNotFound(err))
	assert.Contains(t, err.Error(), "decode 1/rounds/0xr/votes.json")

	_, err = s.Applications(ctx, 1, "0xr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zstd decompress")

	_, err = s.ReputationScores(ctx)
	assert.True(t, model.IsNotFound(err))
}

func TestOpen_MemURL(t *testing.T) {
	s, err := Open(context.Background(), "mem://", "")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ReputationScores(context.Background())
	assert.True(t, model.IsNotFound(err))
}
