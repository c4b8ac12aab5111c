package indexer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shuoer86/grants-stack-indexer/internal/logging"
	"github.com/shuoer86/grants-stack-indexer/internal/model"
	"github.com/shuoer86/grants-stack-indexer/internal/store"
)

const (
	testToken   = "0x6b175474e89094c44da98b954eedeac495271d0f"
	testOwner   = "0x1111111111111111111111111111111111111111"
	testDonorA  = "0x2222222222222222222222222222222222222222"
	testDonorB  = "0x3333333333333333333333333333333333333333"
	testPayout  = "0x4444444444444444444444444444444444444444"
	testChainID = int64(10)
	testRoundID = "0xround"
)

func testOptions() Options {
	return Options{Logger: logging.Discard()}
}

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenNamespace(t.TempDir(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testRound() model.Round {
	return model.Round{
		ChainID:           testChainID,
		ID:                testRoundID,
		MatchTokenAddress: testToken,
		MatchAmount:       model.MustParseAmount("1000000000000000000000"),
		MatchAmountInUSD:  decimal.RequireFromString("1000"),
		ProjectID:         "program-1",
		CreatedByAddress:  testOwner,
		CreatedAtBlock:    100,
		UpdatedAtBlock:    100,
	}
}

func testApplication(id string) model.Application {
	return model.Application{
		ChainID:          testChainID,
		RoundID:          testRoundID,
		ID:               id,
		ProjectID:        "project-" + id,
		Status:           model.ApplicationApproved,
		CreatedByAddress: testOwner,
		CreatedAtBlock:   110,
	}
}

func testDonation(n int, appID, donor, usd string) model.Donation {
	return model.Donation{
		ID:                      fmt.Sprintf("donation-%04d", n),
		ChainID:                 testChainID,
		RoundID:                 testRoundID,
		ApplicationID:           appID,
		DonorAddress:            donor,
		RecipientAddress:        testPayout,
		ProjectID:               "project-" + appID,
		TransactionHash:         fmt.Sprintf("0xtx%d", n),
		BlockNumber:             int64(200 + n),
		TokenAddress:            testToken,
		Amount:                  model.NewAmount(int64(1000 + n)),
		AmountInUSD:             decimal.RequireFromString(usd),
		AmountInRoundMatchToken: model.NewAmount(int64(1000 + n)),
		Timestamp:               time.Date(2024, 3, 1, 12, 0, n%60, 0, time.UTC),
	}
}

// recordingWriter captures written changes and can fail selected calls.
type recordingWriter struct {
	mu      sync.Mutex
	changes []model.DataChange
	failOn  map[int]error // call index -> error
	calls   int
}

func (w *recordingWriter) Write(_ context.Context, change model.DataChange) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.calls
	w.calls++
	if err, ok := w.failOn[i]; ok {
		return false, err
	}
	w.changes = append(w.changes, change)
	return true, nil
}

func (w *recordingWriter) written() []model.DataChange {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]model.DataChange(nil), w.changes...)
}
