package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
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

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustApply applies change at seq and fails the test on error.
func mustApply(t *testing.T, s *Store, seq int64, change model.DataChange) {
	t.Helper()
	if _, err := s.ApplyChange(context.Background(), seq, change); err != nil {
		t.Fatalf("ApplyChange(%s) failed: %v", change.Kind(), err)
	}
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
		RoundMetadata: model.Object{
			"name": model.String("Climate Round"),
		},
	}
}

func testApplication(id string) model.Application {
	return model.Application{
		ChainID:          testChainID,
		RoundID:          testRoundID,
		ID:               id,
		ProjectID:        "project-" + id,
		Status:           model.ApplicationPending,
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

// seedRound inserts the test round and applications "0" and "1".
func seedRound(t *testing.T, s *Store) {
	t.Helper()
	mustApply(t, s, 1, model.InsertRound{Round: testRound()})
	mustApply(t, s, 2, model.InsertApplication{Application: testApplication("0")})
	mustApply(t, s, 3, model.InsertApplication{Application: testApplication("1")})
}
