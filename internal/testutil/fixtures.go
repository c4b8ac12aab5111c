package testutil

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// Fixture identities. Addresses are lowercase, as the store keeps them.
const (
	ChainID = int64(10)
	RoundID = "0xround"
	Token   = "0x6b175474e89094c44da98b954eedeac495271d0f"
	Owner   = "0x1111111111111111111111111111111111111111"
	DonorA  = "0x2222222222222222222222222222222222222222"
	DonorB  = "0x3333333333333333333333333333333333333333"
	Payout  = "0x4444444444444444444444444444444444444444"
)

// Round returns the fixture round with a 1000-token pool.
func Round() model.Round {
	return model.Round{
		ChainID:           ChainID,
		ID:                RoundID,
		MatchTokenAddress: Token,
		MatchAmount:       model.MustParseAmount("1000"),
		MatchAmountInUSD:  decimal.RequireFromString("1000"),
		ProjectID:         "program-1",
		CreatedByAddress:  Owner,
		CreatedAtBlock:    100,
		UpdatedAtBlock:    100,
	}
}

// Application returns a pending application of the fixture round.
func Application(id string) model.Application {
	return model.Application{
		ChainID:          ChainID,
		RoundID:          RoundID,
		ID:               id,
		ProjectID:        "project-" + id,
		Status:           model.ApplicationPending,
		CreatedByAddress: Owner,
		CreatedAtBlock:   110,
	}
}

// Donation returns donation n to application appID worth usd dollars.
func Donation(n int, appID, donor, usd string) model.Donation {
	return model.Donation{
		ID:                      fmt.Sprintf("donation-%04d", n),
		ChainID:                 ChainID,
		RoundID:                 RoundID,
		ApplicationID:           appID,
		DonorAddress:            donor,
		RecipientAddress:        Payout,
		ProjectID:               "project-" + appID,
		TransactionHash:         fmt.Sprintf("0xtx%d", n),
		BlockNumber:             int64(200 + n),
		TokenAddress:            Token,
		Amount:                  model.NewAmount(int64(1000 + n)),
		AmountInUSD:             decimal.RequireFromString(usd),
		AmountInRoundMatchToken: model.NewAmount(int64(1000 + n)),
		Timestamp:               time.Date(2024, 3, 1, 12, 0, n%60, 0, time.UTC),
	}
}

// RoundChanges is the change stream of the fixture round: the round,
// applications "0" and "1", and three single donations.
func RoundChanges() []model.DataChange {
	return []model.DataChange{
		model.InsertRound{Round: Round()},
		model.InsertApplication{Application: Application("0")},
		model.InsertApplication{Application: Application("1")},
		model.InsertDonation{Donation: Donation(1, "0", DonorA, "1.5")},
		model.InsertDonation{Donation: Donation(2, "0", DonorB, "2.5")},
		model.InsertDonation{Donation: Donation(3, "1", DonorA, "4")},
	}
}
