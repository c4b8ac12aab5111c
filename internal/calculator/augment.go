package calculator

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// DefaultOracleWorkers bounds concurrent PriceOracle calls per run.
const DefaultOracleWorkers = 8

// PriceOracle values token amounts in USD.
type PriceOracle interface {
	// AmountToUSD returns the USD value of amount base units of token, a
	// token with the given decimals, on chainID.
	AmountToUSD(ctx context.Context, chainID int64, token string, decimals int, amount *big.Int) (decimal.Decimal, error)
}

// MatchToken identifies the token a round pays out in.
type MatchToken struct {
	ChainID  int64
	Address  string
	Decimals int
}

// AugmentedResult is a Calculation joined with its application and valued in
// USD.
type AugmentedResult struct {
	Calculation
	ApplicationID string          `json:"applicationId"`
	ProjectID     string          `json:"projectId"`
	ProjectName   string          `json:"projectName"`
	PayoutAddress string          `json:"payoutAddress"`
	MatchedUSD    decimal.Decimal `json:"matchedUSD"`
}

// Augment joins every calculation with its application and values its match
// in USD. A calculation without an application fails the whole call with a
// NotFound error before any oracle call is made. Oracle calls run on a pool
// of at most workers goroutines; the first failure cancels the rest and is
// returned. Results keep the order of calcs.
func Augment(
	ctx context.Context,
	calcs []Calculation,
	apps map[string]model.ApplicationRecord,
	oracle PriceOracle,
	token MatchToken,
	workers int,
) ([]AugmentedResult, error) {
	out := make([]AugmentedResult, len(calcs))
	for i, c := range calcs {
		app, ok := apps[c.Recipient]
		if !ok {
			return nil, model.NewNotFound("application", token.ChainID, c.Recipient)
		}
		out[i] = AugmentedResult{
			Calculation:   c,
			ApplicationID: app.ID,
			ProjectID:     app.ProjectID,
			ProjectName:   app.ProjectTitle,
			PayoutAddress: app.PayoutAddress,
		}
	}
	if len(out) == 0 {
		return out, nil
	}

	if workers <= 0 {
		workers = DefaultOracleWorkers
	}
	pool, err := ants.NewPool(min(workers, len(out)))
	if err != nil {
		return nil, fmt.Errorf("augment: create pool: %w", err)
	}
	defer pool.Release()

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i := range out {
		r := &out[i]
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			usd, err := oracle.AmountToUSD(ctx, token.ChainID, token.Address, token.Decimals, r.Matched.Big())
			if err != nil {
				fail(fmt.Errorf("augment: value match of %s: %w", r.ApplicationID, err))
				return
			}
			r.MatchedUSD = usd
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("augment: submit: %w", submitErr))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := parent.Err(); err != nil {
		return nil, fmt.Errorf("augment: %w", err)
	}
	return out, nil
}
