// Package price values token amounts in USD from persisted price quotes.
package price

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// Reader looks up persisted quotes. *store.Store implements it.
type Reader interface {
	LatestPrice(ctx context.Context, chainID int64, token string) (model.Price, error)
	PriceAtBlock(ctx context.Context, chainID int64, token string, block int64) (model.Price, error)
}

// StoreOracle prices amounts with the newest quote of the token, or the
// newest at or before a pinned block.
type StoreOracle struct {
	prices Reader
	block  int64 // 0 means latest
}

// NewStoreOracle creates an oracle using the latest quotes.
func NewStoreOracle(r Reader) *StoreOracle {
	return &StoreOracle{prices: r}
}

// AtBlock returns a copy of o that prices at the given block.
func (o *StoreOracle) AtBlock(block int64) *StoreOracle {
	return &StoreOracle{prices: o.prices, block: block}
}

// AmountToUSD values amount base units of token. A token without a quote is
// a *model.NotFoundError.
func (o *StoreOracle) AmountToUSD(ctx context.Context, chainID int64, token string, decimals int, amount *big.Int) (decimal.Decimal, error) {
	var (
		p   model.Price
		err error
	)
	if o.block > 0 {
		p, err = o.prices.PriceAtBlock(ctx, chainID, token, o.block)
	} else {
		p, err = o.prices.LatestPrice(ctx, chainID, token)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("price %s on chain %d: %w", token, chainID, err)
	}
	return Value(amount, decimals, p.PriceInUSD), nil
}

// Fixed prices every token at the same USD rate per whole token.
type Fixed struct {
	USDPerToken decimal.Decimal
}

// AmountToUSD implements the calculator's PriceOracle.
func (f Fixed) AmountToUSD(_ context.Context, _ int64, _ string, decimals int, amount *big.Int) (decimal.Decimal, error) {
	return Value(amount, decimals, f.USDPerToken), nil
}

// Value converts base units to USD: amount / 10^decimals × usdPerToken.
func Value(amount *big.Int, decimals int, usdPerToken decimal.Decimal) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).Mul(usdPerToken)
}
