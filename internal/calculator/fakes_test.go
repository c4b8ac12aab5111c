package calculator

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// fixedOracle prices every token at a fixed USD rate per whole token.
type fixedOracle struct {
	rate     decimal.Decimal
	failFor  *big.Int // amount that triggers an error
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (o *fixedOracle) AmountToUSD(_ context.Context, _ int64, _ string, decimals int, amount *big.Int) (decimal.Decimal, error) {
	o.calls.Add(1)
	n := o.inFlight.Add(1)
	defer o.inFlight.Add(-1)
	for {
		m := o.maxSeen.Load()
		if n <= m || o.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if o.failFor != nil && amount.Cmp(o.failFor) == 0 {
		return decimal.Zero, errors.New("price unavailable")
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).Mul(o.rate), nil
}

// memorySource serves fixed records for one round.
type memorySource struct {
	mu            sync.Mutex
	round         *model.RoundRecord
	apps          []model.ApplicationRecord
	contributions []model.ContributionRecord
	scores        []model.ReputationScore
	scoreCalls    int
}

func (s *memorySource) Round(_ context.Context, chainID int64, roundID string) (model.RoundRecord, error) {
	if s.round == nil || !strings.EqualFold(s.round.ID, roundID) {
		return model.RoundRecord{}, model.NewNotFound("round", chainID, roundID)
	}
	return *s.round, nil
}

// Applications and Contributions match the stored id exactly, like bucket keys.
func (s *memorySource) Applications(_ context.Context, chainID int64, roundID string) ([]model.ApplicationRecord, error) {
	if s.round == nil || s.round.ID != roundID {
		return nil, model.NewNotFound("document", chainID, roundID)
	}
	return s.apps, nil
}

func (s *memorySource) Contributions(_ context.Context, chainID int64, roundID string) ([]model.ContributionRecord, error) {
	if s.round == nil || s.round.ID != roundID {
		return nil, model.NewNotFound("document", chainID, roundID)
	}
	return s.contributions, nil
}

func (s *memorySource) ReputationScores(context.Context) ([]model.ReputationScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scoreCalls++
	return s.scores, nil
}
