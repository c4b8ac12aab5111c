package calculator

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shuoer86/grants-stack-indexer/internal/logging"
	"github.com/shuoer86/grants-stack-indexer/internal/metrics"
	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// InputSource supplies the records of a round. Missing records are reported
// as model.NotFoundError.
type InputSource interface {
	Round(ctx context.Context, chainID int64, roundID string) (model.RoundRecord, error)
	Applications(ctx context.Context, chainID int64, roundID string) ([]model.ApplicationRecord, error)
	Contributions(ctx context.Context, chainID int64, roundID string) ([]model.ContributionRecord, error)
	ReputationScores(ctx context.Context) ([]model.ReputationScore, error)
}

// Request asks for the matches of one round.
type Request struct {
	ChainID          int64
	RoundID          string
	Overrides        Overrides
	IgnoreSaturation bool
}

// Result is the outcome of one run.
type Result struct {
	RunID      string            `json:"runId"`
	ChainID    int64             `json:"chainId"`
	RoundID    string            `json:"roundId"`
	MatchToken string            `json:"matchToken"`
	MatchPool  model.Amount      `json:"matchPool"`
	Matches    []AugmentedResult `json:"matches"`
}

// Calculator runs the matching pipeline:
// InputSource → eligibility → LinearQF → Augment.
type Calculator struct {
	source         InputSource
	oracle         PriceOracle
	workers        int
	sybilThreshold *decimal.Decimal
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithOracleWorkers bounds concurrent price lookups per run.
func WithOracleWorkers(n int) Option {
	return func(c *Calculator) { c.workers = n }
}

// WithSybilThreshold makes sybil defense require a raw score strictly above
// t instead of a passing evidence flag.
func WithSybilThreshold(t decimal.Decimal) Option {
	return func(c *Calculator) { c.sybilThreshold = &t }
}

// WithMetrics records run counts and durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Calculator) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Calculator) { c.logger = l }
}

// New creates a calculator.
func New(source InputSource, oracle PriceOracle, opts ...Option) *Calculator {
	c := &Calculator{
		source:  source,
		oracle:  oracle,
		workers: DefaultOracleWorkers,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "calculator")
	return c
}

// Calculate computes the augmented matches of a round. A missing round,
// match amount, match token, token decimals or application fails the run
// with a NotFound error; nothing is defaulted.
func (c *Calculator) Calculate(ctx context.Context, req Request) (res Result, err error) {
	start := time.Now()
	runID := newRunID()
	ctx = logging.WithRunID(ctx, runID)
	logger := c.logger.With("run_id", runID, "chain_id", req.ChainID, "round_id", req.RoundID)
	defer func() {
		c.metrics.ObserveCalculation(time.Since(start).Seconds(), err)
		if err != nil {
			logger.Error("calculation failed", "error", err)
		}
	}()

	round, err := c.source.Round(ctx, req.ChainID, req.RoundID)
	if err != nil {
		return Result{}, fmt.Errorf("calculate: %w", err)
	}
	// Round ids resolve case-insensitively; documents are keyed by the stored id.
	roundID := round.ID
	if !round.MatchAmount.IsSet() {
		return Result{}, fmt.Errorf("calculate: %w", model.NewNotFound("match amount", req.ChainID, roundID))
	}
	if round.MatchTokenAddress == "" {
		return Result{}, fmt.Errorf("calculate: %w", model.NewNotFound("match token", req.ChainID, roundID))
	}
	decimals, ok := round.Decimals()
	if !ok {
		return Result{}, fmt.Errorf("calculate: %w", model.NewNotFound("match token decimals", req.ChainID, roundID))
	}
	token := MatchToken{ChainID: req.ChainID, Address: round.MatchTokenAddress, Decimals: decimals}

	apps, err := c.source.Applications(ctx, req.ChainID, roundID)
	if err != nil {
		return Result{}, fmt.Errorf("calculate: %w", err)
	}
	contributions, err := c.source.Contributions(ctx, req.ChainID, roundID)
	if err != nil {
		return Result{}, fmt.Errorf("calculate: %w", err)
	}

	qfConfig := round.Metadata.QuadraticFundingConfig
	policy := Eligibility{SybilDefense: qfConfig.SybilDefense, Threshold: c.sybilThreshold}
	scores := ScoreIndex{}
	if policy.SybilDefense {
		list, err := c.source.ReputationScores(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("calculate: %w", err)
		}
		scores = NewScoreIndex(list)
	}

	opts, err := c.options(ctx, round, token, req)
	if err != nil {
		return Result{}, fmt.Errorf("calculate: %w", err)
	}

	eligible := FilterEligible(contributions, scores, policy, req.Overrides)
	logger.Debug("contributions filtered",
		"total", len(contributions),
		"eligible", len(eligible),
		"overrides", len(req.Overrides))

	calcs, err := LinearQF(eligible, round.MatchAmount.Big(), token.Decimals, opts)
	if err != nil {
		return Result{}, fmt.Errorf("calculate: %w", err)
	}

	byID := make(map[string]model.ApplicationRecord, len(apps))
	for _, a := range apps {
		byID[a.ID] = a
	}
	matches, err := Augment(ctx, calcs, byID, c.oracle, token, c.workers)
	if err != nil {
		return Result{}, fmt.Errorf("calculate: %w", err)
	}

	logger.Info("calculation finished",
		"recipients", len(matches),
		"duration", time.Since(start))
	return Result{
		RunID:      runID,
		ChainID:    req.ChainID,
		RoundID:    roundID,
		MatchToken: token.Address,
		MatchPool:  round.MatchAmount,
		Matches:    matches,
	}, nil
}

// options derives the engine options from the round's configuration.
func (c *Calculator) options(ctx context.Context, round model.RoundRecord, token MatchToken, req Request) (Options, error) {
	opts := Options{IgnoreSaturation: req.IgnoreSaturation}
	qf := round.Metadata.QuadraticFundingConfig
	pool := round.MatchAmount.Big()

	if pct, ok := qf.CapPercent(); ok {
		opts.MatchingCapAmount = MatchingCap(pool, pct)
	}
	if usd, ok := qf.MinimumUSD(); ok && usd.IsPositive() {
		one := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(token.Decimals)), nil)
		tokenUSD, err := c.oracle.AmountToUSD(ctx, token.ChainID, token.Address, token.Decimals, one)
		if err != nil {
			return Options{}, fmt.Errorf("price match token: %w", err)
		}
		minimum, err := MinimumAmount(usd, tokenUSD, token.Decimals)
		if err != nil {
			return Options{}, err
		}
		opts.MinimumAmount = minimum
	}
	return opts, nil
}

// MatchingCap returns pool × pct / 100, rounded down. pct is a percentage
// with up to two decimal places.
func MatchingCap(pool *big.Int, pct decimal.Decimal) *big.Int {
	bps := pct.Round(2).Shift(2).BigInt()
	out := new(big.Int).Mul(pool, bps)
	return out.Quo(out, big.NewInt(10_000))
}

// MinimumAmount converts a USD threshold into match token base units given
// the USD price of one whole token, rounding down.
func MinimumAmount(usd, tokenUSD decimal.Decimal, decimals int) (*big.Int, error) {
	if !tokenUSD.IsPositive() {
		return nil, configErrorf("match token price must be positive to apply a minimum donation, got %s", tokenUSD)
	}
	units := usd.Round(6).Shift(int32(decimals)).Div(tokenUSD).Floor()
	return units.BigInt(), nil
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
