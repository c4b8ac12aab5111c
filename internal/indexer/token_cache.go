package indexer

import (
	"context"

	"github.com/shuoer86/grants-stack-indexer/internal/buffer"
)

// DefaultTokenCacheSize bounds the round token cache when no size is
// configured.
const DefaultTokenCacheSize = 1000

// TokenLookup resolves a round's match token. *store.Store implements it.
type TokenLookup interface {
	GetRoundMatchTokenAddress(ctx context.Context, chainID int64, roundID string) (string, error)
}

type roundKey struct {
	ChainID int64
	RoundID string
}

// RoundTokenCache memoizes the match token address of each round. A round's
// match token never changes after creation, so entries are never
// invalidated; they leave only through LRU eviction. Lookup failures,
// including not-found rounds, are not cached.
type RoundTokenCache struct {
	cache *buffer.Cache[roundKey, string]
}

// NewRoundTokenCache creates a cache of at most size rounds over lookup.
func NewRoundTokenCache(lookup TokenLookup, size int, opts Options) (*RoundTokenCache, error) {
	if size <= 0 {
		size = DefaultTokenCacheSize
	}
	c, err := buffer.NewCache(size, func(ctx context.Context, k roundKey) (string, error) {
		return lookup.GetRoundMatchTokenAddress(ctx, k.ChainID, k.RoundID)
	})
	if err != nil {
		return nil, err
	}
	opts.Metrics.RegisterCacheStats("round_token", c.Stats)
	return &RoundTokenCache{cache: c}, nil
}

// Get returns the match token address of a round.
func (c *RoundTokenCache) Get(ctx context.Context, chainID int64, roundID string) (string, error) {
	return c.cache.Get(ctx, roundKey{ChainID: chainID, RoundID: roundID})
}

// Len returns the number of cached rounds.
func (c *RoundTokenCache) Len() int {
	return c.cache.Len()
}

// Stats returns cache hits and misses.
func (c *RoundTokenCache) Stats() (hits, misses int64) {
	return c.cache.Stats()
}
