package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/shuoer86/grants-stack-indexer/internal/scheduler"
	"github.com/shuoer86/grants-stack-indexer/internal/store"
)

// Config tunes the indexer's background work.
type Config struct {
	FlushInterval     time.Duration
	RecomputeInterval time.Duration
	ChunkSize         int
	TokenCacheSize    int
}

// DefaultConfig returns the intervals and sizes used when none are
// configured.
func DefaultConfig() Config {
	return Config{
		FlushInterval:     time.Second,
		RecomputeInterval: time.Minute,
		ChunkSize:         store.MaxDonationChunk,
		TokenCacheSize:    DefaultTokenCacheSize,
	}
}

// Service wires the change pipeline of one namespace: sequencer, applier,
// donation queue, token cache and the periodic flush and recompute jobs.
type Service struct {
	Store     *store.Store
	Sequencer *Sequencer
	Applier   *Applier
	Queue     *DonationQueue
	Tokens    *RoundTokenCache

	scheduler *scheduler.Scheduler
}

// NewService builds the pipeline over st and registers its jobs on sched.
// The final donation flush is registered as a shutdown hook, so
// sched.Shutdown drains the queue after the jobs have stopped.
func NewService(ctx context.Context, st *store.Store, sched *scheduler.Scheduler, cfg Config, opts Options) (*Service, error) {
	def := DefaultConfig()
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.RecomputeInterval <= 0 {
		cfg.RecomputeInterval = def.RecomputeInterval
	}

	seq, err := NewSequencer(ctx, st, opts)
	if err != nil {
		return nil, err
	}
	queue := NewDonationQueue(seq, cfg.ChunkSize, opts)
	tokens, err := NewRoundTokenCache(st, cfg.TokenCacheSize, opts)
	if err != nil {
		return nil, fmt.Errorf("new service: %w", err)
	}

	if err := sched.Register(FlushJob(queue, cfg.FlushInterval)); err != nil {
		return nil, fmt.Errorf("new service: %w", err)
	}
	if err := sched.Register(StatsJob(st, cfg.RecomputeInterval, opts)); err != nil {
		return nil, fmt.Errorf("new service: %w", err)
	}
	sched.OnShutdown("final-donation-flush", queue.Close)

	return &Service{
		Store:     st,
		Sequencer: seq,
		Applier:   NewApplier(seq, queue, opts),
		Queue:     queue,
		Tokens:    tokens,
		scheduler: sched,
	}, nil
}

// Start starts the periodic jobs.
func (s *Service) Start() {
	s.scheduler.Start()
}

// Shutdown stops the jobs and performs the final donation flush.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.scheduler.Shutdown(ctx)
}
