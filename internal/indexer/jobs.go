package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shuoer86/grants-stack-indexer/internal/scheduler"
	"github.com/shuoer86/grants-stack-indexer/internal/store"
)

// Job names.
const (
	FlushJobName     = "donation-flush"
	RecomputeJobName = "stats-recompute"
)

type periodicJob struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

func (j periodicJob) Name() string                  { return j.name }
func (j periodicJob) Interval() time.Duration       { return j.interval }
func (j periodicJob) Run(ctx context.Context) error { return j.run(ctx) }

// FlushJob flushes q every interval.
func FlushJob(q *DonationQueue, interval time.Duration) scheduler.Job {
	return periodicJob{
		name:     FlushJobName,
		interval: interval,
		run: func(ctx context.Context) error {
			_, err := q.Flush(ctx)
			return err
		},
	}
}

// StatsRecomputer rebuilds donation aggregates. *store.Store implements it.
type StatsRecomputer interface {
	RecomputeDonationStats(ctx context.Context) (store.RecomputeResult, error)
}

// StatsJob recomputes every round and application donation aggregate from the
// donations table every interval. It repairs drift left by dropped flush
// chunks or double-counted increments.
func StatsJob(r StatsRecomputer, interval time.Duration, opts Options) scheduler.Job {
	logger := opts.component("stats-recalculator")
	return periodicJob{
		name:     RecomputeJobName,
		interval: interval,
		run: func(ctx context.Context) error {
			return recomputeStats(ctx, r, logger)
		},
	}
}

func recomputeStats(ctx context.Context, r StatsRecomputer, logger *slog.Logger) error {
	start := time.Now()
	res, err := r.RecomputeDonationStats(ctx)
	if err != nil {
		return fmt.Errorf("recompute stats: %w", err)
	}
	logger.Info("donation stats recomputed",
		"rounds", res.Rounds,
		"applications", res.Applications,
		"duration", time.Since(start))
	return nil
}
