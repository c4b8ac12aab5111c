// Package scheduler runs the indexer's periodic jobs.
//
// Each job runs on its own fixed interval in singleton mode: a run that is
// still in progress when the next firing comes due makes that firing be
// skipped and rescheduled, so a job never overlaps itself. Different jobs may
// run concurrently.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/shuoer86/grants-stack-indexer/internal/metrics"
)

// Job is a periodic task.
type Job interface {
	Name() string
	Interval() time.Duration
	// Run performs one pass. The context is cancelled once the scheduler
	// has shut down.
	Run(ctx context.Context) error
}

// Hook runs once during Shutdown, after every job has stopped.
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// Scheduler owns the clock and the gocron scheduler driving registered jobs.
type Scheduler struct {
	cron    gocron.Scheduler
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	jobs     map[string]struct{}
	hooks    []namedHook
	started  bool
	shutdown bool
}

type options struct {
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *metrics.Metrics
	stopTimeout time.Duration
}

// Option configures a Scheduler.
type Option func(*options)

// WithClock sets the clock driving job timers. Tests pass a fake clock.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records job durations and failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithStopTimeout bounds how long Shutdown waits for running jobs.
func WithStopTimeout(d time.Duration) Option {
	return func(o *options) { o.stopTimeout = d }
}

// New creates a stopped scheduler.
func New(opts ...Option) (*Scheduler, error) {
	o := options{
		clock:       clockwork.NewRealClock(),
		logger:      slog.Default(),
		stopTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	cron, err := gocron.NewScheduler(
		gocron.WithClock(o.clock),
		gocron.WithStopTimeout(o.stopTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron,
		clock:   o.clock,
		logger:  o.logger.With("component", "scheduler"),
		metrics: o.metrics,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]struct{}),
	}, nil
}

// Clock returns the scheduler's clock.
func (s *Scheduler) Clock() clockwork.Clock {
	return s.clock
}

// Register adds a job. Names must be unique and intervals positive.
func (s *Scheduler) Register(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if s.shutdown {
		return fmt.Errorf("register job %s: scheduler is shut down", name)
	}
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("register job %s: duplicate name", name)
	}
	if job.Interval() <= 0 {
		return fmt.Errorf("register job %s: interval must be positive, got %s", name, job.Interval())
	}

	_, err := s.cron.NewJob(
		gocron.DurationJob(job.Interval()),
		gocron.NewTask(s.task(job)),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	s.jobs[name] = struct{}{}
	s.logger.Info("job registered", "job", name, "interval", job.Interval())
	return nil
}

// OnShutdown adds a hook run by Shutdown. Hooks run in registration order.
func (s *Scheduler) OnShutdown(name string, hook Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, namedHook{name: name, fn: hook})
}

// Start begins firing registered jobs. It does not block.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.shutdown {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Shutdown stops firing jobs, waits for in-flight runs, cancels the job
// context, then runs the shutdown hooks with ctx. Every hook runs even if an
// earlier one fails; the errors are joined. Calling Shutdown again is a no-op.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	hooks := append([]namedHook(nil), s.hooks...)
	s.mu.Unlock()

	var errs []error
	if err := s.cron.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("stop jobs: %w", err))
	}
	s.cancel()

	for _, h := range hooks {
		if err := h.fn(ctx); err != nil {
			s.logger.Error("shutdown hook failed", "hook", h.name, "error", err)
			errs = append(errs, fmt.Errorf("shutdown hook %s: %w", h.name, err))
			continue
		}
		s.logger.Debug("shutdown hook done", "hook", h.name)
	}
	s.logger.Info("scheduler stopped")
	return errors.Join(errs...)
}

func (s *Scheduler) task(job Job) func() {
	name := job.Name()
	return func() {
		start := s.clock.Now()
		err := job.Run(s.ctx)
		elapsed := s.clock.Since(start)
		s.metrics.ObserveJob(name, elapsed.Seconds(), err)
		if err != nil {
			s.logger.Error("job failed", "job", name, "error", err)
			return
		}
		s.logger.Debug("job finished", "job", name, "duration", elapsed)
	}
}
