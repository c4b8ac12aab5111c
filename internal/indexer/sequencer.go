package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shuoer86/grants-stack-indexer/internal/metrics"
	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// ChangeStore persists changes at a given seq. *store.Store implements it.
type ChangeStore interface {
	ApplyChange(ctx context.Context, seq int64, change model.DataChange) (applied bool, err error)
	LastChangeSeq(ctx context.Context) (int64, error)
}

// ChangeWriter writes one change immediately.
type ChangeWriter interface {
	Write(ctx context.Context, change model.DataChange) (applied bool, err error)
}

// Sequencer stamps each change with the next seq and writes it. Writes are
// serialized, so log order equals seq order even with concurrent callers.
type Sequencer struct {
	store   ChangeStore
	clock   *Clock
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu sync.Mutex
}

var _ ChangeWriter = (*Sequencer)(nil)

// NewSequencer creates a sequencer whose clock resumes after the store's last
// logged seq.
func NewSequencer(ctx context.Context, st ChangeStore, opts Options) (*Sequencer, error) {
	last, err := st.LastChangeSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("new sequencer: %w", err)
	}
	return &Sequencer{
		store:   st,
		clock:   NewClockAt(last),
		metrics: opts.Metrics,
		logger:  opts.component("sequencer"),
	}, nil
}

// Write applies change at the next seq.
func (s *Sequencer) Write(ctx context.Context, change model.DataChange) (bool, error) {
	if change == nil {
		return false, fmt.Errorf("write change: nil change")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.clock.Next()
	kind := string(change.Kind())
	applied, err := s.store.ApplyChange(ctx, seq, change)
	if err != nil {
		return false, err
	}
	if !applied {
		s.metrics.IncChangesSkipped(kind)
		s.logger.Debug("change already logged", "seq", seq, "kind", kind)
		return false, nil
	}
	s.metrics.IncChangesApplied(kind)
	s.logger.Debug("change applied", "seq", seq, "kind", kind)
	return true, nil
}

// LastSeq returns the last seq handed out.
func (s *Sequencer) LastSeq() int64 {
	return s.clock.Current()
}
