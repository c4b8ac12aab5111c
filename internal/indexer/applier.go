package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// Applier is the entry point for ingested changes. Single donations go to the
// donation queue and reach the store on the next flush; every other change is
// written synchronously through the sequencer.
type Applier struct {
	writer ChangeWriter
	queue  *DonationQueue
	logger *slog.Logger
}

// NewApplier creates an applier writing through w and buffering donations
// in q.
func NewApplier(w ChangeWriter, q *DonationQueue, opts Options) *Applier {
	return &Applier{
		writer: w,
		queue:  q,
		logger: opts.component("applier"),
	}
}

// Apply applies one change. An InsertDonation is only enqueued; the error
// reports whether the queue accepted it.
func (a *Applier) Apply(ctx context.Context, change model.DataChange) error {
	if change == nil {
		return fmt.Errorf("apply: nil change")
	}
	if d, ok := change.(model.InsertDonation); ok {
		if err := a.queue.Enqueue(d.Donation); err != nil {
			return fmt.Errorf("apply %s %s: %w", change.Kind(), d.Donation.ID, err)
		}
		return nil
	}
	if _, err := a.writer.Write(ctx, change); err != nil {
		return err
	}
	return nil
}

// ApplyAll applies changes in order and stops at the first failure. It
// returns how many changes were accepted before it stopped.
func (a *Applier) ApplyAll(ctx context.Context, changes []model.DataChange) (int, error) {
	for i, c := range changes {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := a.Apply(ctx, c); err != nil {
			a.logger.Error("change rejected", "index", i, "kind", kindOf(c), "error", err)
			return i, fmt.Errorf("change %d: %w", i, err)
		}
	}
	return len(changes), nil
}

func kindOf(c model.DataChange) string {
	if c == nil {
		return ""
	}
	return string(c.Kind())
}
