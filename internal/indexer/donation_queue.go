package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shuoer86/grants-stack-indexer/internal/buffer"
	"github.com/shuoer86/grants-stack-indexer/internal/metrics"
	"github.com/shuoer86/grants-stack-indexer/internal/model"
	"github.com/shuoer86/grants-stack-indexer/internal/store"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("donation queue closed")

// FlushResult summarizes one flush.
type FlushResult struct {
	Donations int // donations in chunks that were written
	Chunks    int // chunks written
	Failed    int // donations in chunks that failed and were dropped
}

// DonationQueue buffers single-donation inserts and writes them in bulk.
//
// A flush takes the whole queue in one atomic swap, splits it into chunks of
// at most ChunkSize donations, and writes the chunks one after another in
// enqueue order, each as a single NewDonations change. Order is guaranteed
// only within one flush.
//
// Durability: a donation is durable only once the flush containing it has
// written its chunk. Donations still queued when the process dies are lost,
// and a chunk that fails to write is logged, counted and dropped rather than
// retried. Close performs a final flush; the periodic stats recompute and
// upstream re-ingestion cover what is lost.
type DonationQueue struct {
	queue     *buffer.Queue[model.Donation]
	writer    ChangeWriter
	chunkSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger

	flushMu sync.Mutex // one flush at a time
}

// NewDonationQueue creates a queue flushing through w. A chunkSize <= 0 or
// above store.MaxDonationChunk is clamped to store.MaxDonationChunk.
func NewDonationQueue(w ChangeWriter, chunkSize int, opts Options) *DonationQueue {
	if chunkSize <= 0 || chunkSize > store.MaxDonationChunk {
		chunkSize = store.MaxDonationChunk
	}
	return &DonationQueue{
		queue:     buffer.NewQueue[model.Donation](),
		writer:    w,
		chunkSize: chunkSize,
		metrics:   opts.Metrics,
		logger:    opts.component("donation-queue"),
	}
}

// ChunkSize returns the maximum donations written per chunk.
func (q *DonationQueue) ChunkSize() int {
	return q.chunkSize
}

// Enqueue appends donations to the queue.
func (q *DonationQueue) Enqueue(donations ...model.Donation) error {
	if !q.queue.Enqueue(donations...) {
		return ErrQueueClosed
	}
	q.metrics.SetQueueDepth(q.queue.Len())
	return nil
}

// Len returns the number of queued donations.
func (q *DonationQueue) Len() int {
	return q.queue.Len()
}

// Flush writes everything queued at the moment of the call. Donations
// enqueued while the flush runs wait for the next one. Every chunk is
// attempted; failures are joined into the returned error.
func (q *DonationQueue) Flush(ctx context.Context) (FlushResult, error) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	var res FlushResult
	pending := q.queue.Drain()
	q.metrics.SetQueueDepth(q.queue.Len())
	if len(pending) == 0 {
		return res, nil
	}

	start := time.Now()
	var errs []error
	for i, chunk := range buffer.Chunk(pending, q.chunkSize) {
		if _, err := q.writer.Write(ctx, model.NewDonations{Donations: chunk}); err != nil {
			res.Failed += len(chunk)
			q.metrics.IncFlushFailures()
			q.logger.Error("donation chunk dropped",
				"chunk", i,
				"size", len(chunk),
				"first_id", chunk[0].ID,
				"error", err)
			errs = append(errs, fmt.Errorf("chunk %d: %w", i, err))
			continue
		}
		res.Chunks++
		res.Donations += len(chunk)
		q.metrics.AddDonationsFlushed(len(chunk))
	}

	q.logger.Info("donations flushed",
		"donations", res.Donations,
		"chunks", res.Chunks,
		"failed", res.Failed,
		"duration", time.Since(start))
	if len(errs) > 0 {
		return res, fmt.Errorf("flush donations: %w", errors.Join(errs...))
	}
	return res, nil
}

// Close rejects further enqueues and flushes what is left.
func (q *DonationQueue) Close(ctx context.Context) error {
	q.queue.Close()
	_, err := q.Flush(ctx)
	return err
}
