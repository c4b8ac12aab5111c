package buffer

import "sync"

// Queue is an unbounded, concurrency-safe FIFO buffer with many producers and
// one consumer. Producers Enqueue; the consumer takes everything at once with
// Drain.
//
// Drain swaps the backing slice under the lock, so an item is either in the
// drained batch or still queued, never both and never lost to a concurrent
// Enqueue.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{items: make([]T, 0, 64)}
}

// Enqueue appends items to the back of the queue.
// Returns false, and enqueues nothing, if the queue is closed.
func (q *Queue[T]) Enqueue(items ...T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if len(items) == 0 {
		return true
	}

	q.items = append(q.items, items...)
	return true
}

// Drain removes and returns every queued item in enqueue order. Returns nil
// when the queue is empty.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = make([]T, 0, cap(out))
	return out
}

// Len returns the current queue length.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further Enqueue calls. Items already queued stay drainable.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Chunk splits items into consecutive slices of at most size elements,
// preserving order. A size <= 0 yields a single chunk.
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]T{items}
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}
