package indexer

import "sync/atomic"

// Clock hands out the logical sequence numbers stamped on changes.
//
// Seqs are strictly increasing and never reused within a process. A clock
// resumed with NewClockAt(last) continues after the last logged change, so
// the change log stays ordered across restarts. A seq whose write fails is
// simply skipped; gaps are allowed.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first seq is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose first seq is last+1.
func NewClockAt(last int64) *Clock {
	c := &Clock{}
	c.seq.Store(last)
	return c
}

// Next returns the next seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last seq handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
