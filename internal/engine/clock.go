package engine

import "sync/atomic"

// Clock is a monotonic logical clock for ordering staged outbox entries.
//
// Every entry staged by a persistence cycle is stamped with Next(). Recovery
// replays entries in seq order, so creates staged before updates of the same
// session are replayed first regardless of wall-clock skew.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Observe moves the clock forward to seq if it is behind. Used after reading
// entries a previous session staged, so new entries sort after them.
func (c *Clock) Observe(seq int64) {
	for {
		cur := c.seq.Load()
		if seq <= cur || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}
