// Package testutil provides deterministic collaborators for tests: a manual
// timer source and an in-memory recording backend.
package testutil

import (
	"slices"
	"sync"
	"time"
)

// ManualClock is a timer source that only advances when told to.
//
// Scheduled functions run synchronously inside Advance, on the caller's
// goroutine, in due-time order (ties in scheduling order). A function that
// schedules another timer due within the same Advance sees it fire too.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Duration
	nextID int
	timers []*manualTimer
}

type manualTimer struct {
	id  int
	due time.Duration
	fn  func()
}

// NewManualClock creates a clock at time zero with no timers.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// AfterFunc schedules f to run once d has elapsed on this clock.
func (c *ManualClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	t := &manualTimer{id: c.nextID, due: c.now + d, fn: f}
	c.timers = append(c.timers, t)

	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, pending := range c.timers {
			if pending == t {
				c.timers = slices.Delete(c.timers, i, i+1)
				return true
			}
		}
		return false
	}
}

// Advance moves the clock forward by d, running every timer that becomes due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.popDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.due
		c.mu.Unlock()

		next.fn()
	}
}

func (c *ManualClock) popDueLocked(target time.Duration) *manualTimer {
	best := -1
	for i, t := range c.timers {
		if t.due > target {
			continue
		}
		if best < 0 || t.due < c.timers[best].due || (t.due == c.timers[best].due && t.id < c.timers[best].id) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	t := c.timers[best]
	c.timers = slices.Delete(c.timers, best, best+1)
	return t
}

// Now returns the elapsed time since the clock was created.
func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Pending returns the number of scheduled timers.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// NextDue returns the delay until the earliest pending timer.
func (c *ManualClock) NextDue() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return 0, false
	}
	due := c.timers[0].due
	for _, t := range c.timers[1:] {
		due = min(due, t.due)
	}
	return due - c.now, true
}
