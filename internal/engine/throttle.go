package engine

import (
	"sync"
	"time"
)

// Timers schedules delayed calls. The returned function cancels the call and
// reports whether it was still pending.
type Timers interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realTimers struct{}

func (realTimers) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// throttle coalesces triggers into one trailing call per window.
//
// The first Trigger arms a timer; triggers while it is armed are absorbed.
// When the timer fires, fn runs once and the next Trigger arms a new window.
// There is no leading call.
type throttle struct {
	mu     sync.Mutex
	window time.Duration
	timers Timers
	fn     func()
	stop   func() bool
}

func newThrottle(window time.Duration, timers Timers, fn func()) *throttle {
	return &throttle{window: window, timers: timers, fn: fn}
}

// Trigger arms the throttle if it is not already armed.
func (t *throttle) Trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	t.stop = t.timers.AfterFunc(t.window, t.fire)
}

func (t *throttle) fire() {
	t.mu.Lock()
	t.stop = nil
	t.mu.Unlock()
	t.fn()
}

// Cancel disarms a pending call. Reports whether one was pending.
func (t *throttle) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop == nil {
		return false
	}
	stopped := t.stop()
	t.stop = nil
	return stopped
}

// Armed reports whether a call is pending.
func (t *throttle) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}
