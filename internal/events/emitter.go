// Package events is a small typed publish/subscribe utility.
//
// Events carry their own kind, so listeners subscribe to a kind value rather
// than a free-form string, and every subscription returns a handle that
// removes exactly that listener.
package events

import "sync"

// Event is any payload that reports the kind it belongs to.
type Event[K comparable] interface {
	EventKind() K
}

// Listener receives emitted events.
type Listener[E any] func(E)

type listener[E any] struct {
	id uint64
	fn Listener[E]
}

// Emitter dispatches events to listeners registered per kind and to
// catch-all listeners.
//
// Thread-safety: all methods are safe for concurrent use. Listeners run on
// the emitting goroutine, outside the emitter's lock, so a listener may
// subscribe or unsubscribe without deadlocking.
type Emitter[K comparable, E Event[K]] struct {
	mu     sync.Mutex
	nextID uint64
	byKind map[K][]listener[E]
	all    []listener[E]
}

// NewEmitter creates an emitter with no listeners.
func NewEmitter[K comparable, E Event[K]]() *Emitter[K, E] {
	return &Emitter[K, E]{byKind: make(map[K][]listener[E])}
}

// Subscription removes its listener when Unsubscribe is called.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the listener. Calling it more than once is harmless.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// On registers fn for events of the given kind.
func (e *Emitter[K, E]) On(kind K, fn Listener[E]) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.byKind[kind] = append(e.byKind[kind], listener[E]{id: id, fn: fn})

	return &Subscription{cancel: func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.byKind[kind] = without(e.byKind[kind], id)
		if len(e.byKind[kind]) == 0 {
			delete(e.byKind, kind)
		}
	}}
}

// OnAny registers fn for every event regardless of kind.
func (e *Emitter[K, E]) OnAny(fn Listener[E]) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.all = append(e.all, listener[E]{id: id, fn: fn})

	return &Subscription{cancel: func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.all = without(e.all, id)
	}}
}

// Emit delivers ev to the kind's listeners in subscription order, then to
// catch-all listeners. It reports whether any listener received the event.
//
// The listener set is copied before dispatch; listeners added or removed
// during an Emit take effect from the next one.
func (e *Emitter[K, E]) Emit(ev E) bool {
	e.mu.Lock()
	targets := make([]listener[E], 0, len(e.byKind[ev.EventKind()])+len(e.all))
	targets = append(targets, e.byKind[ev.EventKind()]...)
	targets = append(targets, e.all...)
	e.mu.Unlock()

	for _, l := range targets {
		l.fn(ev)
	}
	return len(targets) > 0
}

// ListenerCount returns the number of listeners for a kind, excluding
// catch-all listeners.
func (e *Emitter[K, E]) ListenerCount(kind K) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.byKind[kind])
}

func without[E any](ls []listener[E], id uint64) []listener[E] {
	out := make([]listener[E], 0, len(ls))
	for _, l := range ls {
		if l.id != id {
			out = append(out, l)
		}
	}
	return out
}
