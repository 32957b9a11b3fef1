package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/koppla/internal/identity"
	"github.com/roach88/koppla/internal/model"
	"github.com/roach88/koppla/internal/outbox"
	"github.com/roach88/koppla/internal/registry"
)

const (
	// DefaultThrottle is the trailing window that coalesces local edits.
	DefaultThrottle = time.Second

	// DefaultRetryInitial is the first delay after a failed cycle.
	DefaultRetryInitial = 500 * time.Millisecond

	// DefaultRetryMax caps the delay between retries.
	DefaultRetryMax = 30 * time.Second

	// DefaultMaxAttempts is the number of consecutive failed cycles after which
	// automatic retry stops. Pending mutations stay queued.
	DefaultMaxAttempts = 8
)

// kindState is the cache, identity index and queues of one entity kind.
type kindState[R any] struct {
	kind  model.EntityKind
	index *identity.Index[R]
	q     *mutationQueues
	setID func(*R, string)
}

func newKindState[R any](kind model.EntityKind, setID func(*R, string)) *kindState[R] {
	return &kindState[R]{
		kind:  kind,
		index: identity.New[R](),
		q:     newMutationQueues(),
		setID: setID,
	}
}

// Store is the graph store: record cache, identity maps, mutation queues and
// the synchronization engine against a Backend.
//
// CRITICAL: the store never calls the backend or the outbox while holding mu.
// Persistence cycles capture under the lock, submit without it, and apply
// results under it again.
type Store struct {
	mu      sync.Mutex
	backend Backend
	types   *registry.Registry
	outbox  outbox.Outbox
	tempIDs IDGenerator
	clock   *Clock
	timers  Timers
	logger  *slog.Logger

	nodes *kindState[model.NodeRecord]
	edges *kindState[model.EdgeRecord]

	throttleWindow time.Duration
	throttle       *throttle
	flight         singleflight.Group

	retry       *backoff.ExponentialBackOff
	maxAttempts int
	failures    int
	stopRetry   func() bool
	closed      bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRegistry sets the type registry the store loads into.
func WithRegistry(r *registry.Registry) Option {
	return func(s *Store) { s.types = r }
}

// WithOutbox sets the staging area. Default: an in-memory outbox.
func WithOutbox(o outbox.Outbox) Option {
	return func(s *Store) { s.outbox = o }
}

// WithTempIDs sets the temp id generator. Default: UUIDGenerator.
func WithTempIDs(g IDGenerator) Option {
	return func(s *Store) { s.tempIDs = g }
}

// WithTimers sets the timer source for the throttle and retries.
func WithTimers(t Timers) Option {
	return func(s *Store) { s.timers = t }
}

// WithThrottle sets the trailing throttle window. Default: DefaultThrottle.
func WithThrottle(d time.Duration) Option {
	return func(s *Store) { s.throttleWindow = d }
}

// WithRetry configures backoff between failed cycles.
//
// Delays start at initial, grow exponentially up to maxInterval, and stop after
// maxAttempts consecutive failed cycles. Jitter is disabled so retry timing
// is reproducible.
func WithRetry(initial, maxInterval time.Duration, maxAttempts int) Option {
	return func(s *Store) {
		s.retry.InitialInterval = initial
		s.retry.MaxInterval = maxInterval
		s.maxAttempts = maxAttempts
		s.retry.Reset()
	}
}

// New creates a Store backed by b.
func New(b Backend, opts ...Option) *Store {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = DefaultRetryInitial
	retry.MaxInterval = DefaultRetryMax
	retry.RandomizationFactor = 0
	retry.Reset()

	s := &Store{
		backend:        b,
		types:          registry.New(),
		outbox:         outbox.NewMemory(),
		tempIDs:        UUIDGenerator{},
		clock:          NewClock(),
		timers:         realTimers{},
		logger:         slog.Default(),
		nodes:          newKindState(model.KindNode, func(r *model.NodeRecord, id string) { r.ID = id }),
		edges:          newKindState(model.KindEdge, func(r *model.EdgeRecord, id string) { r.ID = id }),
		throttleWindow: DefaultThrottle,
		retry:          retry,
		maxAttempts:    DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.throttle = newThrottle(s.throttleWindow, s.timers, s.scheduledCycle)
	return s
}

// Registry returns the type registry the store loads into.
func (s *Store) Registry() *registry.Registry {
	return s.types
}

// SetNode writes the record for a node handle and queues it for persistence.
//
// A handle seen for the first time without an id gets a temp id and is queued
// for creation; a handle whose create is still queued just refreshes the
// queued state; anything else is queued for update. The returned record is
// what the cache now holds.
func (s *Store) SetNode(h model.Handle, data model.NodeRecord) (model.NodeRecord, error) {
	data.Handle = h
	data.EdgesOutgoing = nil
	data.EdgesIncoming = nil

	s.mu.Lock()
	rec, err := set(s.nodes, h, data.ID, s.tempIDs.Generate, func(id string) model.NodeRecord {
		data.ID = id
		return data
	})
	s.mu.Unlock()
	if err != nil {
		return model.NodeRecord{}, fmt.Errorf("set node %d: %w", h, err)
	}

	s.schedule()
	return rec.Clone(), nil
}

// SetEdge writes the record for an edge handle and queues it for persistence.
// Both endpoint handles must have node records.
func (s *Store) SetEdge(h model.Handle, data model.EdgeRecord) (model.EdgeRecord, error) {
	data.Handle = h

	s.mu.Lock()
	if err := s.checkEndpointsLocked(data); err != nil {
		s.mu.Unlock()
		return model.EdgeRecord{}, fmt.Errorf("set edge %d: %w", h, err)
	}
	rec, err := set(s.edges, h, data.ID, s.tempIDs.Generate, func(id string) model.EdgeRecord {
		data.ID = id
		return data
	})
	if err == nil {
		rec = s.resolveEndpointsLocked(rec)
	}
	s.mu.Unlock()
	if err != nil {
		return model.EdgeRecord{}, fmt.Errorf("set edge %d: %w", h, err)
	}

	s.schedule()
	return rec, nil
}

// DeleteNode removes a node record and queues its deletion.
// Every edge incident to the node must have been deleted first.
func (s *Store) DeleteNode(h model.Handle) error {
	s.mu.Lock()
	for _, e := range s.edges.index.Entries() {
		if e.Record.StartHandle == h || e.Record.EndHandle == h {
			s.mu.Unlock()
			return fmt.Errorf("delete node %d: %w: edge %d still attached", h, ErrDanglingEndpoint, e.Handle)
		}
	}
	_, err := del(s.nodes, h)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete node %d: %w", h, err)
	}

	s.schedule()
	return nil
}

// DeleteEdge removes an edge record and queues its deletion.
func (s *Store) DeleteEdge(h model.Handle) error {
	s.mu.Lock()
	_, err := del(s.edges, h)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete edge %d: %w", h, err)
	}

	s.schedule()
	return nil
}

// NodeByHandle returns the record for a node handle.
func (s *Store) NodeByHandle(h model.Handle) (model.NodeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.nodes.index.Get(h)
	return e.Record.Clone(), ok
}

// NodeByID returns the record cached under id, which may be a backend id or
// a temp id that has not been remapped yet.
func (s *Store) NodeByID(id string) (model.NodeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.nodes.index.ByKey(id)
	return e.Record.Clone(), ok
}

// NodeHandleByID returns the handle cached under id.
func (s *Store) NodeHandleByID(id string) (model.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.nodes.index.ByKey(id)
	return e.Handle, ok
}

// NodeKey returns the cache key of a node and whether it is a temp id.
func (s *Store) NodeKey(h model.Handle) (key string, temp bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.nodes.index.Get(h)
	return e.Key, e.Temp, ok
}

// EdgeByHandle returns the record for an edge handle with endpoint ids
// resolved from the current node keys.
func (s *Store) EdgeByHandle(h model.Handle) (model.EdgeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges.index.Get(h)
	if !ok {
		return model.EdgeRecord{}, false
	}
	return s.resolveEndpointsLocked(e.Record), true
}

// EdgeByID returns the edge cached under id.
func (s *Store) EdgeByID(id string) (model.EdgeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges.index.ByKey(id)
	if !ok {
		return model.EdgeRecord{}, false
	}
	return s.resolveEndpointsLocked(e.Record), true
}

// EdgeHandleByID returns the handle cached under id.
func (s *Store) EdgeHandleByID(id string) (model.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges.index.ByKey(id)
	return e.Handle, ok
}

// Nodes returns every node record ordered by handle.
func (s *Store) Nodes() []model.NodeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.nodes.index.Entries()
	out := make([]model.NodeRecord, len(entries))
	for i, e := range entries {
		out[i] = e.Record.Clone()
	}
	return out
}

// Edges returns every edge record ordered by handle.
func (s *Store) Edges() []model.EdgeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.edges.index.Entries()
	out := make([]model.EdgeRecord, len(entries))
	for i, e := range entries {
		out[i] = s.resolveEndpointsLocked(e.Record)
	}
	return out
}

// Pending returns the queued mutation counts per kind.
func (s *Store) Pending() (nodes, edges QueueStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodes.q.stats(), s.edges.q.stats()
}

func (s *Store) NodeType(id model.NodeTypeID) (model.NodeType, bool) { return s.types.NodeType(id) }
func (s *Store) NodeTypes() []model.NodeType                         { return s.types.NodeTypes() }
func (s *Store) EdgeType(id model.EdgeTypeID) model.EdgeType         { return s.types.EdgeType(id) }
func (s *Store) EdgeTypes() []model.EdgeType                         { return s.types.EdgeTypes() }

// Close cancels pending timers and flushes whatever is still queued.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.stopRetry != nil {
		s.stopRetry()
		s.stopRetry = nil
	}
	s.mu.Unlock()
	return s.Flush(ctx)
}

func (s *Store) schedule() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		s.throttle.Trigger()
	}
}

func (s *Store) checkEndpointsLocked(e model.EdgeRecord) error {
	if _, ok := s.nodes.index.Get(e.StartHandle); !ok {
		return fmt.Errorf("%w: start node %d", ErrDanglingEndpoint, e.StartHandle)
	}
	if _, ok := s.nodes.index.Get(e.EndHandle); !ok {
		return fmt.Errorf("%w: end node %d", ErrDanglingEndpoint, e.EndHandle)
	}
	return nil
}

// resolveEndpointsLocked fills StartID and EndID from the endpoint nodes'
// backend ids. Endpoints still on a temp id are left empty.
func (s *Store) resolveEndpointsLocked(e model.EdgeRecord) model.EdgeRecord {
	e.StartID, e.EndID = "", ""
	if n, ok := s.nodes.index.Get(e.StartHandle); ok && !n.Temp {
		e.StartID = n.Key
	}
	if n, ok := s.nodes.index.Get(e.EndHandle); ok && !n.Temp {
		e.EndID = n.Key
	}
	return e
}

// set binds h to a key and queues the mutation. build receives the id the
// stored record should carry: the backend id, or "" while only a temp id exists.
func set[R any](ks *kindState[R], h model.Handle, id string, newTempID func() string, build func(id string) R) (R, error) {
	var zero R

	existing, known := ks.index.Get(h)
	var (
		key  string
		temp bool
	)
	switch {
	case known:
		if id != "" && id != existing.Key {
			return zero, fmt.Errorf("%w: handle %d is %q, got %q", ErrIDMismatch, h, existing.Key, id)
		}
		key, temp = existing.Key, existing.Temp
	case id != "":
		key = id
	default:
		key, temp = newTempID(), true
	}

	recID := key
	if temp {
		recID = ""
	}
	rec := build(recID)
	if err := ks.index.Put(h, key, temp, rec); err != nil {
		return zero, err
	}

	switch {
	case !known && temp:
		ks.q.creates.push(key)
	case ks.q.creates.has(key):
		// the queued create is built from the cache at capture time
	default:
		ks.q.updates.push(key)
	}
	return rec, nil
}

// del removes h from the index and queues the deletion. A record whose create
// never left the queue is simply forgotten.
func del[R any](ks *kindState[R], h model.Handle) (identity.Entry[R], error) {
	e, ok := ks.index.Delete(h)
	if !ok {
		return e, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}

	ks.q.updates.remove(e.Key)
	if ks.q.creates.remove(e.Key) {
		ks.q.cancelled = append(ks.q.cancelled, e.Key)
		return e, nil
	}
	ks.q.deletes.push(e.Key)
	if e.Temp {
		ks.q.tempDeletes[e.Key] = true
	}
	return e, nil
}
