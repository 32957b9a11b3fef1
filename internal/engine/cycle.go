package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/koppla/internal/identity"
	"github.com/roach88/koppla/internal/model"
	"github.com/roach88/koppla/internal/outbox"
)

const flightKey = "persist"

// PersistGraphState runs one persistence cycle: nodes first, then edges.
//
// Concurrent callers share a cycle that is already running. Failed operations
// are queued again and a retry is scheduled; the returned error reports them
// as SyncErrors.
func (s *Store) PersistGraphState(ctx context.Context) error {
	_, err, _ := s.flight.Do(flightKey, func() (any, error) {
		return nil, s.cycle(ctx)
	})
	return err
}

// Flush cancels the pending throttle window and persists immediately. If a
// cycle was already running when Flush was called, a second cycle runs after
// it so that nothing queued before the call is left behind.
func (s *Store) Flush(ctx context.Context) error {
	s.throttle.Cancel()
	_, err, shared := s.flight.Do(flightKey, func() (any, error) {
		return nil, s.cycle(ctx)
	})
	if shared {
		_, err, _ = s.flight.Do(flightKey, func() (any, error) {
			return nil, s.cycle(ctx)
		})
	}
	return err
}

func (s *Store) scheduledCycle() {
	if err := s.PersistGraphState(context.Background()); err != nil {
		s.logger.Debug("scheduled persist cycle finished with errors", "error", err)
	}
}

func (s *Store) cycle(ctx context.Context) error {
	if checker, ok := s.backend.(CredentialChecker); ok {
		if err := checker.CheckCredentials(); err != nil {
			s.logger.Error("persist cycle aborted", "error", err)
			return &SyncError{
				Code: ErrCodeMissingCredentials,
				Err:  fmt.Errorf("%w: %v", ErrMissingCredentials, err),
			}
		}
	}

	nodeErr := s.cycleNodes(ctx)
	edgeErr := s.cycleEdges(ctx)
	err := errors.Join(nodeErr, edgeErr)

	s.afterCycle(err != nil)
	return err
}

// batch is one kind's captured mutations.
type batch[R any] struct {
	creates    []R
	createKeys []string
	updates    []R
	updateKeys []string
	deletes    []string
	cancelled  []string
	held       int
}

// submitResult is the settled outcome of a batch's backend requests.
type submitResult struct {
	refs      []model.CreatedRef
	createErr error
	updateErr error
	deleteErr error
}

func (s *Store) cycleNodes(ctx context.Context) error {
	s.mu.Lock()
	b := captureNodesLocked(s.nodes)
	s.mu.Unlock()

	return runBatch(ctx, s, s.nodes, b, func(ctx context.Context) submitResult {
		return settle(ctx, b,
			s.backend.CreateNodes,
			s.backend.UpdateNodes,
			s.backend.DeleteNodes)
	})
}

func (s *Store) cycleEdges(ctx context.Context) error {
	s.mu.Lock()
	b := s.captureEdgesLocked()
	s.mu.Unlock()

	return runBatch(ctx, s, s.edges, b, func(ctx context.Context) submitResult {
		return settle(ctx, b,
			s.backend.CreateEdges,
			s.backend.UpdateEdges,
			s.backend.DeleteEdges)
	})
}

func captureNodesLocked(ks *kindState[model.NodeRecord]) *batch[model.NodeRecord] {
	b := &batch[model.NodeRecord]{}
	b.cancelled, ks.q.cancelled = ks.q.cancelled, nil

	for _, key := range ks.q.creates.take(func(string) bool { return false }) {
		e, ok := ks.index.ByKey(key)
		if !ok {
			continue
		}
		rec := e.Record.Clone()
		rec.ID = key
		b.createKeys = append(b.createKeys, key)
		b.creates = append(b.creates, rec)
	}

	for _, key := range ks.q.updates.take(func(k string) bool {
		e, ok := ks.index.ByKey(k)
		return ok && e.Temp
	}) {
		e, ok := ks.index.ByKey(key)
		if !ok {
			continue
		}
		rec := e.Record.Clone()
		rec.ID = key
		b.updateKeys = append(b.updateKeys, key)
		b.updates = append(b.updates, rec)
	}

	b.deletes = ks.q.deletes.take(func(k string) bool { return ks.q.tempDeletes[k] })
	b.held = ks.q.creates.len() + ks.q.updates.len() + ks.q.deletes.len()
	return b
}

// captureEdgesLocked holds back edges until both endpoints carry backend ids,
// so no edge is ever submitted with a temp endpoint.
func (s *Store) captureEdgesLocked() *batch[model.EdgeRecord] {
	ks := s.edges
	b := &batch[model.EdgeRecord]{}
	b.cancelled, ks.q.cancelled = ks.q.cancelled, nil

	resolved := func(key string) (model.EdgeRecord, bool) {
		e, ok := ks.index.ByKey(key)
		if !ok {
			return model.EdgeRecord{}, false
		}
		rec := s.resolveEndpointsLocked(e.Record)
		return rec, rec.StartID != "" && rec.EndID != ""
	}

	for _, key := range ks.q.creates.take(func(k string) bool {
		_, ok := resolved(k)
		return !ok
	}) {
		rec, _ := resolved(key)
		rec.ID = key
		b.createKeys = append(b.createKeys, key)
		b.creates = append(b.creates, rec)
	}

	for _, key := range ks.q.updates.take(func(k string) bool {
		e, ok := ks.index.ByKey(k)
		if !ok {
			return false
		}
		_, ready := resolved(k)
		return e.Temp || !ready
	}) {
		rec, ok := resolved(key)
		if !ok {
			continue
		}
		rec.ID = key
		b.updateKeys = append(b.updateKeys, key)
		b.updates = append(b.updates, rec)
	}

	b.deletes = ks.q.deletes.take(func(k string) bool { return ks.q.tempDeletes[k] })
	b.held = ks.q.creates.len() + ks.q.updates.len() + ks.q.deletes.len()
	return b
}

// settle issues up to three requests concurrently and waits for all of them.
// A failure in one never cancels the others.
func settle[R any](
	ctx context.Context,
	b *batch[R],
	create func(context.Context, []R) ([]model.CreatedRef, error),
	update func(context.Context, []R) error,
	remove func(context.Context, []string) error,
) submitResult {
	var (
		res submitResult
		wg  sync.WaitGroup
	)
	if len(b.creates) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.refs, res.createErr = create(ctx, b.creates)
		}()
	}
	if len(b.updates) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.updateErr = update(ctx, b.updates)
		}()
	}
	if len(b.deletes) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.deleteErr = remove(ctx, b.deletes)
		}()
	}
	wg.Wait()
	return res
}

// outboxOp is an outbox call deferred until the store lock is released.
type outboxOp struct {
	ack  bool
	op   outbox.Op
	keys []string
}

func runBatch[R any](ctx context.Context, s *Store, ks *kindState[R], b *batch[R], submit func(context.Context) submitResult) error {
	log := s.logger.With("kind", string(ks.kind))

	if len(b.cancelled) > 0 {
		s.outboxApply(ctx, ks.kind, []outboxOp{
			{ack: true, op: outbox.OpCreate, keys: b.cancelled},
			{ack: true, op: outbox.OpUpdate, keys: b.cancelled},
		})
	}
	if len(b.createKeys) == 0 && len(b.updateKeys) == 0 && len(b.deletes) == 0 {
		if b.held > 0 {
			log.Debug("persist cycle: all pending mutations held back", "held", b.held)
		}
		return nil
	}

	log.Debug("persist cycle",
		"creates", len(b.createKeys),
		"updates", len(b.updateKeys),
		"deletes", len(b.deletes),
		"held", b.held)

	stage(ctx, s, ks.kind, b)
	res := submit(ctx)

	s.mu.Lock()
	ops, errs := applyResult(ks, b, res)
	s.mu.Unlock()

	s.outboxApply(ctx, ks.kind, ops)

	for _, err := range errs {
		log.Error("persist operation failed", "error", err)
	}
	return errors.Join(errs...)
}

// applyResult folds a settled batch back into the cache and queues.
// Must be called with the store lock held.
func applyResult[R any](ks *kindState[R], b *batch[R], res submitResult) ([]outboxOp, []error) {
	var (
		ops  []outboxOp
		errs []error
	)

	if len(b.createKeys) > 0 {
		if res.createErr != nil {
			var requeue, cancelled []string
			for _, key := range b.createKeys {
				if _, ok := ks.index.ByKey(key); ok {
					requeue = append(requeue, key)
					ks.q.updates.remove(key)
					continue
				}
				// deleted while the request was in flight; nothing to delete remotely
				ks.q.deletes.remove(key)
				delete(ks.q.tempDeletes, key)
				cancelled = append(cancelled, key)
			}
			ks.q.creates.requeue(requeue)
			ops = append(ops,
				outboxOp{op: outbox.OpCreate, keys: requeue},
				outboxOp{ack: true, op: outbox.OpCreate, keys: cancelled})
			errs = append(errs, &SyncError{Code: ErrCodeTransient, Kind: ks.kind, Op: outbox.OpCreate, Keys: b.createKeys, Err: res.createErr})
		} else {
			ops = append(ops, applyCreated(ks, b.createKeys, res.refs, &errs)...)
		}
	}

	if len(b.updateKeys) > 0 {
		if res.updateErr != nil {
			var requeue []string
			for _, key := range b.updateKeys {
				if _, ok := ks.index.ByKey(key); ok {
					requeue = append(requeue, key)
				}
			}
			ks.q.updates.requeue(requeue)
			ops = append(ops, outboxOp{op: outbox.OpUpdate, keys: b.updateKeys})
			errs = append(errs, &SyncError{Code: ErrCodeTransient, Kind: ks.kind, Op: outbox.OpUpdate, Keys: b.updateKeys, Err: res.updateErr})
		} else {
			ops = append(ops, outboxOp{ack: true, op: outbox.OpUpdate, keys: b.updateKeys})
		}
	}

	if len(b.deletes) > 0 {
		if res.deleteErr != nil {
			ks.q.deletes.requeue(b.deletes)
			ops = append(ops, outboxOp{op: outbox.OpDelete, keys: b.deletes})
			errs = append(errs, &SyncError{Code: ErrCodeTransient, Kind: ks.kind, Op: outbox.OpDelete, Keys: b.deletes, Err: res.deleteErr})
		} else {
			ops = append(ops,
				outboxOp{ack: true, op: outbox.OpDelete, keys: b.deletes},
				outboxOp{ack: true, op: outbox.OpUpdate, keys: b.deletes})
		}
	}

	return ops, errs
}

// applyCreated remaps temp ids to the ids the backend assigned and renames
// any mutations that were held back under the temp id.
func applyCreated[R any](ks *kindState[R], keys []string, refs []model.CreatedRef, errs *[]error) []outboxOp {
	assigned := make(map[string]string, len(refs))
	for _, ref := range refs {
		assigned[ref.TempID] = ref.ID
	}

	var (
		acked, missing []string
		pairs          []model.CreatedRef
	)
	for _, temp := range keys {
		real, ok := assigned[temp]
		if !ok || real == "" {
			missing = append(missing, temp)
			continue
		}
		acked = append(acked, temp)
		pairs = append(pairs, model.CreatedRef{TempID: temp, ID: real})
	}

	moved, err := ks.index.RemapAll(pairs)
	for _, h := range moved {
		e, _ := ks.index.Get(h)
		ks.index.Update(h, func(r *R) { ks.setID(r, e.Key) })
	}
	var stuck []string
	for _, p := range pairs {
		// a conflicting pair leaves its entry under the temp id
		if _, ok := ks.index.Lookup(identity.TempRef(p.TempID)); ok {
			stuck = append(stuck, p.TempID)
			continue
		}
		ks.q.updates.rename(p.TempID, p.ID)
		ks.q.deletes.rename(p.TempID, p.ID)
		delete(ks.q.tempDeletes, p.TempID)
	}
	if err != nil {
		*errs = append(*errs, &SyncError{Code: ErrCodeDesync, Kind: ks.kind, Op: outbox.OpCreate, Keys: stuck, Err: err})
	}

	if len(missing) > 0 {
		var requeue []string
		for _, key := range missing {
			if _, ok := ks.index.ByKey(key); ok {
				requeue = append(requeue, key)
			}
		}
		ks.q.creates.requeue(requeue)
		*errs = append(*errs, &SyncError{
			Code: ErrCodeDesync,
			Kind: ks.kind,
			Op:   outbox.OpCreate,
			Keys: missing,
			Err:  errors.New("create response has no id for these temp ids"),
		})
	}

	return []outboxOp{{ack: true, op: outbox.OpCreate, keys: acked}}
}

// stage writes a captured batch to the outbox before it is submitted.
// A staging failure is logged; the batch is still submitted.
func stage[R any](ctx context.Context, s *Store, kind model.EntityKind, b *batch[R]) {
	var entries []outbox.Entry
	add := func(op outbox.Op, key string, v any) {
		payload, err := model.MarshalCanonical(v)
		if err != nil {
			s.logger.Warn("outbox payload not encodable", "kind", kind, "key", key, "error", err)
			return
		}
		entries = append(entries, outbox.Entry{
			ID:      UUIDGenerator{}.Generate(),
			Kind:    kind,
			Op:      op,
			Key:     key,
			Payload: payload,
			Seq:     s.clock.Next(),
		})
	}
	for i, key := range b.createKeys {
		add(outbox.OpCreate, key, b.creates[i])
	}
	for i, key := range b.updateKeys {
		add(outbox.OpUpdate, key, b.updates[i])
	}
	for _, key := range b.deletes {
		add(outbox.OpDelete, key, key)
	}
	if len(entries) == 0 {
		return
	}
	if err := s.outbox.Stage(ctx, entries); err != nil {
		s.logger.Warn("outbox stage failed", "kind", kind, "entries", len(entries), "error", err)
	}
}

func (s *Store) outboxApply(ctx context.Context, kind model.EntityKind, ops []outboxOp) {
	for _, o := range ops {
		if len(o.keys) == 0 {
			continue
		}
		var err error
		if o.ack {
			err = s.outbox.Ack(ctx, kind, o.op, o.keys)
		} else {
			err = s.outbox.Fail(ctx, kind, o.op, o.keys)
		}
		if err != nil {
			s.logger.Warn("outbox update failed", "kind", kind, "op", o.op, "ack", o.ack, "error", err)
		}
	}
}

// afterCycle schedules the next cycle. Failed cycles back off exponentially
// until the attempt budget is spent; a clean cycle that left work queued
// (held-back keys that are now ready) goes through the throttle again.
func (s *Store) afterCycle(failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopRetry != nil {
		s.stopRetry()
		s.stopRetry = nil
	}

	if !failed {
		s.failures = 0
		s.retry.Reset()
		if !s.closed && (!s.nodes.q.empty() || !s.edges.q.empty()) {
			s.throttle.Trigger()
		}
		return
	}

	s.failures++
	if s.closed {
		return
	}
	if s.failures >= s.maxAttempts {
		s.logger.Error("retry budget exhausted; mutations stay queued until the next edit or flush",
			"failures", s.failures)
		return
	}
	delay := s.retry.NextBackOff()
	if delay == backoff.Stop {
		return
	}
	s.logger.Info("persist cycle failed; retrying", "attempt", s.failures, "delay", delay)
	s.stopRetry = s.timers.AfterFunc(delay, s.scheduledCycle)
}
