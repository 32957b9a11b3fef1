package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/koppla/internal/model"
	"github.com/roach88/koppla/internal/outbox"
)

// Init replays the outbox, then loads types, nodes and edges from the backend
// and hands every record to loader for handle allocation.
//
// Type registries load concurrently and independently: a failure in one
// leaves it empty and is logged. A node or edge fetch failure is logged and
// joined into the result, but whatever did load stays in the store and
// loader.Loaded is always called. Edges are not fetched when nodes failed.
// Edges whose endpoints were not loaded are skipped with an
// UNRESOLVED_REFERENCE error in the joined result.
func (s *Store) Init(ctx context.Context, loader Loader) error {
	var errs []error

	if err := s.Recover(ctx); err != nil {
		errs = append(errs, err)
	}

	s.loadTypes(ctx)

	nodes, err := s.backend.LoadNodes(ctx)
	if err != nil {
		s.logger.Error("load nodes failed", "error", err)
		errs = append(errs, fmt.Errorf("load nodes: %w", err))
		loader.Loaded()
		return errors.Join(errs...)
	}
	s.mu.Lock()
	errs = append(errs, s.loadNodesLocked(nodes, loader)...)
	s.mu.Unlock()

	edges, err := s.backend.LoadEdges(ctx)
	if err != nil {
		s.logger.Error("load edges failed", "error", err)
		errs = append(errs, fmt.Errorf("load edges: %w", err))
	} else {
		s.mu.Lock()
		errs = append(errs, s.loadEdgesLocked(edges, loader)...)
		s.mu.Unlock()
	}

	s.logger.Info("graph loaded", "nodes", len(nodes), "edges", len(edges))
	loader.Loaded()
	return errors.Join(errs...)
}

// loadTypes fetches both registries in parallel. Failures are logged and
// never cancel the sibling fetch.
func (s *Store) loadTypes(ctx context.Context) {
	var (
		g         errgroup.Group
		nodeTypes []model.NodeType
		edgeTypes []model.EdgeType
	)
	g.Go(func() error {
		var err error
		if nodeTypes, err = s.backend.LoadNodeTypes(ctx); err != nil {
			s.logger.Error("load node types failed", "error", err)
			nodeTypes = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if edgeTypes, err = s.backend.LoadEdgeTypes(ctx); err != nil {
			s.logger.Error("load edge types failed", "error", err)
			edgeTypes = nil
		}
		return nil
	})
	_ = g.Wait()

	for _, t := range nodeTypes {
		s.types.SetNodeType(t)
	}
	for _, t := range edgeTypes {
		s.types.SetEdgeType(t)
	}
}

func (s *Store) loadNodesLocked(nodes []model.NodeRecord, loader Loader) []error {
	var errs []error
	for _, n := range nodes {
		if n.ID == "" {
			s.logger.Warn("skipping node without id", "name", n.Name)
			continue
		}
		if _, dup := s.nodes.index.ByKey(n.ID); dup {
			s.logger.Warn("skipping duplicate node", "id", n.ID)
			continue
		}
		h := loader.AllocNode(n.X, n.Y)
		n.Handle = h
		n.EdgesOutgoing, n.EdgesIncoming = nil, nil
		if err := s.nodes.index.Put(h, n.ID, false, n); err != nil {
			errs = append(errs, fmt.Errorf("load node %q: %w", n.ID, err))
		}
	}
	return errs
}

func (s *Store) loadEdgesLocked(edges []model.EdgeRecord, loader Loader) []error {
	var errs []error
	for _, e := range edges {
		if e.ID == "" {
			continue
		}
		if _, dup := s.edges.index.ByKey(e.ID); dup {
			s.logger.Warn("skipping duplicate edge", "id", e.ID)
			continue
		}
		start, okStart := s.nodes.index.ByKey(e.StartID)
		end, okEnd := s.nodes.index.ByKey(e.EndID)
		if !okStart || !okEnd {
			s.logger.Warn("skipping edge with unknown endpoint", "id", e.ID, "start", e.StartID, "end", e.EndID)
			errs = append(errs, &SyncError{
				Code: ErrCodeUnresolvedReference,
				Kind: model.KindEdge,
				Keys: []string{e.ID},
				Err:  fmt.Errorf("endpoint %q -> %q not loaded", e.StartID, e.EndID),
			})
			continue
		}
		h, err := loader.AllocEdge(start.Handle, end.Handle)
		if err != nil {
			errs = append(errs, fmt.Errorf("load edge %q: %w", e.ID, err))
			continue
		}
		e.Handle, e.StartHandle, e.EndHandle = h, start.Handle, end.Handle
		if err := s.edges.index.Put(h, e.ID, false, e); err != nil {
			errs = append(errs, fmt.Errorf("load edge %q: %w", e.ID, err))
		}
	}
	return errs
}

// replayOrder is the dependency order for entries left by a previous session:
// nodes exist before edges reference them, edges go before their nodes.
var replayOrder = []struct {
	kind model.EntityKind
	op   outbox.Op
}{
	{model.KindNode, outbox.OpCreate},
	{model.KindNode, outbox.OpUpdate},
	{model.KindEdge, outbox.OpCreate},
	{model.KindEdge, outbox.OpUpdate},
	{model.KindEdge, outbox.OpDelete},
	{model.KindNode, outbox.OpDelete},
}

// Recover submits outbox entries that a previous session staged but never
// saw acknowledged. Delivery is at least once: a create whose response was
// lost is created again.
func (s *Store) Recover(ctx context.Context) error {
	if checker, ok := s.backend.(CredentialChecker); ok {
		if err := checker.CheckCredentials(); err != nil {
			return &SyncError{Code: ErrCodeMissingCredentials, Err: fmt.Errorf("%w: %v", ErrMissingCredentials, err)}
		}
	}

	pending, err := s.outbox.Pending(ctx)
	if err != nil {
		return fmt.Errorf("read outbox: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	groups := make(map[model.EntityKind]map[outbox.Op][]outbox.Entry)
	for _, e := range pending {
		s.clock.Observe(e.Seq)
		if groups[e.Kind] == nil {
			groups[e.Kind] = make(map[outbox.Op][]outbox.Entry)
		}
		groups[e.Kind][e.Op] = append(groups[e.Kind][e.Op], e)
	}

	s.logger.Info("replaying outbox", "entries", len(pending))

	var errs []error
	for _, step := range replayOrder {
		entries := groups[step.kind][step.op]
		if len(entries) == 0 {
			continue
		}
		keys := make([]string, len(entries))
		for i, e := range entries {
			keys[i] = e.Key
		}

		if err := s.replay(ctx, step.kind, step.op, entries); err != nil {
			errs = append(errs, &SyncError{Code: ErrCodeTransient, Kind: step.kind, Op: step.op, Keys: keys, Err: err})
			if ferr := s.outbox.Fail(ctx, step.kind, step.op, keys); ferr != nil {
				s.logger.Warn("outbox update failed", "error", ferr)
			}
			continue
		}
		if aerr := s.outbox.Ack(ctx, step.kind, step.op, keys); aerr != nil {
			s.logger.Warn("outbox update failed", "error", aerr)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) replay(ctx context.Context, kind model.EntityKind, op outbox.Op, entries []outbox.Entry) error {
	if op == outbox.OpDelete {
		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.Key
		}
		if kind == model.KindNode {
			return s.backend.DeleteNodes(ctx, ids)
		}
		return s.backend.DeleteEdges(ctx, ids)
	}

	switch kind {
	case model.KindNode:
		recs, err := decodePayloads[model.NodeRecord](entries)
		if err != nil {
			return err
		}
		if op == outbox.OpCreate {
			_, err = s.backend.CreateNodes(ctx, recs)
			return err
		}
		return s.backend.UpdateNodes(ctx, recs)
	case model.KindEdge:
		recs, err := decodePayloads[model.EdgeRecord](entries)
		if err != nil {
			return err
		}
		if op == outbox.OpCreate {
			_, err = s.backend.CreateEdges(ctx, recs)
			return err
		}
		return s.backend.UpdateEdges(ctx, recs)
	default:
		return fmt.Errorf("unknown entity kind %q", kind)
	}
}

func decodePayloads[R any](entries []outbox.Entry) ([]R, error) {
	out := make([]R, 0, len(entries))
	for _, e := range entries {
		var r R
		if err := json.Unmarshal(e.Payload, &r); err != nil {
			return nil, fmt.Errorf("decode outbox entry %s: %w", e.ID, err)
		}
		out = append(out, r)
	}
	return out, nil
}
