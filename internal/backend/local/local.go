// Package local is a backend that keeps a project in a SQLite file.
//
// It speaks the same protocol as the REST backend: creates answer with
// {temp_id, id} pairs, edge line dash patterns are stored base64 encoded, and
// deleting a node removes its edges.
package local

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/koppla/internal/engine"
	"github.com/roach88/koppla/internal/model"
	"github.com/roach88/koppla/internal/store"
)

// Backend serves one project database.
//
// Thread-safety: Backend is safe for concurrent use; the underlying store
// serializes writes.
type Backend struct {
	db     *store.Store
	ids    engine.IDGenerator
	logger *slog.Logger
}

var _ engine.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithIDs sets the generator for durable ids.
func WithIDs(g engine.IDGenerator) Option {
	return func(b *Backend) { b.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// New wraps an open store. The caller keeps ownership of db.
func New(db *store.Store, opts ...Option) *Backend {
	b := &Backend{
		db:     db,
		ids:    engine.UUIDGenerator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Seed registers type descriptors, replacing existing ones with the same id.
func (b *Backend) Seed(ctx context.Context, nodeTypes []model.NodeType, edgeTypes []model.EdgeType) error {
	for _, t := range nodeTypes {
		if err := b.db.PutNodeType(ctx, t); err != nil {
			return err
		}
	}
	for _, t := range edgeTypes {
		if err := b.db.PutEdgeType(ctx, t); err != nil {
			return err
		}
	}
	b.logger.Debug("seeded types", "node_types", len(nodeTypes), "edge_types", len(edgeTypes))
	return nil
}

func (b *Backend) LoadNodeTypes(ctx context.Context) ([]model.NodeType, error) {
	return b.db.NodeTypes(ctx)
}

func (b *Backend) LoadEdgeTypes(ctx context.Context) ([]model.EdgeType, error) {
	return b.db.EdgeTypes(ctx)
}

func (b *Backend) LoadNodes(ctx context.Context) ([]model.NodeRecord, error) {
	return b.db.Nodes(ctx)
}

func (b *Backend) LoadEdges(ctx context.Context) ([]model.EdgeRecord, error) {
	return b.db.Edges(ctx)
}

// CreateNodes assigns a fresh id to every record. The whole batch is stored
// or none of it is.
func (b *Backend) CreateNodes(ctx context.Context, nodes []model.NodeRecord) ([]model.CreatedRef, error) {
	rows := make([]model.NodeRecord, len(nodes))
	refs := make([]model.CreatedRef, len(nodes))
	for i, n := range nodes {
		id := b.ids.Generate()
		refs[i] = model.CreatedRef{TempID: n.ID, ID: id}
		n.ID = id
		rows[i] = n
	}
	if err := b.db.InsertNodes(ctx, rows); err != nil {
		return nil, fmt.Errorf("create nodes: %w", err)
	}
	return refs, nil
}

func (b *Backend) UpdateNodes(ctx context.Context, nodes []model.NodeRecord) error {
	return b.db.UpdateNodes(ctx, nodes)
}

func (b *Backend) DeleteNodes(ctx context.Context, ids []string) error {
	return b.db.DeleteNodes(ctx, ids)
}

// CreateEdges assigns a fresh id to every record. Both endpoints must already
// be stored.
func (b *Backend) CreateEdges(ctx context.Context, edges []model.EdgeRecord) ([]model.CreatedRef, error) {
	rows := make([]model.EdgeRecord, len(edges))
	refs := make([]model.CreatedRef, len(edges))
	for i, e := range edges {
		if e.StartID == "" || e.EndID == "" {
			return nil, fmt.Errorf("create edges: edge %q has no endpoint ids", e.ID)
		}
		id := b.ids.Generate()
		refs[i] = model.CreatedRef{TempID: e.ID, ID: id}
		e.ID = id
		rows[i] = e
	}
	if err := b.db.InsertEdges(ctx, rows); err != nil {
		return nil, fmt.Errorf("create edges: %w", err)
	}
	return refs, nil
}

func (b *Backend) UpdateEdges(ctx context.Context, edges []model.EdgeRecord) error {
	return b.db.UpdateEdges(ctx, edges)
}

// DeleteEdges ignores ids that are already gone, e.g. edges removed together
// with their node.
func (b *Backend) DeleteEdges(ctx context.Context, ids []string) error {
	return b.db.DeleteEdges(ctx, ids)
}
