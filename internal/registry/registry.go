// Package registry holds the node and edge type descriptors for a project.
//
// The registry is a read-mostly lookup table: types are registered once when a
// project loads and then read by the editor and renderers on every frame.
// Edge lookups never fail; an unknown id resolves to the default edge type.
package registry

import (
	"slices"
	"sync"

	"github.com/roach88/koppla/internal/model"
)

// Palette maps symbolic color names to concrete color values.
type Palette map[string]string

// Resolve returns the palette value for c, or c unchanged.
func (p Palette) Resolve(c string) string {
	if v, ok := p[c]; ok {
		return v
	}
	return c
}

// Registry stores node and edge types in registration order.
type Registry struct {
	mu        sync.RWMutex
	palette   Palette
	nodeTypes map[model.NodeTypeID]model.NodeType
	nodeOrder []model.NodeTypeID
	edgeTypes map[model.EdgeTypeID]model.EdgeType
	edgeOrder []model.EdgeTypeID
}

// Option configures a Registry.
type Option func(*Registry)

// WithPalette resolves color names through p when types are registered.
func WithPalette(p Palette) Option {
	return func(r *Registry) {
		r.palette = p
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		nodeTypes: make(map[model.NodeTypeID]model.NodeType),
		edgeTypes: make(map[model.EdgeTypeID]model.EdgeType),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetNodeType registers or replaces a node type.
func (r *Registry) SetNodeType(t model.NodeType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t.FillColor = r.palette.Resolve(t.FillColor)
	t.StrokeColor = r.palette.Resolve(t.StrokeColor)

	if _, ok := r.nodeTypes[t.ID]; !ok {
		r.nodeOrder = append(r.nodeOrder, t.ID)
	}
	r.nodeTypes[t.ID] = t
}

// NodeType returns the node type registered under id.
func (r *Registry) NodeType(id model.NodeTypeID) (model.NodeType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.nodeTypes[id]
	return t, ok
}

// NodeTypes returns all node types in registration order.
func (r *Registry) NodeTypes() []model.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.NodeType, 0, len(r.nodeOrder))
	for _, id := range r.nodeOrder {
		out = append(out, r.nodeTypes[id])
	}
	return out
}

// SetEdgeType registers or replaces an edge type.
func (r *Registry) SetEdgeType(t model.EdgeType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t.StrokeColor = r.palette.Resolve(t.StrokeColor)
	t.LineDash = slices.Clone(t.LineDash)
	if t.LineDash == nil {
		t.LineDash = []float64{}
	}

	if _, ok := r.edgeTypes[t.ID]; !ok {
		r.edgeOrder = append(r.edgeOrder, t.ID)
	}
	r.edgeTypes[t.ID] = t
}

// EdgeType returns the edge type registered under id, falling back to the
// default edge type.
func (r *Registry) EdgeType(id model.EdgeTypeID) model.EdgeType {
	if t, ok := r.LookupEdgeType(id); ok {
		return t
	}
	return model.DefaultEdgeType()
}

// LookupEdgeType is EdgeType without the fallback.
func (r *Registry) LookupEdgeType(id model.EdgeTypeID) (model.EdgeType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.edgeTypes[id]
	if ok {
		t.LineDash = slices.Clone(t.LineDash)
	}
	return t, ok
}

// EdgeTypes returns all registered edge types in registration order. The
// default edge type is not included unless it was registered explicitly.
func (r *Registry) EdgeTypes() []model.EdgeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.EdgeType, 0, len(r.edgeOrder))
	for _, id := range r.edgeOrder {
		t := r.edgeTypes[id]
		t.LineDash = slices.Clone(t.LineDash)
		out = append(out, t)
	}
	return out
}
