package editor

import (
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/koppla/internal/engine"
	"github.com/roach88/koppla/internal/model"
)

// BundleKey is the key shared by every edge between a and b in either
// direction: the smaller handle, a dash, then the larger one.
func BundleKey(a, b model.Handle) string {
	lo, hi := min(a, b), max(a, b)
	return strconv.FormatUint(uint64(lo), 10) + "-" + strconv.FormatUint(uint64(hi), 10)
}

// EdgeBundles groups edges by unordered endpoint pair. If filter is non-nil
// only edges it accepts are grouped. Edges within a bundle keep kernel order.
func (e *Editor) EdgeBundles(filter func(model.EdgeRecord) bool) map[string][]model.EdgeRecord {
	bundles := make(map[string][]model.EdgeRecord)
	for _, edge := range e.GetEdges() {
		if filter != nil && !filter(edge) {
			continue
		}
		key := BundleKey(edge.StartHandle, edge.EndHandle)
		bundles[key] = append(bundles[key], edge)
	}
	return bundles
}

// Relations flattens every edge into the metadata of its type and endpoints.
func (e *Editor) Relations() ([]model.Relation, error) {
	edges := e.GetEdges()
	out := make([]model.Relation, 0, len(edges))
	for _, edge := range edges {
		from, ok := e.store.NodeByHandle(edge.StartHandle)
		if !ok {
			return nil, fmt.Errorf("relations: edge %d start: %w", edge.Handle, engine.ErrUnknownHandle)
		}
		to, ok := e.store.NodeByHandle(edge.EndHandle)
		if !ok {
			return nil, fmt.Errorf("relations: edge %d end: %w", edge.Handle, engine.ErrUnknownHandle)
		}
		out = append(out, model.Relation{
			EdgeTypeMetadata: e.store.EdgeType(edge.Type).Metadata,
			FromMetadata:     from.Metadata,
			ToMetadata:       to.Metadata,
		})
	}
	return out, nil
}

// NodeAt returns the top-most node whose centre lies within radius of world
// on both axes. Later nodes are drawn over earlier ones.
func (e *Editor) NodeAt(world model.Coords, radius float64) (model.NodeRecord, bool) {
	nodes := e.GetNodes()
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		if math.Abs(world.X-n.X) <= radius && math.Abs(world.Y-n.Y) <= radius {
			return n, true
		}
	}
	return model.NodeRecord{}, false
}

// NodesInRect returns the nodes whose centre lies inside the rectangle
// spanned by a and b, in kernel order.
func (e *Editor) NodesInRect(a, b model.Coords) []model.Handle {
	minX, maxX := min(a.X, b.X), max(a.X, b.X)
	minY, maxY := min(a.Y, b.Y), max(a.Y, b.Y)

	var out []model.Handle
	for _, n := range e.GetNodes() {
		if n.X >= minX && n.X <= maxX && n.Y >= minY && n.Y <= maxY {
			out = append(out, n.Handle)
		}
	}
	return out
}

// SetNodeType registers a node type and announces it.
func (e *Editor) SetNodeType(t model.NodeType) {
	e.store.Registry().SetNodeType(t)
	stored, _ := e.store.NodeType(t.ID)
	e.emit(NodeTypeEvent{Type: stored})
}

// SetEdgeType registers an edge type and announces it.
func (e *Editor) SetEdgeType(t model.EdgeType) {
	e.store.Registry().SetEdgeType(t)
	e.emit(EdgeTypeEvent{Type: e.store.EdgeType(t.ID)})
}

// NodeType returns a registered node type.
func (e *Editor) NodeType(id model.NodeTypeID) (model.NodeType, bool) {
	return e.store.NodeType(id)
}

// EdgeType returns a registered edge type or the default style.
func (e *Editor) EdgeType(id model.EdgeTypeID) model.EdgeType {
	return e.store.EdgeType(id)
}
