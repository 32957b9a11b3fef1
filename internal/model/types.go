package model

import "slices"

// Handle is a session-local identifier assigned by the graph kernel.
// Handles are never reused after deletion and are never persisted.
type Handle uint32

// NodeTypeID identifies a node type descriptor.
type NodeTypeID string

// EdgeTypeID identifies an edge type descriptor.
type EdgeTypeID string

// DefaultEdgeTypeID is the reserved sentinel used when an edge references a
// type that is not registered.
const DefaultEdgeTypeID EdgeTypeID = "-1"

// NodeShape is one of the predefined node outlines.
type NodeShape uint8

const (
	ShapeCircle NodeShape = iota
	ShapeSquare
	ShapeSquareRounded
	ShapeDiamond
)

// String returns the shape name.
func (s NodeShape) String() string {
	switch s {
	case ShapeCircle:
		return "circle"
	case ShapeSquare:
		return "square"
	case ShapeSquareRounded:
		return "square_rounded"
	case ShapeDiamond:
		return "diamond"
	default:
		return "unknown"
	}
}

// NodeType is an immutable style and semantic descriptor for nodes.
type NodeType struct {
	ID          NodeTypeID `json:"id"`
	Name        string     `json:"name"`
	FillColor   string     `json:"fill_color"`
	StrokeColor string     `json:"stroke_color"`
	StrokeWidth float64    `json:"stroke_width"`
	Shape       NodeShape  `json:"shape"`
	Metadata    string     `json:"metadata"`
}

// EdgeType is an immutable style and semantic descriptor for edges.
type EdgeType struct {
	ID          EdgeTypeID `json:"id"`
	Name        string     `json:"name"`
	StrokeColor string     `json:"stroke_color"`
	StrokeWidth float64    `json:"stroke_width"`
	LineDash    []float64  `json:"line_dash"`
	Metadata    string     `json:"metadata"`
}

// DefaultEdgeType returns the fallback edge style.
func DefaultEdgeType() EdgeType {
	return EdgeType{
		ID:          DefaultEdgeTypeID,
		Name:        "default",
		StrokeColor: "#000000",
		StrokeWidth: 2,
		LineDash:    []float64{},
	}
}

// Coords is a point in screen or world space.
type Coords struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeRecord is the cached state of one node.
//
// X and Y mirror the kernel-held geometry at the time the record was last
// written; readers that need authoritative coordinates go through the editor,
// which hydrates from the kernel on every call.
type NodeRecord struct {
	Handle        Handle     `json:"-"`
	ID            string     `json:"id,omitempty"`
	Name          string     `json:"name"`
	Type          NodeTypeID `json:"type"`
	Metadata      string     `json:"metadata"`
	X             float64    `json:"x"`
	Y             float64    `json:"y"`
	EdgesOutgoing []Handle   `json:"-"`
	EdgesIncoming []Handle   `json:"-"`
}

// Clone returns a deep copy of the record.
func (n NodeRecord) Clone() NodeRecord {
	n.EdgesOutgoing = slices.Clone(n.EdgesOutgoing)
	n.EdgesIncoming = slices.Clone(n.EdgesIncoming)
	return n
}

// EdgeRecord is the cached state of one edge.
// StartID and EndID are resolved from the endpoint nodes when the edge is
// submitted to a backend; locally the handles are authoritative.
type EdgeRecord struct {
	Handle      Handle     `json:"-"`
	ID          string     `json:"id,omitempty"`
	Type        EdgeTypeID `json:"type"`
	StartHandle Handle     `json:"-"`
	EndHandle   Handle     `json:"-"`
	StartID     string     `json:"start_id,omitempty"`
	EndID       string     `json:"end_id,omitempty"`
}

// CreatedRef is one element of a create-many response: the placeholder id the
// client sent and the durable id the backend assigned.
type CreatedRef struct {
	TempID string `json:"temp_id"`
	ID     string `json:"id"`
}

// Relation is a flattened view of one edge for export.
type Relation struct {
	EdgeTypeMetadata string `json:"edge_type_metadata"`
	FromMetadata     string `json:"from_metadata"`
	ToMetadata       string `json:"to_metadata"`
}

// EntityKind distinguishes the two record kinds that are persisted.
type EntityKind string

const (
	KindNode EntityKind = "node"
	KindEdge EntityKind = "edge"
)
