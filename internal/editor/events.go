package editor

import "github.com/roach88/koppla/internal/model"

// EventKind names an editor event.
type EventKind string

const (
	NodeCreated     EventKind = "node:create"
	NodeUpdated     EventKind = "node:update"
	NodeDeleted     EventKind = "node:delete"
	EdgeCreated     EventKind = "edge:create"
	EdgeDeleted     EventKind = "edge:delete"
	WorldUpdated    EventKind = "world:update"
	WorldPanned     EventKind = "world:pan"
	WorldZoomed     EventKind = "world:zoom"
	NodeTypeAdded   EventKind = "meta:new_node_type"
	EdgeTypeAdded   EventKind = "meta:new_edge_type"
	SelectionChange EventKind = "selection:change"
)

// Event is the payload of every editor event. Concrete types are NodeEvent,
// EdgeEvent, WorldEvent, NodeTypeEvent, EdgeTypeEvent and SelectionEvent.
type Event interface {
	EventKind() EventKind
}

// NodeEvent reports a node creation, update or deletion.
type NodeEvent struct {
	Kind   EventKind    `json:"kind"`
	Handle model.Handle `json:"handle"`
}

func (e NodeEvent) EventKind() EventKind { return e.Kind }

// EdgeEvent reports an edge creation or deletion.
type EdgeEvent struct {
	Kind   EventKind        `json:"kind"`
	Handle model.Handle     `json:"handle"`
	Start  model.Handle     `json:"start"`
	End    model.Handle     `json:"end"`
	Type   model.EdgeTypeID `json:"type"`
}

func (e EdgeEvent) EventKind() EventKind { return e.Kind }

// WorldEvent reports a redraw request or a view change.
type WorldEvent struct {
	Kind  EventKind    `json:"kind"`
	Scale float64      `json:"scale"`
	Pan   model.Coords `json:"pan"`
}

func (e WorldEvent) EventKind() EventKind { return e.Kind }

// NodeTypeEvent reports a registered node type.
type NodeTypeEvent struct {
	Type model.NodeType `json:"type"`
}

func (NodeTypeEvent) EventKind() EventKind { return NodeTypeAdded }

// EdgeTypeEvent reports a registered edge type.
type EdgeTypeEvent struct {
	Type model.EdgeType `json:"type"`
}

func (EdgeTypeEvent) EventKind() EventKind { return EdgeTypeAdded }

// SelectionEvent reports the selected node set after it changed.
type SelectionEvent struct {
	Handles []model.Handle `json:"handles"`
}

func (SelectionEvent) EventKind() EventKind { return SelectionChange }
