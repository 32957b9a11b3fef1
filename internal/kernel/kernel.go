// Package kernel defines the handle-based graph kernel boundary and an
// in-process implementation of it.
//
// The kernel owns geometry and adjacency. It knows nothing about entity ids,
// names, types or persistence; callers address everything by the handles it
// returns. Handles start at 1 and are never reused within a kernel's lifetime.
package kernel

import (
	"errors"

	"github.com/roach88/koppla/internal/model"
)

// ErrUnknownHandle is returned when a handle does not name a live node or edge.
var ErrUnknownHandle = errors.New("kernel: unknown handle")

// Kernel is the boundary consumed by the editor.
type Kernel interface {
	CreateNode(x, y float64) model.Handle
	// CreateEdge fails with ErrUnknownHandle if either endpoint is not a live node.
	CreateEdge(start, end model.Handle) (model.Handle, error)
	// DeleteNode also drops any edges still incident to the node.
	DeleteNode(h model.Handle) error
	DeleteEdge(h model.Handle) error

	HasNode(h model.Handle) bool
	NodeX(h model.Handle) float64
	NodeY(h model.Handle) float64
	SetNodePosition(h model.Handle, x, y float64) error

	OutgoingCount(h model.Handle) int
	OutgoingAt(h model.Handle, i int) model.Handle
	IncomingCount(h model.Handle) int
	IncomingAt(h model.Handle, i int) model.Handle

	NodeCount() int
	NodeAt(i int) model.Handle
	EdgeCount() int
	EdgeAt(i int) model.Handle
	EdgeEndpoints(h model.Handle) (start, end model.Handle, ok bool)

	AlignHoriz(nodes []model.Handle)
	AlignVert(nodes []model.Handle)
	EvenHoriz(nodes []model.Handle)
	EvenVert(nodes []model.Handle)
	ForceLayout(p ForceParams)
}

// ForceParams tunes ForceLayout.
type ForceParams struct {
	Iterations   int
	Stiffness    float64
	Repulsion    float64
	SpringLength float64
	Damping      float64
}

// DefaultForceParams are the parameters the editor uses for SortNodes.
var DefaultForceParams = ForceParams{
	Iterations:   10,
	Stiffness:    0.01,
	Repulsion:    1000,
	SpringLength: 200,
	Damping:      0.9,
}
