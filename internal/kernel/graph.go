package kernel

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/roach88/koppla/internal/model"
)

type node struct {
	x, y     float64
	outgoing []model.Handle
	incoming []model.Handle
}

type edge struct {
	start, end model.Handle
}

// Graph is an in-memory Kernel.
//
// Nodes and edges share one handle space. Iteration order (NodeAt, EdgeAt) is
// creation order.
//
// Thread-safety: all methods are safe for concurrent use.
type Graph struct {
	mu        sync.RWMutex
	next      model.Handle
	nodes     map[model.Handle]*node
	edges     map[model.Handle]edge
	nodeOrder []model.Handle
	edgeOrder []model.Handle
}

var _ Kernel = (*Graph)(nil)

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[model.Handle]*node),
		edges: make(map[model.Handle]edge),
	}
}

func (g *Graph) alloc() model.Handle {
	g.next++
	return g.next
}

// CreateNode allocates a node at (x, y).
func (g *Graph) CreateNode(x, y float64) model.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()

	h := g.alloc()
	g.nodes[h] = &node{x: x, y: y}
	g.nodeOrder = append(g.nodeOrder, h)
	return h
}

// CreateEdge allocates a directed edge between two live nodes.
func (g *Graph) CreateEdge(start, end model.Handle) (model.Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.nodes[start]
	if !ok {
		return 0, fmt.Errorf("%w: start node %d", ErrUnknownHandle, start)
	}
	e, ok := g.nodes[end]
	if !ok {
		return 0, fmt.Errorf("%w: end node %d", ErrUnknownHandle, end)
	}

	h := g.alloc()
	g.edges[h] = edge{start: start, end: end}
	g.edgeOrder = append(g.edgeOrder, h)
	s.outgoing = append(s.outgoing, h)
	e.incoming = append(e.incoming, h)
	return h, nil
}

// DeleteNode removes a node and every edge still incident to it.
func (g *Graph) DeleteNode(h model.Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[h]
	if !ok {
		return fmt.Errorf("%w: node %d", ErrUnknownHandle, h)
	}
	for _, eh := range slices.Concat(n.outgoing, n.incoming) {
		g.deleteEdgeLocked(eh)
	}
	delete(g.nodes, h)
	g.nodeOrder = remove(g.nodeOrder, h)
	return nil
}

// DeleteEdge removes an edge.
func (g *Graph) DeleteEdge(h model.Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.edges[h]; !ok {
		return fmt.Errorf("%w: edge %d", ErrUnknownHandle, h)
	}
	g.deleteEdgeLocked(h)
	return nil
}

func (g *Graph) deleteEdgeLocked(h model.Handle) {
	e, ok := g.edges[h]
	if !ok {
		return
	}
	if s, ok := g.nodes[e.start]; ok {
		s.outgoing = remove(s.outgoing, h)
	}
	if t, ok := g.nodes[e.end]; ok {
		t.incoming = remove(t.incoming, h)
	}
	delete(g.edges, h)
	g.edgeOrder = remove(g.edgeOrder, h)
}

// HasNode reports whether h is a live node.
func (g *Graph) HasNode(h model.Handle) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[h]
	return ok
}

// NodeX returns the x coordinate of a node, or 0 for an unknown handle.
func (g *Graph) NodeX(h model.Handle) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.nodes[h]; ok {
		return n.x
	}
	return 0
}

// NodeY returns the y coordinate of a node, or 0 for an unknown handle.
func (g *Graph) NodeY(h model.Handle) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.nodes[h]; ok {
		return n.y
	}
	return 0
}

// SetNodePosition moves a node.
func (g *Graph) SetNodePosition(h model.Handle, x, y float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[h]
	if !ok {
		return fmt.Errorf("%w: node %d", ErrUnknownHandle, h)
	}
	n.x, n.y = x, y
	return nil
}

func (g *Graph) OutgoingCount(h model.Handle) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.nodes[h]; ok {
		return len(n.outgoing)
	}
	return 0
}

func (g *Graph) OutgoingAt(h model.Handle, i int) model.Handle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.nodes[h]; ok && i >= 0 && i < len(n.outgoing) {
		return n.outgoing[i]
	}
	return 0
}

func (g *Graph) IncomingCount(h model.Handle) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.nodes[h]; ok {
		return len(n.incoming)
	}
	return 0
}

func (g *Graph) IncomingAt(h model.Handle, i int) model.Handle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.nodes[h]; ok && i >= 0 && i < len(n.incoming) {
		return n.incoming[i]
	}
	return 0
}

func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodeOrder)
}

func (g *Graph) NodeAt(i int) model.Handle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if i < 0 || i >= len(g.nodeOrder) {
		return 0
	}
	return g.nodeOrder[i]
}

func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edgeOrder)
}

func (g *Graph) EdgeAt(i int) model.Handle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if i < 0 || i >= len(g.edgeOrder) {
		return 0
	}
	return g.edgeOrder[i]
}

// EdgeEndpoints returns the start and end node of an edge.
func (g *Graph) EdgeEndpoints(h model.Handle) (model.Handle, model.Handle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[h]
	return e.start, e.end, ok
}

// AlignHoriz puts the given nodes on one horizontal line at their mean y.
func (g *Graph) AlignHoriz(nodes []model.Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	live := g.live(nodes)
	if len(live) == 0 {
		return
	}
	var sum float64
	for _, n := range live {
		sum += n.y
	}
	mean := sum / float64(len(live))
	for _, n := range live {
		n.y = mean
	}
}

// AlignVert puts the given nodes on one vertical line at their mean x.
func (g *Graph) AlignVert(nodes []model.Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	live := g.live(nodes)
	if len(live) == 0 {
		return
	}
	var sum float64
	for _, n := range live {
		sum += n.x
	}
	mean := sum / float64(len(live))
	for _, n := range live {
		n.x = mean
	}
}

// EvenHoriz spaces the given nodes evenly along x between the leftmost and
// rightmost of them, keeping their left-to-right order.
func (g *Graph) EvenHoriz(nodes []model.Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	distribute(g.live(nodes), func(n *node) *float64 { return &n.x })
}

// EvenVert spaces the given nodes evenly along y between the topmost and
// bottommost of them, keeping their top-to-bottom order.
func (g *Graph) EvenVert(nodes []model.Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	distribute(g.live(nodes), func(n *node) *float64 { return &n.y })
}

func distribute(live []*node, axis func(*node) *float64) {
	if len(live) < 3 {
		return
	}
	slices.SortStableFunc(live, func(a, b *node) int {
		return cmp.Compare(*axis(a), *axis(b))
	})
	lo := *axis(live[0])
	hi := *axis(live[len(live)-1])
	step := (hi - lo) / float64(len(live)-1)
	for i, n := range live {
		*axis(n) = lo + step*float64(i)
	}
}

// ForceLayout runs a spring/repulsion layout over every node.
//
// Every pair of nodes repels with Repulsion/d²; every edge pulls its endpoints
// toward SpringLength with Stiffness. Velocities are damped each iteration.
// Coincident nodes are separated deterministically by creation order.
func (g *Graph) ForceLayout(p ForceParams) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.nodeOrder)
	if n == 0 || p.Iterations <= 0 {
		return
	}
	index := make(map[model.Handle]int, n)
	for i, h := range g.nodeOrder {
		index[h] = i
	}
	vx := make([]float64, n)
	vy := make([]float64, n)

	for iter := 0; iter < p.Iterations; iter++ {
		fx := make([]float64, n)
		fy := make([]float64, n)

		for i := 0; i < n; i++ {
			a := g.nodes[g.nodeOrder[i]]
			for j := i + 1; j < n; j++ {
				b := g.nodes[g.nodeOrder[j]]
				dx, dy := b.x-a.x, b.y-a.y
				d2 := dx*dx + dy*dy
				if d2 == 0 {
					dx, dy, d2 = 1, 0, 1
				}
				d := math.Sqrt(d2)
				f := p.Repulsion / d2
				ux, uy := dx/d, dy/d
				fx[i] -= f * ux
				fy[i] -= f * uy
				fx[j] += f * ux
				fy[j] += f * uy
			}
		}

		for _, eh := range g.edgeOrder {
			e := g.edges[eh]
			if e.start == e.end {
				continue
			}
			i, j := index[e.start], index[e.end]
			a, b := g.nodes[e.start], g.nodes[e.end]
			dx, dy := b.x-a.x, b.y-a.y
			d := math.Hypot(dx, dy)
			if d == 0 {
				continue
			}
			f := p.Stiffness * (d - p.SpringLength)
			ux, uy := dx/d, dy/d
			fx[i] += f * ux
			fy[i] += f * uy
			fx[j] -= f * ux
			fy[j] -= f * uy
		}

		for i, h := range g.nodeOrder {
			nd := g.nodes[h]
			vx[i] = (vx[i] + fx[i]) * p.Damping
			vy[i] = (vy[i] + fy[i]) * p.Damping
			nd.x += vx[i]
			nd.y += vy[i]
		}
	}
}

func (g *Graph) live(handles []model.Handle) []*node {
	out := make([]*node, 0, len(handles))
	seen := make(map[model.Handle]bool, len(handles))
	for _, h := range handles {
		if seen[h] {
			continue
		}
		seen[h] = true
		if n, ok := g.nodes[h]; ok {
			out = append(out, n)
		}
	}
	return out
}

func remove(hs []model.Handle, h model.Handle) []model.Handle {
	if i := slices.Index(hs, h); i >= 0 {
		return slices.Delete(hs, i, i+1)
	}
	return hs
}
