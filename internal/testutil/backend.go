package testutil

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/koppla/internal/model"
)

// Backend operation names, matching the REST endpoints.
const (
	OpNodeTypes   = "node-types"
	OpEdgeTypes   = "edge-types"
	OpNodes       = "nodes"
	OpEdges       = "edges"
	OpCreateNodes = "create-nodes"
	OpUpdateNodes = "update-nodes"
	OpDeleteNodes = "delete-nodes"
	OpCreateEdges = "create-edges"
	OpUpdateEdges = "update-edges"
	OpDeleteEdges = "delete-edges"
)

// ErrInjected is the default error returned by injected failures.
var ErrInjected = errors.New("testutil: injected failure")

// Call records one backend request.
type Call struct {
	Op   string   `json:"op" yaml:"op"`
	Keys []string `json:"keys" yaml:"keys"`
}

// RecordingBackend is an in-memory backend that records every request.
//
// Ids are assigned as n-1, n-2, ... for nodes and e-1, e-2, ... for edges.
// Creating an edge whose endpoint id is not a stored node fails the request,
// the same way a relational backend would.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingBackend struct {
	mu sync.Mutex

	nodeTypes []model.NodeType
	edgeTypes []model.EdgeType
	nodes     []model.NodeRecord
	edges     []model.EdgeRecord
	nodeSeq   int
	edgeSeq   int

	calls    []Call
	failNext map[string][]error
	failAll  map[string]error
	blocks   map[string]*block

	// RequireToken makes CheckCredentials fail while Token is empty.
	RequireToken bool
	Token        string
}

type block struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// NewRecordingBackend creates an empty backend.
func NewRecordingBackend() *RecordingBackend {
	return &RecordingBackend{
		failNext: make(map[string][]error),
		failAll:  make(map[string]error),
		blocks:   make(map[string]*block),
	}
}

// SeedTypes stores type descriptors returned by the type loads.
func (b *RecordingBackend) SeedTypes(nodeTypes []model.NodeType, edgeTypes []model.EdgeType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodeTypes = append(b.nodeTypes, nodeTypes...)
	b.edgeTypes = append(b.edgeTypes, edgeTypes...)
}

// SeedNode stores a node and returns its assigned id.
func (b *RecordingBackend) SeedNode(n model.NodeRecord) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.insertNodeLocked(n)
}

// SeedEdge stores an edge between two seeded node ids and returns its id.
func (b *RecordingBackend) SeedEdge(e model.EdgeRecord) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.insertEdgeLocked(e)
}

// FailNext makes the next request for op fail with err (ErrInjected if nil).
// Multiple calls queue multiple failures.
func (b *RecordingBackend) FailNext(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	b.failNext[op] = append(b.failNext[op], err)
}

// FailAlways makes every request for op fail until Heal is called.
func (b *RecordingBackend) FailAlways(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	b.failAll[op] = err
}

// Heal clears every injected failure for op.
func (b *RecordingBackend) Heal(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failAll, op)
	delete(b.failNext, op)
}

// Block makes the next request for op wait until release is called. entered
// is closed once the request is waiting.
func (b *RecordingBackend) Block(op string) (entered <-chan struct{}, release func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bl := &block{entered: make(chan struct{}), release: make(chan struct{})}
	b.blocks[op] = bl
	return bl.entered, func() { bl.once.Do(func() { close(bl.release) }) }
}

// Calls returns every recorded request in order.
func (b *RecordingBackend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	for i, c := range b.calls {
		out[i] = Call{Op: c.Op, Keys: slices.Clone(c.Keys)}
	}
	return out
}

// CallCount returns the number of requests recorded for op.
func (b *RecordingBackend) CallCount(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded requests.
func (b *RecordingBackend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

// Nodes returns the stored nodes.
func (b *RecordingBackend) Nodes() []model.NodeRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.nodes)
}

// Edges returns the stored edges.
func (b *RecordingBackend) Edges() []model.EdgeRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.edges)
}

// CheckCredentials fails while RequireToken is set and Token is empty.
func (b *RecordingBackend) CheckCredentials() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.RequireToken && b.Token == "" {
		return errors.New("testutil: token required")
	}
	return nil
}

// enter records a call, waits on a block if one is set, and returns any
// injected failure.
func (b *RecordingBackend) enter(ctx context.Context, op string, keys []string) error {
	b.mu.Lock()
	b.calls = append(b.calls, Call{Op: op, Keys: keys})
	bl := b.blocks[op]
	delete(b.blocks, op)
	b.mu.Unlock()

	if bl != nil {
		close(bl.entered)
		select {
		case <-bl.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if errs := b.failNext[op]; len(errs) > 0 {
		b.failNext[op] = errs[1:]
		return fmt.Errorf("%s: %w", op, errs[0])
	}
	if err, ok := b.failAll[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *RecordingBackend) LoadNodeTypes(ctx context.Context) ([]model.NodeType, error) {
	if err := b.enter(ctx, OpNodeTypes, nil); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.nodeTypes), nil
}

func (b *RecordingBackend) LoadEdgeTypes(ctx context.Context) ([]model.EdgeType, error) {
	if err := b.enter(ctx, OpEdgeTypes, nil); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.edgeTypes), nil
}

func (b *RecordingBackend) LoadNodes(ctx context.Context) ([]model.NodeRecord, error) {
	if err := b.enter(ctx, OpNodes, nil); err != nil {
		return nil, err
	}
	return b.Nodes(), nil
}

func (b *RecordingBackend) LoadEdges(ctx context.Context) ([]model.EdgeRecord, error) {
	if err := b.enter(ctx, OpEdges, nil); err != nil {
		return nil, err
	}
	return b.Edges(), nil
}

func (b *RecordingBackend) CreateNodes(ctx context.Context, nodes []model.NodeRecord) ([]model.CreatedRef, error) {
	if err := b.enter(ctx, OpCreateNodes, nodeIDs(nodes)); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	refs := make([]model.CreatedRef, 0, len(nodes))
	for _, n := range nodes {
		refs = append(refs, model.CreatedRef{TempID: n.ID, ID: b.insertNodeLocked(n)})
	}
	return refs, nil
}

func (b *RecordingBackend) UpdateNodes(ctx context.Context, nodes []model.NodeRecord) error {
	if err := b.enter(ctx, OpUpdateNodes, nodeIDs(nodes)); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range nodes {
		if i := slices.IndexFunc(b.nodes, func(s model.NodeRecord) bool { return s.ID == n.ID }); i >= 0 {
			b.nodes[i] = stripNode(n)
		}
	}
	return nil
}

func (b *RecordingBackend) DeleteNodes(ctx context.Context, ids []string) error {
	if err := b.enter(ctx, OpDeleteNodes, slices.Clone(ids)); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes = slices.DeleteFunc(b.nodes, func(n model.NodeRecord) bool { return slices.Contains(ids, n.ID) })
	b.edges = slices.DeleteFunc(b.edges, func(e model.EdgeRecord) bool {
		return slices.Contains(ids, e.StartID) || slices.Contains(ids, e.EndID)
	})
	return nil
}

func (b *RecordingBackend) CreateEdges(ctx context.Context, edges []model.EdgeRecord) ([]model.CreatedRef, error) {
	if err := b.enter(ctx, OpCreateEdges, edgeIDs(edges)); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range edges {
		if !b.hasNodeLocked(e.StartID) || !b.hasNodeLocked(e.EndID) {
			return nil, fmt.Errorf("%s: edge %q references unknown node (%q -> %q)", OpCreateEdges, e.ID, e.StartID, e.EndID)
		}
	}
	refs := make([]model.CreatedRef, 0, len(edges))
	for _, e := range edges {
		refs = append(refs, model.CreatedRef{TempID: e.ID, ID: b.insertEdgeLocked(e)})
	}
	return refs, nil
}

func (b *RecordingBackend) UpdateEdges(ctx context.Context, edges []model.EdgeRecord) error {
	if err := b.enter(ctx, OpUpdateEdges, edgeIDs(edges)); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range edges {
		if i := slices.IndexFunc(b.edges, func(s model.EdgeRecord) bool { return s.ID == e.ID }); i >= 0 {
			b.edges[i] = stripEdge(e)
		}
	}
	return nil
}

func (b *RecordingBackend) DeleteEdges(ctx context.Context, ids []string) error {
	if err := b.enter(ctx, OpDeleteEdges, slices.Clone(ids)); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edges = slices.DeleteFunc(b.edges, func(e model.EdgeRecord) bool { return slices.Contains(ids, e.ID) })
	return nil
}

func (b *RecordingBackend) insertNodeLocked(n model.NodeRecord) string {
	b.nodeSeq++
	n = stripNode(n)
	n.ID = fmt.Sprintf("n-%d", b.nodeSeq)
	b.nodes = append(b.nodes, n)
	return n.ID
}

func (b *RecordingBackend) insertEdgeLocked(e model.EdgeRecord) string {
	b.edgeSeq++
	e = stripEdge(e)
	e.ID = fmt.Sprintf("e-%d", b.edgeSeq)
	b.edges = append(b.edges, e)
	return e.ID
}

func (b *RecordingBackend) hasNodeLocked(id string) bool {
	return slices.ContainsFunc(b.nodes, func(n model.NodeRecord) bool { return n.ID == id })
}

// stripNode drops session-local fields a real backend would never see.
func stripNode(n model.NodeRecord) model.NodeRecord {
	n.Handle = 0
	n.EdgesOutgoing = nil
	n.EdgesIncoming = nil
	return n
}

func stripEdge(e model.EdgeRecord) model.EdgeRecord {
	e.Handle = 0
	e.StartHandle = 0
	e.EndHandle = 0
	return e
}

func nodeIDs(nodes []model.NodeRecord) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func edgeIDs(edges []model.EdgeRecord) []string {
	ids := make([]string, len(edges))
	for i, e := range edges {
		ids[i] = e.ID
	}
	return ids
}
