package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/koppla/internal/engine"
	"github.com/roach88/koppla/internal/events"
	"github.com/roach88/koppla/internal/kernel"
	"github.com/roach88/koppla/internal/model"
)

// ErrUnresolvedEndpoint is returned by CreateEdge when a start or end id has
// no node in the store.
var ErrUnresolvedEndpoint = errors.New("editor: unresolved edge endpoint")

// DefaultGridSize is the snapping grid used when none is configured.
const DefaultGridSize = 20

// Editor coordinates the kernel, the graph store and the event stream.
//
// Thread-safety: all methods are safe for concurrent use. Mutations are
// serialized by an internal mutex; listeners run after it is released.
type Editor struct {
	mu     sync.Mutex
	kernel kernel.Kernel
	store  engine.GraphStore
	events *events.Emitter[EventKind, Event]
	logger *slog.Logger

	gridSize float64
	force    kernel.ForceParams

	view     view
	selected []model.Handle
}

// Option configures an Editor.
type Option func(*Editor)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Editor) { e.logger = l }
}

// WithGridSize sets the snapping grid. Zero disables snapping.
func WithGridSize(size float64) Option {
	return func(e *Editor) { e.gridSize = size }
}

// WithForceParams sets the parameters SortNodes hands to the kernel.
func WithForceParams(p kernel.ForceParams) Option {
	return func(e *Editor) { e.force = p }
}

// New creates an editor over k and s. Call Init to load the project.
func New(k kernel.Kernel, s engine.GraphStore, opts ...Option) *Editor {
	e := &Editor{
		kernel:   k,
		store:    s,
		events:   events.NewEmitter[EventKind, Event](),
		logger:   slog.Default(),
		gridSize: DefaultGridSize,
		force:    kernel.DefaultForceParams,
		view:     view{scale: 1},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init loads types, nodes and edges through the store. The editor becomes
// usable even when parts of the load fail; the error reports what was skipped.
func (e *Editor) Init(ctx context.Context) error {
	return e.store.Init(ctx, e)
}

// AllocNode implements engine.Loader.
func (e *Editor) AllocNode(x, y float64) model.Handle {
	return e.kernel.CreateNode(x, y)
}

// AllocEdge implements engine.Loader.
func (e *Editor) AllocEdge(start, end model.Handle) (model.Handle, error) {
	return e.kernel.CreateEdge(start, end)
}

// Loaded implements engine.Loader.
func (e *Editor) Loaded() {
	e.emit(e.worldEvent(WorldUpdated))
}

// Flush persists everything queued in the store now.
func (e *Editor) Flush(ctx context.Context) error {
	return e.store.Flush(ctx)
}

// Store returns the graph store the editor writes through.
func (e *Editor) Store() engine.GraphStore {
	return e.store
}

// On subscribes fn to events of one kind.
func (e *Editor) On(kind EventKind, fn func(Event)) *events.Subscription {
	return e.events.On(kind, fn)
}

// OnAny subscribes fn to every event.
func (e *Editor) OnAny(fn func(Event)) *events.Subscription {
	return e.events.OnAny(fn)
}

func (e *Editor) emit(evs ...Event) {
	for _, ev := range evs {
		e.events.Emit(ev)
	}
}

// CreateNode places a node at data.X, data.Y in world coordinates and stores
// its record. data.ID is empty for new nodes; the store assigns a temp id.
func (e *Editor) CreateNode(data model.NodeRecord) (model.Handle, error) {
	data.Name = model.NormalizeName(data.Name)

	e.mu.Lock()
	h := e.kernel.CreateNode(data.X, data.Y)
	if _, err := e.store.SetNode(h, data); err != nil {
		e.rollbackNode(h)
		e.mu.Unlock()
		return 0, fmt.Errorf("create node: %w", err)
	}
	e.mu.Unlock()

	e.emit(NodeEvent{Kind: NodeCreated, Handle: h}, e.worldEvent(WorldUpdated))
	return h, nil
}

// CreateEdge connects the nodes stored under data.StartID and data.EndID.
// Either id may still be a temp id. Fails with ErrUnresolvedEndpoint if an
// endpoint is not in the store.
func (e *Editor) CreateEdge(data model.EdgeRecord) (model.Handle, error) {
	start, ok := e.store.NodeHandleByID(data.StartID)
	if !ok {
		return 0, fmt.Errorf("create edge: %w: start %q", ErrUnresolvedEndpoint, data.StartID)
	}
	end, ok := e.store.NodeHandleByID(data.EndID)
	if !ok {
		return 0, fmt.Errorf("create edge: %w: end %q", ErrUnresolvedEndpoint, data.EndID)
	}
	data.StartHandle, data.EndHandle = start, end
	return e.connect(data)
}

// Connect creates an edge of type typ between two node handles.
func (e *Editor) Connect(start, end model.Handle, typ model.EdgeTypeID) (model.Handle, error) {
	return e.connect(model.EdgeRecord{Type: typ, StartHandle: start, EndHandle: end})
}

func (e *Editor) connect(data model.EdgeRecord) (model.Handle, error) {
	e.mu.Lock()
	h, err := e.kernel.CreateEdge(data.StartHandle, data.EndHandle)
	if err != nil {
		e.mu.Unlock()
		return 0, fmt.Errorf("create edge: %w", err)
	}
	rec, err := e.store.SetEdge(h, data)
	if err != nil {
		if kerr := e.kernel.DeleteEdge(h); kerr != nil {
			e.logger.Error("edge rollback failed", "handle", h, "error", kerr)
		}
		e.mu.Unlock()
		return 0, fmt.Errorf("create edge: %w", err)
	}
	e.mu.Unlock()

	e.emit(EdgeEvent{Kind: EdgeCreated, Handle: h, Start: rec.StartHandle, End: rec.EndHandle, Type: rec.Type},
		e.worldEvent(WorldUpdated))
	return h, nil
}

func (e *Editor) rollbackNode(h model.Handle) {
	if err := e.kernel.DeleteNode(h); err != nil {
		e.logger.Error("node rollback failed", "handle", h, "error", err)
	}
}

// DeleteNode deletes every edge incident to h and then h itself.
func (e *Editor) DeleteNode(h model.Handle) error {
	e.mu.Lock()
	if _, ok := e.store.NodeByHandle(h); !ok {
		e.mu.Unlock()
		return fmt.Errorf("delete node %d: %w", h, engine.ErrUnknownHandle)
	}

	incident := slices.Concat(e.outgoing(h), e.incoming(h))
	slices.Sort(incident)
	incident = slices.Compact(incident)

	var evs []Event
	for _, eh := range incident {
		ev, err := e.deleteEdgeLocked(eh)
		if err != nil {
			e.mu.Unlock()
			e.emit(evs...)
			return fmt.Errorf("delete node %d: %w", h, err)
		}
		evs = append(evs, ev)
	}

	if err := e.store.DeleteNode(h); err != nil {
		e.mu.Unlock()
		e.emit(evs...)
		return fmt.Errorf("delete node %d: %w", h, err)
	}
	if err := e.kernel.DeleteNode(h); err != nil {
		e.logger.Error("kernel and store disagree", "handle", h, "error", err)
	}
	e.selected = slices.DeleteFunc(e.selected, func(s model.Handle) bool { return s == h })
	e.mu.Unlock()

	e.emit(append(evs, NodeEvent{Kind: NodeDeleted, Handle: h}, e.worldEvent(WorldUpdated))...)
	return nil
}

// DeleteEdge deletes one edge.
func (e *Editor) DeleteEdge(h model.Handle) error {
	e.mu.Lock()
	ev, err := e.deleteEdgeLocked(h)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete edge %d: %w", h, err)
	}
	e.emit(ev, e.worldEvent(WorldUpdated))
	return nil
}

// DeleteOutgoing deletes every edge that starts at h. A node without outgoing
// edges is left alone and nothing is emitted.
func (e *Editor) DeleteOutgoing(h model.Handle) error {
	e.mu.Lock()
	out := e.outgoing(h)
	var evs []Event
	for _, eh := range out {
		ev, err := e.deleteEdgeLocked(eh)
		if err != nil {
			e.mu.Unlock()
			e.emit(evs...)
			return fmt.Errorf("delete outgoing %d: %w", h, err)
		}
		evs = append(evs, ev)
	}
	e.mu.Unlock()

	if len(evs) == 0 {
		return nil
	}
	e.emit(append(evs, e.worldEvent(WorldUpdated))...)
	return nil
}

func (e *Editor) deleteEdgeLocked(h model.Handle) (Event, error) {
	rec, ok := e.store.EdgeByHandle(h)
	if !ok {
		return nil, fmt.Errorf("edge %d: %w", h, engine.ErrUnknownHandle)
	}
	if err := e.store.DeleteEdge(h); err != nil {
		return nil, err
	}
	if err := e.kernel.DeleteEdge(h); err != nil {
		e.logger.Error("kernel and store disagree", "handle", h, "error", err)
	}
	return EdgeEvent{Kind: EdgeDeleted, Handle: h, Start: rec.StartHandle, End: rec.EndHandle, Type: rec.Type}, nil
}

// SetNodePosition moves a node and persists its new coordinates.
func (e *Editor) SetNodePosition(h model.Handle, x, y float64) error {
	e.mu.Lock()
	if err := e.kernel.SetNodePosition(h, x, y); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("set position %d: %w", h, err)
	}
	err := e.persistPositionLocked(h)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("set position %d: %w", h, err)
	}

	e.emit(NodeEvent{Kind: NodeUpdated, Handle: h}, e.worldEvent(WorldUpdated))
	return nil
}

// UpdateNode applies fn to the record of h and persists it. Geometry is
// owned by the kernel; changes fn makes to X or Y are ignored.
func (e *Editor) UpdateNode(h model.Handle, fn func(*model.NodeRecord)) error {
	e.mu.Lock()
	rec, ok := e.store.NodeByHandle(h)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("update node %d: %w", h, engine.ErrUnknownHandle)
	}
	fn(&rec)
	rec.Name = model.NormalizeName(rec.Name)
	rec.X, rec.Y = e.kernel.NodeX(h), e.kernel.NodeY(h)
	_, err := e.store.SetNode(h, rec)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("update node %d: %w", h, err)
	}

	e.emit(NodeEvent{Kind: NodeUpdated, Handle: h}, e.worldEvent(WorldUpdated))
	return nil
}

// persistPositionLocked copies the kernel's coordinates for h into its record.
func (e *Editor) persistPositionLocked(h model.Handle) error {
	rec, ok := e.store.NodeByHandle(h)
	if !ok {
		return engine.ErrUnknownHandle
	}
	rec.X, rec.Y = e.kernel.NodeX(h), e.kernel.NodeY(h)
	_, err := e.store.SetNode(h, rec)
	return err
}

// GetNode returns the record for h with geometry and adjacency read from the
// kernel.
func (e *Editor) GetNode(h model.Handle) (model.NodeRecord, bool) {
	if !e.kernel.HasNode(h) {
		return model.NodeRecord{}, false
	}
	rec, ok := e.store.NodeByHandle(h)
	if !ok {
		e.logger.Warn("kernel node has no record", "handle", h)
		return model.NodeRecord{}, false
	}
	rec.Handle = h
	rec.X, rec.Y = e.kernel.NodeX(h), e.kernel.NodeY(h)
	rec.EdgesOutgoing = e.outgoing(h)
	rec.EdgesIncoming = e.incoming(h)
	return rec, true
}

// GetNodes returns every node in kernel order.
func (e *Editor) GetNodes() []model.NodeRecord {
	n := e.kernel.NodeCount()
	out := make([]model.NodeRecord, 0, n)
	for i := range n {
		if rec, ok := e.GetNode(e.kernel.NodeAt(i)); ok {
			out = append(out, rec)
		}
	}
	return out
}

// GetEdge returns the record for h with endpoints read from the kernel.
func (e *Editor) GetEdge(h model.Handle) (model.EdgeRecord, bool) {
	start, end, ok := e.kernel.EdgeEndpoints(h)
	if !ok {
		return model.EdgeRecord{}, false
	}
	rec, ok := e.store.EdgeByHandle(h)
	if !ok {
		e.logger.Warn("kernel edge has no record", "handle", h)
		return model.EdgeRecord{}, false
	}
	rec.Handle, rec.StartHandle, rec.EndHandle = h, start, end
	return rec, true
}

// GetEdges returns every edge in kernel order.
func (e *Editor) GetEdges() []model.EdgeRecord {
	n := e.kernel.EdgeCount()
	out := make([]model.EdgeRecord, 0, n)
	for i := range n {
		if rec, ok := e.GetEdge(e.kernel.EdgeAt(i)); ok {
			out = append(out, rec)
		}
	}
	return out
}

func (e *Editor) outgoing(h model.Handle) []model.Handle {
	n := e.kernel.OutgoingCount(h)
	out := make([]model.Handle, n)
	for i := range n {
		out[i] = e.kernel.OutgoingAt(h, i)
	}
	return out
}

func (e *Editor) incoming(h model.Handle) []model.Handle {
	n := e.kernel.IncomingCount(h)
	out := make([]model.Handle, n)
	for i := range n {
		out[i] = e.kernel.IncomingAt(h, i)
	}
	return out
}

// Select replaces the selection. Handles that are not live nodes are dropped.
func (e *Editor) Select(handles []model.Handle) {
	e.mu.Lock()
	sel := make([]model.Handle, 0, len(handles))
	for _, h := range handles {
		if e.kernel.HasNode(h) && !slices.Contains(sel, h) {
			sel = append(sel, h)
		}
	}
	e.selected = sel
	e.mu.Unlock()

	e.emit(SelectionEvent{Handles: slices.Clone(sel)})
}

// Selected returns the selected node handles in selection order.
func (e *Editor) Selected() []model.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.selected)
}

// IsSelected reports whether h is selected.
func (e *Editor) IsSelected(h model.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Contains(e.selected, h)
}
