package harness

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/koppla/internal/editor"
	"github.com/roach88/koppla/internal/engine"
	"github.com/roach88/koppla/internal/interact"
	"github.com/roach88/koppla/internal/kernel"
	"github.com/roach88/koppla/internal/model"
	"github.com/roach88/koppla/internal/testutil"
)

// requestRank orders the requests of one step: nodes before edges, and
// create, update, delete within a kind. A persistence cycle issues each
// kind's requests concurrently, so their arrival order is not stable.
var requestRank = map[string]int{
	testutil.OpNodeTypes:   0,
	testutil.OpEdgeTypes:   1,
	testutil.OpNodes:       2,
	testutil.OpEdges:       3,
	testutil.OpCreateNodes: 4,
	testutil.OpUpdateNodes: 5,
	testutil.OpDeleteNodes: 6,
	testutil.OpCreateEdges: 7,
	testutil.OpUpdateEdges: 8,
	testutil.OpDeleteEdges: 9,
}

// Harness runs one scenario against a fresh editor, state machine and
// recording backend. Time only moves when a step advances the manual clock.
type Harness struct {
	backend    *testutil.RecordingBackend
	clock      *testutil.ManualClock
	store      *engine.Store
	editor     *editor.Editor
	machine    *interact.Machine
	controller *interact.Controller
	logger     *slog.Logger

	nodes  map[string]model.Handle
	result *Result
	step   int
	seen   int
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Seed a recording backend and load it through Editor.Init
//  2. Feed every step to the controller, tracing transitions, editor events
//     and the backend requests the step caused
//  3. Evaluate assertions against the trace and final state
//
// A step that returns an error aborts the run.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	h := newHarness(scenario)
	defer func() {
		if err := h.store.Close(ctx); err != nil {
			h.logger.Debug("close store", "error", err)
		}
	}()

	if err := h.load(ctx, scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to load seed: %w", err)
	}

	transitions := h.machine.OnTransition(h.traceTransition)
	defer transitions.Unsubscribe()
	events := h.editor.OnAny(h.traceEditorEvent)
	defer events.Unsubscribe()

	for i, step := range scenario.Steps {
		h.step = i
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		h.traceRequests()
	}

	actx := &AssertionContext{
		Editor:  h.editor,
		Machine: h.machine,
		Nodes:   h.nodes,
	}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func newHarness(s *Scenario) *Harness {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		backend: testutil.NewRecordingBackend(),
		clock:   testutil.NewManualClock(),
		logger:  logger,
		nodes:   make(map[string]model.Handle, len(s.Seed.Nodes)),
		result:  NewResult(),
	}
	h.store = engine.New(h.backend,
		engine.WithLogger(logger),
		engine.WithTimers(h.clock),
		engine.WithTempIDs(engine.NewSequenceGenerator("t")))

	editorOpts := []editor.Option{editor.WithLogger(logger)}
	if s.GridSize > 0 {
		editorOpts = append(editorOpts, editor.WithGridSize(s.GridSize))
	}
	h.editor = editor.New(kernel.NewGraph(), h.store, editorOpts...)
	h.machine = interact.NewMachine(interact.WithLogger(logger))
	h.controller = interact.NewController(h.machine, h.editor, interact.WithControllerLogger(logger))
	return h
}

// load seeds the backend, initializes the editor from it and resolves seed
// keys to handles. Requests made while loading are not traced.
func (h *Harness) load(ctx context.Context, seed Seed) error {
	nodeTypes := make([]model.NodeType, 0, len(seed.NodeTypes))
	for _, t := range seed.NodeTypes {
		nodeTypes = append(nodeTypes, model.NodeType{ID: model.NodeTypeID(t), Name: t})
	}
	edgeTypes := make([]model.EdgeType, 0, len(seed.EdgeTypes))
	for _, t := range seed.EdgeTypes {
		edgeTypes = append(edgeTypes, model.EdgeType{ID: model.EdgeTypeID(t), Name: t})
	}
	h.backend.SeedTypes(nodeTypes, edgeTypes)

	ids := make(map[string]string, len(seed.Nodes))
	for _, n := range seed.Nodes {
		ids[n.Key] = h.backend.SeedNode(model.NodeRecord{
			Name:     n.Name,
			Type:     model.NodeTypeID(n.Type),
			Metadata: n.Metadata,
			X:        n.X,
			Y:        n.Y,
		})
	}
	for _, e := range seed.Edges {
		h.backend.SeedEdge(model.EdgeRecord{
			Type:    model.EdgeTypeID(e.Type),
			StartID: ids[e.Start],
			EndID:   ids[e.End],
		})
	}

	if err := h.editor.Init(ctx); err != nil {
		return err
	}
	for key, id := range ids {
		handle, ok := h.store.NodeHandleByID(id)
		if !ok {
			return fmt.Errorf("seed node %q was not loaded", key)
		}
		h.nodes[key] = handle
	}
	h.seen = len(h.backend.Calls())
	return nil
}

func (h *Harness) execute(ctx context.Context, step Step) error {
	switch {
	case step.Tool != "":
		tool, err := interact.ParseTool(step.Tool)
		if err != nil {
			return err
		}
		h.controller.SetTool(tool)
	case step.EdgeType != "":
		h.controller.SetEdgeType(model.EdgeTypeID(step.EdgeType))
	case step.Select != nil:
		handles := make([]model.Handle, 0, len(step.Select))
		for _, key := range step.Select {
			handles = append(handles, h.nodes[key])
		}
		h.editor.Select(handles)
	case step.Down != nil:
		h.controller.PointerDown(step.Down.coords())
	case step.Move != nil:
		return h.controller.PointerMove(step.Move.coords())
	case step.Up != nil:
		return h.controller.PointerUp(step.Up.coords())
	case step.Key != "":
		return h.controller.Key(step.Key)
	case step.Wheel != nil:
		h.controller.Wheel(step.Wheel.At.coords(), step.Wheel.Delta)
	case step.Drop != nil:
		return h.controller.Drop(step.Drop.At.coords(), model.NodeRecord{
			Name: step.Drop.Name,
			Type: model.NodeTypeID(step.Drop.Type),
		})
	case step.Advance > 0:
		h.clock.Advance(step.Advance)
	case step.Flush:
		return h.editor.Flush(ctx)
	}
	return nil
}

func (p Point) coords() model.Coords { return model.Coords{X: p.X, Y: p.Y} }

func (h *Harness) traceTransition(ev interact.TransitionEvent) {
	h.result.add(TraceEvent{
		Step: h.step,
		Type: TraceTransition,
		Name: ev.From.String() + "->" + ev.To.String(),
	})
}

// traceEditorEvent records editor events. Redraw requests are left out; they
// follow almost every mutation and carry no information of their own.
func (h *Harness) traceEditorEvent(ev editor.Event) {
	te := TraceEvent{Step: h.step, Type: TraceEditorEvent, Name: string(ev.EventKind())}
	switch e := ev.(type) {
	case editor.WorldEvent:
		if e.Kind == editor.WorldUpdated {
			return
		}
	case editor.NodeEvent:
		te.Handles = []model.Handle{e.Handle}
	case editor.EdgeEvent:
		te.Handles = []model.Handle{e.Handle}
	case editor.SelectionEvent:
		te.Handles = e.Handles
	}
	h.result.add(te)
}

// traceRequests records the backend requests made since the last call.
func (h *Harness) traceRequests() {
	calls := h.backend.Calls()
	fresh := slices.Clone(calls[h.seen:])
	h.seen = len(calls)

	slices.SortStableFunc(fresh, func(a, b testutil.Call) int {
		return cmp.Compare(requestRank[a.Op], requestRank[b.Op])
	})
	for _, c := range fresh {
		h.result.add(TraceEvent{Step: h.step, Type: TraceRequest, Name: c.Op, Keys: c.Keys})
	}
}
