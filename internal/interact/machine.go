// Package interact is the pointer-interaction state machine.
//
// A Machine turns pointer triggers plus the active tool into one of a fixed
// set of interaction modes. It decides modes only: selecting nodes, capturing
// drag offsets or spawning a node is up to the caller after it reads the new
// state. Guards are pure functions of the dispatch Context.
package interact

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/koppla/internal/events"
	"github.com/roach88/koppla/internal/model"
)

// State is an interaction mode.
type State uint8

const (
	Idle State = iota
	Connecting
	Panning
	Selecting
	Dragging
	CreateNode
)

var stateNames = [...]string{"IDLE", "CONNECTING", "PANNING", "SELECTING", "DRAGGING", "CREATE_NODE"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// MarshalText renders the state name, so traces read "DRAGGING" not 4.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Trigger is a machine input. Pointer movement is not a trigger; see Move.
type Trigger uint8

const (
	MouseDown Trigger = iota
	MouseUp
)

func (t Trigger) String() string {
	switch t {
	case MouseDown:
		return "MOUSE_DOWN"
	case MouseUp:
		return "MOUSE_UP"
	default:
		return fmt.Sprintf("Trigger(%d)", uint8(t))
	}
}

func (t Trigger) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Tool is the active pointer tool.
type Tool uint8

const (
	ToolCursor Tool = iota
	ToolConnector
	ToolAddNode
	ToolPan
)

var toolNames = [...]string{"CURSOR", "CONNECTOR", "ADD_NODE", "PAN"}

func (t Tool) String() string {
	if int(t) < len(toolNames) {
		return toolNames[t]
	}
	return fmt.Sprintf("Tool(%d)", uint8(t))
}

// ParseTool accepts a tool name in any case.
func ParseTool(s string) (Tool, error) {
	for i, name := range toolNames {
		if strings.EqualFold(s, name) {
			return Tool(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tool %q", s)
}

func (t Tool) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tool) UnmarshalText(b []byte) error {
	v, err := ParseTool(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Position is where the pointer is. Node is the node under the pointer, if any.
type Position struct {
	Screen model.Coords
	World  model.Coords
	Node   *model.NodeRecord
}

// OverNode reports whether the pointer is over a node.
func (p Position) OverNode() bool { return p.Node != nil }

// Context is carried with every dispatch.
type Context struct {
	Pos  Position
	Tool Tool
	// Input is the raw input event, opaque to the machine.
	Input any
}

// TransitionEvent reports a state change. Its kind is the state entered.
type TransitionEvent struct {
	From    State
	To      State
	Trigger Trigger
	Tool    Tool
}

func (e TransitionEvent) EventKind() State { return e.To }

// Machine is a guarded finite-state machine over Table.
//
// Thread-safety: all methods are safe for concurrent use. Listeners run after
// the state has changed, outside the machine's lock.
type Machine struct {
	mu     sync.Mutex
	table  []Transition
	state  State
	ctx    Context
	events *events.Emitter[State, TransitionEvent]
	logger *slog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger used for unmatched dispatches.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithTable replaces the transition table.
func WithTable(table []Transition) Option {
	return func(m *Machine) { m.table = table }
}

// NewMachine creates a machine in Idle with the cursor tool.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		table:  Table,
		events: events.NewEmitter[State, TransitionEvent](),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dispatch sets the context and fires the first transition out of the current
// state for trigger whose guard accepts it. If none matches, the machine stays
// where it is; that is logged and reported as false.
func (m *Machine) Dispatch(trigger Trigger, ctx Context) (State, bool) {
	m.mu.Lock()
	m.ctx = ctx
	from := m.state
	t, ok := match(m.table, from, trigger, ctx)
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("no transition matched",
			"state", from, "trigger", trigger, "tool", ctx.Tool, "over_node", ctx.Pos.OverNode())
		return from, false
	}
	m.state = t.To
	m.mu.Unlock()

	m.events.Emit(TransitionEvent{From: from, To: t.To, Trigger: trigger, Tool: ctx.Tool})
	return t.To, true
}

// Move records a pointer position without changing state.
func (m *Machine) Move(pos Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx.Pos = pos
}

// SetTool changes the active tool for later dispatches.
func (m *Machine) SetTool(t Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx.Tool = t
}

// Tool returns the active tool.
func (m *Machine) Tool() Tool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx.Tool
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Is reports whether the machine is in s.
func (m *Machine) Is(s State) bool {
	return m.State() == s
}

// Context returns the context of the last dispatch or move.
func (m *Machine) Context() Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// OnEnter subscribes fn to transitions into s.
func (m *Machine) OnEnter(s State, fn func(TransitionEvent)) *events.Subscription {
	return m.events.On(s, fn)
}

// OnTransition subscribes fn to every transition.
func (m *Machine) OnTransition(fn func(TransitionEvent)) *events.Subscription {
	return m.events.OnAny(fn)
}
