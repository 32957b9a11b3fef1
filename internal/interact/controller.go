package interact

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/koppla/internal/editor"
	"github.com/roach88/koppla/internal/model"
)

// DefaultNodeRadius is the half-width of a node's hit box in world units.
const DefaultNodeRadius = 20.0

// Keys the controller reacts to.
const (
	KeyDelete    = "Delete"
	KeyBackspace = "Backspace"
)

// Surface is the editor a Controller drives. *editor.Editor implements it.
type Surface interface {
	ScreenToWorld(p model.Coords) model.Coords
	SnapToGrid(v float64) float64
	Pan(dx, dy float64)
	ZoomAt(screen model.Coords, factor float64)

	GetNode(h model.Handle) (model.NodeRecord, bool)
	GetNodes() []model.NodeRecord
	NodeAt(world model.Coords, radius float64) (model.NodeRecord, bool)
	NodesInRect(a, b model.Coords) []model.Handle

	CreateNode(data model.NodeRecord) (model.Handle, error)
	SetNodePosition(h model.Handle, x, y float64) error
	Connect(start, end model.Handle, typ model.EdgeTypeID) (model.Handle, error)
	DeleteNode(h model.Handle) error
	DeleteOutgoing(h model.Handle) error

	Select(handles []model.Handle)
	Selected() []model.Handle
}

var _ Surface = (*editor.Editor)(nil)

type dragOffset struct {
	handle model.Handle
	dx, dy float64
}

// Controller turns pointer and keyboard input into machine transitions and
// editor calls.
//
//   - Connecting: on release over another node, every selected node is
//     connected to it with the current edge type
//   - Dragging: selected nodes follow the pointer at their grab offsets,
//     snapped to the grid
//   - Selecting: on release, the nodes inside the dragged rectangle become
//     the selection
//   - Panning: the view follows the pointer
//   - CreateNode: on release, a node from the template is placed at the
//     snapped pointer position
//
// Thread-safety: Controller is not safe for concurrent use; feed it from one
// input goroutine.
type Controller struct {
	machine  *Machine
	surface  Surface
	radius   float64
	edgeType model.EdgeTypeID
	template model.NodeRecord
	logger   *slog.Logger

	offsets        []dragOffset
	selectionStart model.Coords
	panStart       model.Coords
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithNodeRadius sets the hit box half-width.
func WithNodeRadius(r float64) ControllerOption {
	return func(c *Controller) { c.radius = r }
}

// WithControllerLogger sets the logger.
func WithControllerLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// NewController drives s through m.
func NewController(m *Machine, s Surface, opts ...ControllerOption) *Controller {
	c := &Controller{
		machine:  m,
		surface:  s,
		radius:   DefaultNodeRadius,
		edgeType: model.DefaultEdgeTypeID,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Machine returns the state machine.
func (c *Controller) Machine() *Machine { return c.machine }

// SetTool changes the active tool.
func (c *Controller) SetTool(t Tool) { c.machine.SetTool(t) }

// SetEdgeType sets the type of edges created by connecting.
func (c *Controller) SetEdgeType(t model.EdgeTypeID) { c.edgeType = t }

// SetNodeTemplate sets the record used by the add-node tool.
func (c *Controller) SetNodeTemplate(n model.NodeRecord) { c.template = n }

// position resolves a screen point into world coordinates and the node under
// it, if any.
func (c *Controller) position(screen model.Coords) Position {
	pos := Position{Screen: screen, World: c.surface.ScreenToWorld(screen)}
	if n, ok := c.surface.NodeAt(pos.World, c.radius); ok {
		pos.Node = &n
	}
	return pos
}

// PointerDown handles a button press at screen.
func (c *Controller) PointerDown(screen model.Coords) State {
	pos := c.position(screen)
	state, ok := c.machine.Dispatch(MouseDown, Context{Pos: pos, Tool: c.machine.Tool()})
	if !ok && state != Idle {
		return state
	}

	switch state {
	case Panning:
		c.panStart = screen
	case Connecting:
		c.grab(pos.Node.Handle)
	case Dragging:
		c.grab(pos.Node.Handle)
		c.offsets = c.offsets[:0]
		for _, h := range c.surface.Selected() {
			n, ok := c.surface.GetNode(h)
			if !ok {
				continue
			}
			c.offsets = append(c.offsets, dragOffset{handle: h, dx: pos.World.X - n.X, dy: pos.World.Y - n.Y})
		}
	default:
		c.surface.Select(nil)
		c.selectionStart = pos.World
	}
	return state
}

// grab makes h the selection unless it is already part of it.
func (c *Controller) grab(h model.Handle) {
	if !slices.Contains(c.surface.Selected(), h) {
		c.surface.Select([]model.Handle{h})
	}
}

// PointerMove handles pointer motion to screen.
func (c *Controller) PointerMove(screen model.Coords) error {
	pos := c.position(screen)
	c.machine.Move(pos)

	switch c.machine.State() {
	case Dragging:
		var errs []error
		for _, off := range c.offsets {
			x := c.surface.SnapToGrid(pos.World.X - off.dx)
			y := c.surface.SnapToGrid(pos.World.Y - off.dy)
			if err := c.surface.SetNodePosition(off.handle, x, y); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	case Panning:
		c.surface.Pan(screen.X-c.panStart.X, screen.Y-c.panStart.Y)
		c.panStart = screen
	}
	return nil
}

// PointerUp handles a button release at screen and returns the machine to
// Idle.
func (c *Controller) PointerUp(screen model.Coords) error {
	pos := c.position(screen)
	c.machine.Move(pos)

	var err error
	switch c.machine.State() {
	case Connecting:
		err = c.connectSelected(pos.World)
	case Selecting:
		c.surface.Select(c.surface.NodesInRect(c.selectionStart, pos.World))
	case CreateNode:
		err = c.createAt(pos.World, c.template)
	}
	c.offsets = c.offsets[:0]

	c.machine.Dispatch(MouseUp, Context{Tool: c.machine.Tool()})
	return err
}

// connectSelected connects every selected node to the first other node whose
// hit box contains world.
func (c *Controller) connectSelected(world model.Coords) error {
	nodes := c.surface.GetNodes()
	var errs []error
	for _, h := range c.surface.Selected() {
		for _, n := range nodes {
			if n.Handle == h || !c.hit(n, world) {
				continue
			}
			if _, err := c.surface.Connect(h, n.Handle, c.edgeType); err != nil {
				errs = append(errs, err)
			}
			break
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) hit(n model.NodeRecord, world model.Coords) bool {
	dx, dy := world.X-n.X, world.Y-n.Y
	return dx >= -c.radius && dx <= c.radius && dy >= -c.radius && dy <= c.radius
}

func (c *Controller) createAt(world model.Coords, tmpl model.NodeRecord) error {
	tmpl.ID = ""
	tmpl.Handle = 0
	tmpl.EdgesOutgoing, tmpl.EdgesIncoming = nil, nil
	tmpl.X = c.surface.SnapToGrid(world.X)
	tmpl.Y = c.surface.SnapToGrid(world.Y)
	if _, err := c.surface.CreateNode(tmpl); err != nil {
		return fmt.Errorf("place node: %w", err)
	}
	return nil
}

// Drop places a node dragged in from a palette at screen.
func (c *Controller) Drop(screen model.Coords, n model.NodeRecord) error {
	return c.createAt(c.surface.ScreenToWorld(screen), n)
}

// Wheel zooms about screen; negative deltaY zooms in.
func (c *Controller) Wheel(screen model.Coords, deltaY float64) {
	c.surface.ZoomAt(screen, editor.WheelFactor(deltaY))
}

// Key handles a key press. Delete removes the selected nodes; Backspace
// removes their outgoing edges. Other keys are ignored.
func (c *Controller) Key(key string) error {
	sel := c.surface.Selected()
	if len(sel) == 0 {
		return nil
	}

	var errs []error
	switch key {
	case KeyDelete:
		for _, h := range sel {
			if err := c.surface.DeleteNode(h); err != nil {
				errs = append(errs, err)
			}
		}
		c.surface.Select(nil)
	case KeyBackspace:
		for _, h := range sel {
			if err := c.surface.DeleteOutgoing(h); err != nil {
				errs = append(errs, err)
			}
		}
	default:
		c.logger.Debug("key ignored", "key", key)
	}
	return errors.Join(errs...)
}
