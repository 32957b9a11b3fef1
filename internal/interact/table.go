package interact

// Guard decides whether a transition may fire. Guards must not have side
// effects.
type Guard func(Context) bool

// Transition is one row of the table. A nil Guard always matches.
type Transition struct {
	From  State
	On    Trigger
	To    State
	Guard Guard
	// Name describes the guard for logs and test output.
	Name string
}

// Table is the default transition table. Rows out of the same state on the
// same trigger are tried in order; the first accepting guard wins.
var Table = []Transition{
	{From: Idle, On: MouseDown, To: Connecting, Guard: ConnectorOverNode, Name: "connector over node"},
	{From: Idle, On: MouseDown, To: Panning, Guard: PanTool, Name: "pan tool"},
	{From: Idle, On: MouseDown, To: Dragging, Guard: CursorOverNode, Name: "cursor over node"},
	{From: Idle, On: MouseDown, To: Selecting, Guard: CursorTool, Name: "cursor tool"},
	{From: Idle, On: MouseDown, To: CreateNode, Guard: AddNodeOffNode, Name: "add-node off node"},

	{From: Connecting, On: MouseUp, To: Idle, Name: "release"},
	{From: Panning, On: MouseUp, To: Idle, Name: "release"},
	{From: Dragging, On: MouseUp, To: Idle, Name: "release"},
	{From: Selecting, On: MouseUp, To: Idle, Name: "release"},
	{From: CreateNode, On: MouseUp, To: Idle, Name: "release"},
}

func ConnectorOverNode(c Context) bool { return c.Tool == ToolConnector && c.Pos.OverNode() }
func PanTool(c Context) bool           { return c.Tool == ToolPan }
func CursorOverNode(c Context) bool    { return c.Pos.OverNode() && c.Tool == ToolCursor }
func CursorTool(c Context) bool        { return c.Tool == ToolCursor }
func AddNodeOffNode(c Context) bool    { return !c.Pos.OverNode() && c.Tool == ToolAddNode }

func match(table []Transition, from State, on Trigger, ctx Context) (Transition, bool) {
	for _, t := range table {
		if t.From != from || t.On != on {
			continue
		}
		if t.Guard == nil || t.Guard(ctx) {
			return t, true
		}
	}
	return Transition{}, false
}
