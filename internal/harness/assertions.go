package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/koppla/internal/editor"
	"github.com/roach88/koppla/internal/interact"
	"github.com/roach88/koppla/internal/model"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step %d %s %s", event.Seq, event.Step, event.Type, event.Name)
			if len(event.Handles) > 0 {
				fmt.Fprintf(&buf, " %v", event.Handles)
			}
			if len(event.Keys) > 0 {
				fmt.Fprintf(&buf, " %v", event.Keys)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// AssertionContext is the final state assertions are evaluated against.
type AssertionContext struct {
	Editor  *editor.Editor
	Machine *interact.Machine
	// Nodes maps seed keys to handles.
	Nodes map[string]model.Handle
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertState:
			err = assertState(actx, a)
		case AssertCount:
			err = assertCount(actx, a)
		case AssertRequestCount:
			err = assertRequestCount(result.Trace, a)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertNodeAt:
			err = assertNodeAt(actx, a)
		case AssertSelection:
			err = assertSelection(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func assertState(actx *AssertionContext, a Assertion) error {
	got := actx.Machine.State().String()
	if !strings.EqualFold(got, a.State) {
		return &AssertionError{Type: AssertState, Expected: a.State, Actual: got}
	}
	return nil
}

func assertCount(actx *AssertionContext, a Assertion) error {
	var got int
	if a.Of == "nodes" {
		got = len(actx.Editor.GetNodes())
	} else {
		got = len(actx.Editor.GetEdges())
	}
	if got != a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d %s", a.Count, a.Of),
			Actual:   fmt.Sprintf("%d %s", got, a.Of),
		}
	}
	return nil
}

// assertRequestCount checks how many requests for an operation the steps
// caused. Loading the seed does not count.
func assertRequestCount(trace []TraceEvent, a Assertion) error {
	got := 0
	for _, ev := range trace {
		if ev.Type == TraceRequest && ev.Name == a.Op {
			got++
		}
	}
	if got != a.Count {
		return &AssertionError{
			Type:     AssertRequestCount,
			Expected: fmt.Sprintf("%s requested %d times", a.Op, a.Count),
			Actual:   fmt.Sprintf("%d times", got),
			Trace:    trace,
		}
	}
	return nil
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Name == a.Event {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %s", a.Event),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that events first appear in the given order.
// They don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if slices.Contains(a.Events, ev.Name) && positions[ev.Name] == 0 {
			positions[ev.Name] = i + 1 // 1-indexed for readability
		}
	}

	for _, name := range a.Events {
		if positions[name] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all events present: %v", a.Events),
				Actual:   fmt.Sprintf("missing event: %s", name),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Events); i++ {
		prev, curr := a.Events[i-1], a.Events[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertNodeAt(actx *AssertionContext, a Assertion) error {
	n, ok := actx.Editor.GetNode(actx.Nodes[a.Node])
	if !ok {
		return &AssertionError{
			Type:     AssertNodeAt,
			Expected: fmt.Sprintf("%s at (%g, %g)", a.Node, a.X, a.Y),
			Actual:   "node deleted",
		}
	}
	if n.X != a.X || n.Y != a.Y {
		return &AssertionError{
			Type:     AssertNodeAt,
			Expected: fmt.Sprintf("%s at (%g, %g)", a.Node, a.X, a.Y),
			Actual:   fmt.Sprintf("at (%g, %g)", n.X, n.Y),
		}
	}
	return nil
}

func assertSelection(actx *AssertionContext, a Assertion) error {
	want := make([]model.Handle, len(a.Nodes))
	for i, key := range a.Nodes {
		want[i] = actx.Nodes[key]
	}
	got := actx.Editor.Selected()
	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     AssertSelection,
			Expected: fmt.Sprintf("%v (%v)", a.Nodes, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}
