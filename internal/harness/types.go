package harness

import "github.com/roach88/koppla/internal/model"

// Trace event types.
const (
	// TraceTransition is an interaction state change, named FROM->TO.
	TraceTransition = "transition"
	// TraceEditorEvent is an editor event, named by its kind.
	TraceEditorEvent = "event"
	// TraceRequest is a backend request, named by its operation.
	TraceRequest = "request"
)

// TraceEvent is one entry of a scenario trace.
type TraceEvent struct {
	Seq  int    `json:"seq"`
	Step int    `json:"step"`
	Type string `json:"type"`
	Name string `json:"name"`
	// Handles are the node or edge handles an editor event refers to.
	Handles []model.Handle `json:"handles,omitempty"`
	// Keys are the ids a backend request carried.
	Keys []string `json:"keys,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Trace contains transitions, editor events and backend requests in the
	// order they happened. Requests issued during one step are reported after
	// that step's events, node requests before edge requests.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
