package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/koppla/internal/interact"
)

// Scenario is a scripted editing session.
// The seed is loaded through the editor's normal Init path, the steps are fed
// to the pointer controller one by one, and the assertions are evaluated
// against the resulting trace and the final editor state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// GridSize overrides the editor's snapping grid. Zero keeps the default.
	GridSize float64 `yaml:"grid_size,omitempty"`

	// Seed is the project state the backend starts with.
	Seed Seed `yaml:"seed"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Seed is the backend's starting content.
type Seed struct {
	NodeTypes []string   `yaml:"node_types,omitempty"`
	EdgeTypes []string   `yaml:"edge_types,omitempty"`
	Nodes     []SeedNode `yaml:"nodes,omitempty"`
	Edges     []SeedEdge `yaml:"edges,omitempty"`
}

// SeedNode is a stored node. Key is how steps and assertions refer to it.
type SeedNode struct {
	Key      string  `yaml:"key"`
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type"`
	Metadata string  `yaml:"metadata,omitempty"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
}

// SeedEdge is a stored edge between two seed nodes, by key.
type SeedEdge struct {
	Type  string `yaml:"type"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Point is a screen position.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// WheelStep scrolls the wheel at a screen position.
type WheelStep struct {
	At    Point   `yaml:"at"`
	Delta float64 `yaml:"delta"`
}

// DropStep drops a palette node at a screen position.
type DropStep struct {
	At   Point  `yaml:"at"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Step is one input. Exactly one field must be set.
type Step struct {
	Tool     string        `yaml:"tool,omitempty"`
	EdgeType string        `yaml:"edge_type,omitempty"`
	Select   []string      `yaml:"select,omitempty"`
	Down     *Point        `yaml:"down,omitempty"`
	Move     *Point        `yaml:"move,omitempty"`
	Up       *Point        `yaml:"up,omitempty"`
	Key      string        `yaml:"key,omitempty"`
	Wheel    *WheelStep    `yaml:"wheel,omitempty"`
	Drop     *DropStep     `yaml:"drop,omitempty"`
	Advance  time.Duration `yaml:"advance,omitempty"`
	Flush    bool          `yaml:"flush,omitempty"`
}

// actions counts the inputs set on the step.
func (s Step) actions() int {
	n := 0
	for _, set := range []bool{
		s.Tool != "", s.EdgeType != "", s.Select != nil,
		s.Down != nil, s.Move != nil, s.Up != nil,
		s.Key != "", s.Wheel != nil, s.Drop != nil,
		s.Advance != 0, s.Flush,
	} {
		if set {
			n++
		}
	}
	return n
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// State is the expected machine state name (state).
	State string `yaml:"state,omitempty"`

	// Of is "nodes" or "edges" (count).
	Of string `yaml:"of,omitempty"`

	// Op is a backend operation name (request_count).
	Op string `yaml:"op,omitempty"`

	// Count is the expected number (count, request_count).
	Count int `yaml:"count,omitempty"`

	// Event is a trace event name (trace_contains).
	Event string `yaml:"event,omitempty"`

	// Events are trace event names in expected order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Node is a seed key (node_at).
	Node string  `yaml:"node,omitempty"`
	X    float64 `yaml:"x,omitempty"`
	Y    float64 `yaml:"y,omitempty"`

	// Nodes are seed keys in selection order (selection).
	Nodes []string `yaml:"nodes,omitempty"`
}

// Assertion type constants.
const (
	AssertState         = "state"
	AssertCount         = "count"
	AssertRequestCount  = "request_count"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertNodeAt        = "node_at"
	AssertSelection     = "selection"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.GridSize < 0 {
		return fmt.Errorf("grid_size must be non-negative")
	}

	keys := make(map[string]bool, len(s.Seed.Nodes))
	for i, n := range s.Seed.Nodes {
		if n.Key == "" {
			return fmt.Errorf("seed.nodes[%d]: key is required", i)
		}
		if keys[n.Key] {
			return fmt.Errorf("seed.nodes[%d]: duplicate key %q", i, n.Key)
		}
		keys[n.Key] = true
	}
	for i, e := range s.Seed.Edges {
		if !keys[e.Start] {
			return fmt.Errorf("seed.edges[%d]: unknown start %q", i, e.Start)
		}
		if !keys[e.End] {
			return fmt.Errorf("seed.edges[%d]: unknown end %q", i, e.End)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step, keys); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, keys); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step, keys map[string]bool) error {
	switch n := step.actions(); {
	case n == 0:
		return fmt.Errorf("no input set")
	case n > 1:
		return fmt.Errorf("%d inputs set, want exactly one", n)
	}
	if step.Tool != "" {
		if _, err := interact.ParseTool(step.Tool); err != nil {
			return err
		}
	}
	for _, k := range step.Select {
		if !keys[k] {
			return fmt.Errorf("select: unknown node %q", k)
		}
	}
	if step.Advance < 0 {
		return fmt.Errorf("advance must be positive")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, keys map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for state", index)
		}
	case AssertCount:
		if a.Of != "nodes" && a.Of != "edges" {
			return fmt.Errorf("assertions[%d]: of must be nodes or edges, got %q", index, a.Of)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertRequestCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for request_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertNodeAt:
		if !keys[a.Node] {
			return fmt.Errorf("assertions[%d]: unknown node %q for node_at", index, a.Node)
		}
	case AssertSelection:
		for _, k := range a.Nodes {
			if !keys[k] {
				return fmt.Errorf("assertions[%d]: unknown node %q for selection", index, k)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
