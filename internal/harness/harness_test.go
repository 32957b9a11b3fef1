package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{"connect_drag_delete", "select_and_drop"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/select_and_drop.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalTrace(s.Name, first.Trace)
	require.NoError(t, err)
	b, err := MarshalTrace(s.Name, second.Trace)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_FailingAssertions(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: failing
description: "assertions that do not hold"
seed:
  nodes:
    - { key: a, name: a, type: user, x: 0, y: 0 }
steps:
  - down: { x: 0, y: 0 }
assertions:
  - type: state
    state: IDLE
  - type: count
    of: nodes
    count: 2
  - type: node_at
    node: a
    x: 20
    y: 0
  - type: trace_contains
    event: node:create
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "Actual: DRAGGING")
	assert.Contains(t, result.Errors[1], "Actual: 1 nodes")
	assert.Contains(t, result.Errors[2], "Actual: at (0, 0)")
	assert.Contains(t, result.Errors[3], "not found in trace")
}

func TestRun_SelectStep(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: select_step
description: "select by key, then delete"
seed:
  nodes:
    - { key: a, name: a, type: user, x: 0, y: 0 }
    - { key: b, name: b, type: user, x: 100, y: 0 }
steps:
  - select: [b]
  - key: Delete
  - flush: true
assertions:
  - type: count
    of: nodes
    count: 1
  - type: node_at
    node: a
    x: 0
    y: 0
  - type: request_count
    op: delete-nodes
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.NotEmpty(t, result.Trace)
	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, TraceEvent{Seq: len(result.Trace), Step: 2, Type: TraceRequest, Name: "delete-nodes", Keys: []string{"n-2"}}, last)
}
