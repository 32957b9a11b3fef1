package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one flush"
seed:
  nodes:
    - { key: a, name: a, type: user, x: 0, y: 0 }
steps:
  - flush: true
assertions:
  - type: count
    of: nodes
    count: 1
`

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/connect_drag_delete.yaml")
	require.NoError(t, err)

	assert.Equal(t, "connect_drag_delete", s.Name)
	require.Len(t, s.Seed.Nodes, 2)
	assert.Equal(t, SeedNode{Key: "admins", Name: "admins", Type: "group", X: 100}, s.Seed.Nodes[1])
	assert.Equal(t, []string{"member"}, s.Seed.EdgeTypes)

	require.Len(t, s.Steps, 12)
	assert.Equal(t, "connector", s.Steps[0].Tool)
	assert.Equal(t, &Point{X: 100, Y: 0}, s.Steps[3].Up)
	assert.Equal(t, time.Second, s.Steps[4].Advance)
	assert.True(t, s.Steps[9].Flush)
	assert.Equal(t, "Delete", s.Steps[10].Key)

	assert.Equal(t, []string{"create-edges", "update-nodes", "delete-nodes"}, s.Assertions[4].Events)
}

func TestLoadScenario_Drop(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/select_and_drop.yaml")
	require.NoError(t, err)

	assert.Equal(t, 20.0, s.GridSize)
	assert.Equal(t, &DropStep{At: Point{X: 73, Y: 47}, Name: "dave", Type: "user"}, s.Steps[8].Drop)
	assert.Equal(t, SeedEdge{Type: "member", Start: "alice", End: "bob"}, s.Seed.Edges[0])
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario+"assertion: []\n"), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nsteps: [{flush: true}]\nassertions: [{type: state, state: IDLE}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nsteps: [{flush: true}]\nassertions: [{type: state, state: IDLE}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\nassertions: [{type: state, state: IDLE}]\n",
			wantErr: "steps list is required",
		},
		{
			name:    "no assertions",
			yaml:    "name: n\ndescription: d\nsteps: [{flush: true}]\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "empty step",
			yaml:    "name: n\ndescription: d\nsteps: [{}]\nassertions: [{type: state, state: IDLE}]\n",
			wantErr: "steps[0]: no input set",
		},
		{
			name:    "two inputs",
			yaml:    "name: n\ndescription: d\nsteps: [{flush: true, key: Delete}]\nassertions: [{type: state, state: IDLE}]\n",
			wantErr: "2 inputs set",
		},
		{
			name:    "unknown tool",
			yaml:    "name: n\ndescription: d\nsteps: [{tool: lasso}]\nassertions: [{type: state, state: IDLE}]\n",
			wantErr: `unknown tool "lasso"`,
		},
		{
			name:    "select unknown key",
			yaml:    "name: n\ndescription: d\nsteps: [{select: [ghost]}]\nassertions: [{type: state, state: IDLE}]\n",
			wantErr: `select: unknown node "ghost"`,
		},
		{
			name:    "duplicate seed key",
			yaml:    "name: n\ndescription: d\nseed: {nodes: [{key: a}, {key: a}]}\nsteps: [{flush: true}]\nassertions: [{type: state, state: IDLE}]\n",
			wantErr: `duplicate key "a"`,
		},
		{
			name:    "edge to unknown node",
			yaml:    "name: n\ndescription: d\nseed: {nodes: [{key: a}], edges: [{type: x, start: a, end: b}]}\nsteps: [{flush: true}]\nassertions: [{type: state, state: IDLE}]\n",
			wantErr: `unknown end "b"`,
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\nsteps: [{flush: true}]\nassertions: [{type: final_state}]\n",
			wantErr: `unknown assertion type "final_state"`,
		},
		{
			name:    "count of what",
			yaml:    "name: n\ndescription: d\nsteps: [{flush: true}]\nassertions: [{type: count, of: types, count: 1}]\n",
			wantErr: "of must be nodes or edges",
		},
		{
			name:    "node_at unknown node",
			yaml:    "name: n\ndescription: d\nsteps: [{flush: true}]\nassertions: [{type: node_at, node: a}]\n",
			wantErr: `unknown node "a" for node_at`,
		},
		{
			name:    "request_count without op",
			yaml:    "name: n\ndescription: d\nsteps: [{flush: true}]\nassertions: [{type: request_count, count: 1}]\n",
			wantErr: "op is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
