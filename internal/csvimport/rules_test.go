package csvimport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/koppla/internal/model"
)

const sampleRules = `
nodes:
  - id_column: user_id
    name_column: user_name
    type: user
relationships:
  - source: user_id
    target: groups
    edge_type: member
  - source: user_id
    target: groups
    edge_types:
      "role:admin": owner
`

func TestParseRules(t *testing.T) {
	rules, err := ParseRules(strings.NewReader(sampleRules))
	require.NoError(t, err)

	require.Len(t, rules.Nodes, 1)
	assert.Equal(t, model.NodeTypeID("user"), rules.Nodes[0].Type)
	require.Len(t, rules.Relationships, 2)
	assert.Equal(t, model.EdgeTypeID("member"), rules.Relationships[0].EdgeType)
	assert.Equal(t, "role", rules.Relationships[1].typeColumn())
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Len(t, rules.Relationships, 2)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseRules_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"node without columns", "nodes:\n  - type: user\n"},
		{"node without type", "nodes:\n  - id_column: a\n    name_column: b\n"},
		{"relationship without target", "relationships:\n  - source: a\n    edge_type: x\n"},
		{"both type forms", "relationships:\n  - source: a\n    target: b\n    edge_type: x\n    edge_types: {\"r:1\": y}\n"},
		{"bad lookup key", "relationships:\n  - source: a\n    target: b\n    edge_types: {\"r\": y}\n"},
		{"mixed lookup columns", "relationships:\n  - source: a\n    target: b\n    edge_types: {\"r:1\": y, \"s:2\": z}\n"},
		{"unknown field", "nodes:\n  - id_colum: a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestRelationshipRule_EdgeType(t *testing.T) {
	fixed := RelationshipRule{EdgeType: "member"}
	typ, _, ok := fixed.edgeType(Row{})
	assert.True(t, ok)
	assert.Equal(t, model.EdgeTypeID("member"), typ)

	lookup := RelationshipRule{EdgeTypes: map[string]model.EdgeTypeID{"role:admin": "owner"}}
	typ, key, ok := lookup.edgeType(Row{"role": {"admin"}})
	assert.True(t, ok)
	assert.Equal(t, "role:admin", key)
	assert.Equal(t, model.EdgeTypeID("owner"), typ)

	_, key, ok = lookup.edgeType(Row{"role": {"viewer"}})
	assert.False(t, ok)
	assert.Equal(t, "role:viewer", key)
}
