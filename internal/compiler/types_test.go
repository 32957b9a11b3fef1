package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/koppla/internal/model"
)

func compile(t *testing.T, src, path string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return v.LookupPath(cue.ParsePath(path))
}

func TestCompileNodeType(t *testing.T) {
	v := compile(t, `
		node_type: user: {
			name:         "User"
			fill_color:   "blue"
			stroke_color: "#1f2937"
			stroke_width: 1.5
			shape:        "diamond"
			metadata:     "subject"
		}
	`, "node_type.user")

	nt, err := CompileNodeType(v)
	require.NoError(t, err)
	assert.Equal(t, model.NodeType{
		ID:          "user",
		Name:        "User",
		FillColor:   "blue",
		StrokeColor: "#1f2937",
		StrokeWidth: 1.5,
		Shape:       model.ShapeDiamond,
		Metadata:    "subject",
	}, nt)
}

func TestCompileNodeType_Defaults(t *testing.T) {
	v := compile(t, `node_type: group: {}`, "node_type.group")

	nt, err := CompileNodeType(v)
	require.NoError(t, err)
	assert.Equal(t, model.NodeTypeID("group"), nt.ID)
	assert.Equal(t, "group", nt.Name)
	assert.Equal(t, 1.0, nt.StrokeWidth)
	assert.Equal(t, model.ShapeCircle, nt.Shape)
}

func TestCompileNodeType_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{"unknown shape", `node_type: x: { shape: "hexagon" }`, "unknown shape"},
		{"unknown field", `node_type: x: { colour: "red" }`, "unknown field"},
		{"wrong type", `node_type: x: { name: 3 }`, "string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileNodeType(compile(t, tt.src, "node_type.x"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestCompileEdgeType(t *testing.T) {
	v := compile(t, `
		edge_type: member: {
			name:         "member of"
			stroke_color: "#2563eb"
			stroke_width: 2
			line_dash:    [4, 2.5]
		}
	`, "edge_type.member")

	et, err := CompileEdgeType(v)
	require.NoError(t, err)
	assert.Equal(t, model.EdgeType{
		ID:          "member",
		Name:        "member of",
		StrokeColor: "#2563eb",
		StrokeWidth: 2,
		LineDash:    []float64{4, 2.5},
	}, et)
}

func TestCompileEdgeType_SolidByDefault(t *testing.T) {
	et, err := CompileEdgeType(compile(t, `edge_type: owner: {}`, "edge_type.owner"))
	require.NoError(t, err)
	assert.Equal(t, []float64{}, et.LineDash)
}

func TestCompileEdgeType_BadDash(t *testing.T) {
	_, err := CompileEdgeType(compile(t, `edge_type: x: { line_dash: ["a"] }`, "edge_type.x"))
	assert.Error(t, err)
}

func TestCompileError_Format(t *testing.T) {
	err := &CompileError{Field: "shape", Message: "bad"}
	assert.Equal(t, "shape: bad", err.Error())
}
