package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/koppla/internal/model"
)

func writeTypes(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestLoadDir(t *testing.T) {
	dir := writeTypes(t, map[string]string{
		"nodes.cue": `package types

node_type: user: { shape: "circle", fill_color: "blue" }
node_type: group: { shape: "square" }
`,
		"edges.cue": `package types

edge_type: member: { line_dash: [4, 2] }
`,
	})

	res, errs := LoadDir(dir, LoadModeCollectAll)
	require.Empty(t, errs)
	assert.Equal(t, 2, res.FileCount)

	require.Len(t, res.NodeTypes, 2)
	assert.Equal(t, model.NodeTypeID("group"), res.NodeTypes[0].ID)
	assert.Equal(t, model.NodeTypeID("user"), res.NodeTypes[1].ID)
	require.Len(t, res.EdgeTypes, 1)
	assert.Equal(t, []float64{4, 2}, res.EdgeTypes[0].LineDash)
}

func TestLoadDir_CollectsAllErrors(t *testing.T) {
	dir := writeTypes(t, map[string]string{
		"types.cue": `package types

node_type: a: { shape: "blob" }
node_type: b: { shape: "star" }
edge_type: c: {}
`,
	})

	res, errs := LoadDir(dir, LoadModeCollectAll)
	require.Len(t, errs, 2)
	assert.Len(t, res.EdgeTypes, 1)

	var le *LoadError
	require.True(t, errors.As(errs[0], &le))
	assert.Equal(t, ErrCodeInvalidType, le.Code)

	_, errs = LoadDir(dir, LoadModeFailFast)
	assert.Len(t, errs, 1)
}

func TestLoadDir_Failures(t *testing.T) {
	tests := []struct {
		name     string
		dir      func(t *testing.T) string
		wantCode string
	}{
		{"missing dir", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope") }, ErrCodeNotFound},
		{"no files", func(t *testing.T) string { return t.TempDir() }, ErrCodeNoFiles},
		{"no types", func(t *testing.T) string {
			return writeTypes(t, map[string]string{"x.cue": "package types\n\nother: 1\n"})
		}, ErrCodeNoTypes},
		{"bad syntax", func(t *testing.T) string {
			return writeTypes(t, map[string]string{"x.cue": "package types\n\nnode_type: {\n"})
		}, ErrCodeLoadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := LoadDir(tt.dir(t), LoadModeCollectAll)
			require.NotEmpty(t, errs)
			var le *LoadError
			require.True(t, errors.As(errs[0], &le))
			assert.Equal(t, tt.wantCode, le.Code)
		})
	}
}

func TestValidate(t *testing.T) {
	res := &LoadResult{
		NodeTypes: []model.NodeType{
			{ID: "ok", Name: "ok", StrokeWidth: 1, FillColor: "#fff", StrokeColor: "dark-blue"},
			{ID: "bad", Name: " ", StrokeWidth: 0, FillColor: "rgb(1,2,3)"},
		},
		EdgeTypes: []model.EdgeType{
			{ID: "member", Name: "member", StrokeWidth: 2, LineDash: []float64{4, 2}},
			{ID: model.DefaultEdgeTypeID, Name: "x", StrokeWidth: 1, LineDash: []float64{0, 0}},
			{ID: "neg", Name: "neg", StrokeWidth: 1, LineDash: []float64{-1}},
		},
	}

	errs := Validate(res)
	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	assert.Equal(t, []string{ErrEmptyName, ErrStrokeWidth, ErrInvalidColor, ErrReservedID, ErrInvalidLineDash, ErrInvalidLineDash}, codes)
	assert.Equal(t, "node_type.bad.name", errs[0].Field)
}
