// Package compiler turns node and edge type definitions written in CUE into
// registry descriptors.
//
// A types directory holds one CUE package. Types live under two top-level
// fields, keyed by type id:
//
//	node_type: user: {
//		name:         "User"
//		fill_color:   "blue"
//		stroke_color: "#1f2937"
//		stroke_width: 1
//		shape:        "circle"
//		metadata:     "subject"
//	}
//
//	edge_type: member: {
//		name:         "member of"
//		stroke_color: "#2563eb"
//		stroke_width: 2
//		line_dash:    [4, 2]
//	}
//
// Every field except the label is optional; name defaults to the id.
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/koppla/internal/model"
)

var nodeTypeFields = map[string]bool{
	"name": true, "fill_color": true, "stroke_color": true,
	"stroke_width": true, "shape": true, "metadata": true,
}

var edgeTypeFields = map[string]bool{
	"name": true, "stroke_color": true, "stroke_width": true,
	"line_dash": true, "metadata": true,
}

// CompileNodeType parses one node type. The id is the value's label.
//
//	v := ctx.CompileString(`node_type: user: { shape: "square" }`)
//	t, err := CompileNodeType(v.LookupPath(cue.ParsePath("node_type.user")))
func CompileNodeType(v cue.Value) (model.NodeType, error) {
	if err := v.Err(); err != nil {
		return model.NodeType{}, formatCUEError(err)
	}
	if err := checkFields(v, "node_type", nodeTypeFields); err != nil {
		return model.NodeType{}, err
	}

	id := label(v)
	t := model.NodeType{ID: model.NodeTypeID(id), Name: id, StrokeWidth: 1}

	var err error
	if t.Name, err = optString(v, "name", t.Name); err != nil {
		return model.NodeType{}, err
	}
	if t.FillColor, err = optString(v, "fill_color", ""); err != nil {
		return model.NodeType{}, err
	}
	if t.StrokeColor, err = optString(v, "stroke_color", ""); err != nil {
		return model.NodeType{}, err
	}
	if t.StrokeWidth, err = optFloat(v, "stroke_width", t.StrokeWidth); err != nil {
		return model.NodeType{}, err
	}
	if t.Metadata, err = optString(v, "metadata", ""); err != nil {
		return model.NodeType{}, err
	}

	shape, err := optString(v, "shape", model.ShapeCircle.String())
	if err != nil {
		return model.NodeType{}, err
	}
	if t.Shape, err = parseShape(shape); err != nil {
		return model.NodeType{}, &CompileError{Field: "shape", Message: err.Error(), Pos: v.LookupPath(cue.ParsePath("shape")).Pos()}
	}
	return t, nil
}

// CompileEdgeType parses one edge type. The id is the value's label.
func CompileEdgeType(v cue.Value) (model.EdgeType, error) {
	if err := v.Err(); err != nil {
		return model.EdgeType{}, formatCUEError(err)
	}
	if err := checkFields(v, "edge_type", edgeTypeFields); err != nil {
		return model.EdgeType{}, err
	}

	id := label(v)
	t := model.EdgeType{ID: model.EdgeTypeID(id), Name: id, StrokeWidth: 1, LineDash: []float64{}}

	var err error
	if t.Name, err = optString(v, "name", t.Name); err != nil {
		return model.EdgeType{}, err
	}
	if t.StrokeColor, err = optString(v, "stroke_color", ""); err != nil {
		return model.EdgeType{}, err
	}
	if t.StrokeWidth, err = optFloat(v, "stroke_width", t.StrokeWidth); err != nil {
		return model.EdgeType{}, err
	}
	if t.Metadata, err = optString(v, "metadata", ""); err != nil {
		return model.EdgeType{}, err
	}

	dashVal := v.LookupPath(cue.ParsePath("line_dash"))
	if dashVal.Exists() {
		iter, err := dashVal.List()
		if err != nil {
			return model.EdgeType{}, formatCUEError(err)
		}
		for iter.Next() {
			f, err := iter.Value().Float64()
			if err != nil {
				return model.EdgeType{}, formatCUEError(err)
			}
			t.LineDash = append(t.LineDash, f)
		}
	}
	return t, nil
}

func label(v cue.Value) string {
	name, _ := v.Label()
	return name
}

func checkFields(v cue.Value, kind string, allowed map[string]bool) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		if !allowed[name] {
			return &CompileError{
				Field:   kind + "." + name,
				Message: "unknown field",
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return nil
}

func optString(v cue.Value, field, def string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optFloat(v cue.Value, field string, def float64) (float64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	f, err := fv.Float64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return f, nil
}

func parseShape(s string) (model.NodeShape, error) {
	for _, shape := range []model.NodeShape{model.ShapeCircle, model.ShapeSquare, model.ShapeSquareRounded, model.ShapeDiamond} {
		if shape.String() == s {
			return shape, nil
		}
	}
	return 0, fmt.Errorf("unknown shape %q (want circle, square, square_rounded or diamond)", s)
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
