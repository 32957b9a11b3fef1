package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/koppla/internal/model"
)

// Validation error codes (E200-E209)
const (
	ErrEmptyName       = "E201" // name must be non-empty
	ErrStrokeWidth     = "E202" // stroke width must be positive
	ErrInvalidColor    = "E203" // not a hex color or palette name
	ErrInvalidLineDash = "E204" // negative or all-zero dash pattern
	ErrReservedID      = "E205" // id collides with the default edge type
)

var (
	hexColor    = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	paletteName = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks compiled types. Returns all errors found (does not
// fail-fast).
func Validate(res *LoadResult) []ValidationError {
	var errs []ValidationError
	for _, t := range res.NodeTypes {
		field := "node_type." + string(t.ID)
		errs = append(errs, checkCommon(field, t.Name, t.StrokeWidth)...)
		errs = append(errs, checkColor(field+".fill_color", t.FillColor)...)
		errs = append(errs, checkColor(field+".stroke_color", t.StrokeColor)...)
	}
	for _, t := range res.EdgeTypes {
		field := "edge_type." + string(t.ID)
		if t.ID == model.DefaultEdgeTypeID {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("id %q is reserved for the default edge type", t.ID),
				Code:    ErrReservedID,
			})
		}
		errs = append(errs, checkCommon(field, t.Name, t.StrokeWidth)...)
		errs = append(errs, checkColor(field+".stroke_color", t.StrokeColor)...)
		errs = append(errs, checkLineDash(field+".line_dash", t.LineDash)...)
	}
	return errs
}

func checkCommon(field, name string, width float64) []ValidationError {
	var errs []ValidationError
	if strings.TrimSpace(name) == "" {
		errs = append(errs, ValidationError{Field: field + ".name", Message: "name must be non-empty", Code: ErrEmptyName})
	}
	if width <= 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".stroke_width",
			Message: fmt.Sprintf("stroke width must be positive, got %v", width),
			Code:    ErrStrokeWidth,
		})
	}
	return errs
}

// checkColor accepts an empty value, a hex color, or a palette name resolved
// by the registry.
func checkColor(field, c string) []ValidationError {
	if c == "" || hexColor.MatchString(c) || paletteName.MatchString(c) {
		return nil
	}
	return []ValidationError{{Field: field, Message: fmt.Sprintf("%q is not a hex color or palette name", c), Code: ErrInvalidColor}}
}

func checkLineDash(field string, dash []float64) []ValidationError {
	if len(dash) == 0 {
		return nil
	}
	sum := 0.0
	for _, d := range dash {
		if d < 0 {
			return []ValidationError{{Field: field, Message: "dash lengths must not be negative", Code: ErrInvalidLineDash}}
		}
		sum += d
	}
	if sum == 0 {
		return []ValidationError{{Field: field, Message: "dash pattern must not be all zero", Code: ErrInvalidLineDash}}
	}
	return nil
}
