package registry

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// DecodeLineDash decodes a line-dash pattern as delivered by backends.
//
// Accepted forms: null or empty (solid line), a JSON array of numbers, or a
// JSON string holding base64 of such an array.
func DecodeLineDash(raw json.RawMessage) ([]float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []float64{}, nil
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("line dash: %w", err)
		}
		if encoded == "" {
			return []float64{}, nil
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("line dash: base64: %w", err)
		}
		raw = decoded
	}

	dash := []float64{}
	if err := json.Unmarshal(raw, &dash); err != nil {
		return nil, fmt.Errorf("line dash: %w", err)
	}
	if dash == nil {
		dash = []float64{}
	}
	return dash, nil
}

// EncodeLineDash is the inverse of DecodeLineDash for the base64 form.
func EncodeLineDash(dash []float64) string {
	if dash == nil {
		dash = []float64{}
	}
	b, _ := json.Marshal(dash)
	return base64.StdEncoding.EncodeToString(b)
}
