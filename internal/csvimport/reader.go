package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MultiValueSeparator splits one cell into several values.
const MultiValueSeparator = ";"

// Row maps a column name to the cell's values. A plain cell has one value.
type Row map[string][]string

// First returns the first value of column and whether the column is present.
func (r Row) First(column string) (string, bool) {
	vals, ok := r[column]
	if !ok {
		return "", false
	}
	if len(vals) == 0 {
		return "", true
	}
	return vals[0], true
}

// Dataset is a parsed CSV file.
type Dataset struct {
	Header []string
	Rows   []Row
}

// HasColumn reports whether the header names column.
func (d *Dataset) HasColumn(column string) bool {
	for _, h := range d.Header {
		if h == column {
			return true
		}
	}
	return false
}

// Read parses r. Rows may be shorter than the header; missing cells are
// absent from the row rather than empty.
func Read(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csv: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("csv: header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	ds := &Dataset{Header: header}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}

		row := make(Row, len(record))
		for i, cell := range record {
			if i >= len(header) {
				break
			}
			row[header[i]] = splitCell(cell)
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

func splitCell(cell string) []string {
	cell = strings.TrimSpace(cell)
	if !strings.Contains(cell, MultiValueSeparator) {
		return []string{cell}
	}
	parts := strings.Split(cell, MultiValueSeparator)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
