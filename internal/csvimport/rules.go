package csvimport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/koppla/internal/model"
)

// Rules describes how rows become nodes and edges.
type Rules struct {
	Nodes         []NodeRule         `yaml:"nodes"`
	Relationships []RelationshipRule `yaml:"relationships"`
}

// NodeRule turns two columns of every row into a node of a fixed type.
type NodeRule struct {
	IDColumn       string           `yaml:"id_column"`
	NameColumn     string           `yaml:"name_column"`
	MetadataColumn string           `yaml:"metadata_column,omitempty"`
	Type           model.NodeTypeID `yaml:"type"`
}

// RelationshipRule connects the node in Source to every node in Target.
type RelationshipRule struct {
	Source    string                      `yaml:"source"`
	Target    string                      `yaml:"target"`
	EdgeType  model.EdgeTypeID            `yaml:"edge_type,omitempty"`
	EdgeTypes map[string]model.EdgeTypeID `yaml:"edge_types,omitempty"`
}

// typeColumn is the column edge_types keys refer to.
func (r RelationshipRule) typeColumn() string {
	for k := range r.EdgeTypes {
		col, _, _ := strings.Cut(k, ":")
		return col
	}
	return ""
}

// edgeType resolves the type for one row. ok is false when a lookup rule has
// no entry for the row's value.
func (r RelationshipRule) edgeType(row Row) (typ model.EdgeTypeID, key string, ok bool) {
	if len(r.EdgeTypes) == 0 {
		return r.EdgeType, "", true
	}
	col := r.typeColumn()
	val, _ := row.First(col)
	key = col + ":" + val
	typ, ok = r.EdgeTypes[key]
	return typ, key, ok
}

// LoadRules reads a YAML rules file.
func LoadRules(path string) (Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return Rules{}, fmt.Errorf("open rules: %w", err)
	}
	defer f.Close()
	return ParseRules(f)
}

// ParseRules decodes and validates rules.
func ParseRules(r io.Reader) (Rules, error) {
	var rules Rules
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// Validate checks that every rule names its columns and that each lookup rule
// keys on exactly one column.
func (r Rules) Validate() error {
	var errs []error
	for i, n := range r.Nodes {
		if n.IDColumn == "" || n.NameColumn == "" {
			errs = append(errs, fmt.Errorf("nodes[%d]: id_column and name_column are required", i))
		}
		if n.Type == "" {
			errs = append(errs, fmt.Errorf("nodes[%d]: type is required", i))
		}
	}
	for i, rel := range r.Relationships {
		if rel.Source == "" || rel.Target == "" {
			errs = append(errs, fmt.Errorf("relationships[%d]: source and target are required", i))
		}
		if rel.EdgeType != "" && len(rel.EdgeTypes) > 0 {
			errs = append(errs, fmt.Errorf("relationships[%d]: edge_type and edge_types are exclusive", i))
		}
		col := rel.typeColumn()
		for k := range rel.EdgeTypes {
			c, v, found := strings.Cut(k, ":")
			if !found || v == "" {
				errs = append(errs, fmt.Errorf("relationships[%d]: edge_types key %q is not column:value", i, k))
				continue
			}
			if c != col {
				errs = append(errs, fmt.Errorf("relationships[%d]: edge_types keys name columns %q and %q", i, col, c))
			}
		}
	}
	return errors.Join(errs...)
}
