package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/koppla/internal/model"
	"github.com/roach88/koppla/internal/registry"
)

// PutNodeType inserts or replaces a node type.
func (s *Store) PutNodeType(ctx context.Context, t model.NodeType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO node_types (id, name, fill_color, stroke_color, stroke_width, shape, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			fill_color = excluded.fill_color,
			stroke_color = excluded.stroke_color,
			stroke_width = excluded.stroke_width,
			shape = excluded.shape,
			metadata = excluded.metadata
	`, string(t.ID), t.Name, t.FillColor, t.StrokeColor, t.StrokeWidth, int(t.Shape), t.Metadata)
	if err != nil {
		return fmt.Errorf("put node type %q: %w", t.ID, err)
	}
	return nil
}

// PutEdgeType inserts or replaces an edge type. The line dash pattern is
// stored base64 encoded, the same form remote backends deliver.
func (s *Store) PutEdgeType(ctx context.Context, t model.EdgeType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO edge_types (id, name, stroke_color, stroke_width, line_dash, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			stroke_color = excluded.stroke_color,
			stroke_width = excluded.stroke_width,
			line_dash = excluded.line_dash,
			metadata = excluded.metadata
	`, string(t.ID), t.Name, t.StrokeColor, t.StrokeWidth, registry.EncodeLineDash(t.LineDash), t.Metadata)
	if err != nil {
		return fmt.Errorf("put edge type %q: %w", t.ID, err)
	}
	return nil
}

// NodeTypes returns all node types in insertion order.
func (s *Store) NodeTypes(ctx context.Context) ([]model.NodeType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, fill_color, stroke_color, stroke_width, shape, metadata
		FROM node_types
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("query node types: %w", err)
	}
	defer rows.Close()

	types := []model.NodeType{}
	for rows.Next() {
		var (
			t     model.NodeType
			id    string
			shape int
		)
		if err := rows.Scan(&id, &t.Name, &t.FillColor, &t.StrokeColor, &t.StrokeWidth, &shape, &t.Metadata); err != nil {
			return nil, fmt.Errorf("scan node type: %w", err)
		}
		t.ID = model.NodeTypeID(id)
		t.Shape = model.NodeShape(shape)
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate node types: %w", err)
	}
	return types, nil
}

// EdgeTypes returns all edge types in insertion order with line dash decoded.
func (s *Store) EdgeTypes(ctx context.Context) ([]model.EdgeType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, stroke_color, stroke_width, line_dash, metadata
		FROM edge_types
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("query edge types: %w", err)
	}
	defer rows.Close()

	types := []model.EdgeType{}
	for rows.Next() {
		var (
			t    model.EdgeType
			id   string
			dash sql.NullString
		)
		if err := rows.Scan(&id, &t.Name, &t.StrokeColor, &t.StrokeWidth, &dash, &t.Metadata); err != nil {
			return nil, fmt.Errorf("scan edge type: %w", err)
		}
		t.ID = model.EdgeTypeID(id)

		raw := json.RawMessage("null")
		if dash.Valid {
			raw, _ = json.Marshal(dash.String)
		}
		if t.LineDash, err = registry.DecodeLineDash(raw); err != nil {
			return nil, fmt.Errorf("edge type %q: %w", id, err)
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edge types: %w", err)
	}
	return types, nil
}

// InsertNodes inserts nodes that already carry their durable id.
func (s *Store) InsertNodes(ctx context.Context, nodes []model.NodeRecord) error {
	return s.inTx(ctx, "insert nodes", func(tx *sql.Tx) error {
		for _, n := range nodes {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO nodes (id, name, type, metadata, x, y)
				VALUES (?, ?, ?, ?, ?, ?)
			`, n.ID, n.Name, string(n.Type), n.Metadata, n.X, n.Y); err != nil {
				return fmt.Errorf("node %q: %w", n.ID, err)
			}
		}
		return nil
	})
}

// UpdateNodes overwrites nodes by id. Ids that do not exist are ignored.
func (s *Store) UpdateNodes(ctx context.Context, nodes []model.NodeRecord) error {
	return s.inTx(ctx, "update nodes", func(tx *sql.Tx) error {
		for _, n := range nodes {
			if _, err := tx.ExecContext(ctx, `
				UPDATE nodes SET name = ?, type = ?, metadata = ?, x = ?, y = ?
				WHERE id = ?
			`, n.Name, string(n.Type), n.Metadata, n.X, n.Y, n.ID); err != nil {
				return fmt.Errorf("node %q: %w", n.ID, err)
			}
		}
		return nil
	})
}

// DeleteNodes deletes nodes by id. Incident edges are removed by cascade.
func (s *Store) DeleteNodes(ctx context.Context, ids []string) error {
	return s.deleteByID(ctx, "delete nodes", "nodes", ids)
}

// Nodes returns all nodes in insertion order.
func (s *Store) Nodes(ctx context.Context) ([]model.NodeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, metadata, x, y
		FROM nodes
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	nodes := []model.NodeRecord{}
	for rows.Next() {
		var (
			n   model.NodeRecord
			typ string
		)
		if err := rows.Scan(&n.ID, &n.Name, &typ, &n.Metadata, &n.X, &n.Y); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.Type = model.NodeTypeID(typ)
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return nodes, nil
}

// InsertEdges inserts edges that already carry their durable id. Both
// endpoints must exist.
func (s *Store) InsertEdges(ctx context.Context, edges []model.EdgeRecord) error {
	return s.inTx(ctx, "insert edges", func(tx *sql.Tx) error {
		for _, e := range edges {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO edges (id, type, start_id, end_id)
				VALUES (?, ?, ?, ?)
			`, e.ID, string(e.Type), e.StartID, e.EndID); err != nil {
				return fmt.Errorf("edge %q: %w", e.ID, err)
			}
		}
		return nil
	})
}

// UpdateEdges overwrites edges by id. Ids that do not exist are ignored.
func (s *Store) UpdateEdges(ctx context.Context, edges []model.EdgeRecord) error {
	return s.inTx(ctx, "update edges", func(tx *sql.Tx) error {
		for _, e := range edges {
			if _, err := tx.ExecContext(ctx, `
				UPDATE edges SET type = ?, start_id = ?, end_id = ?
				WHERE id = ?
			`, string(e.Type), e.StartID, e.EndID, e.ID); err != nil {
				return fmt.Errorf("edge %q: %w", e.ID, err)
			}
		}
		return nil
	})
}

// DeleteEdges deletes edges by id.
func (s *Store) DeleteEdges(ctx context.Context, ids []string) error {
	return s.deleteByID(ctx, "delete edges", "edges", ids)
}

// Edges returns all edges in insertion order.
func (s *Store) Edges(ctx context.Context) ([]model.EdgeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, start_id, end_id
		FROM edges
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	edges := []model.EdgeRecord{}
	for rows.Next() {
		var (
			e   model.EdgeRecord
			typ string
		)
		if err := rows.Scan(&e.ID, &typ, &e.StartID, &e.EndID); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.Type = model.EdgeTypeID(typ)
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return edges, nil
}

func (s *Store) deleteByID(ctx context.Context, op, table string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.inTx(ctx, op, func(tx *sql.Tx) error {
		for _, id := range ids {
			// table is one of two constants above, never caller input
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id); err != nil {
				return fmt.Errorf("%q: %w", id, err)
			}
		}
		return nil
	})
}
