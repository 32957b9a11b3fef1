package csvimport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/koppla/internal/model"
)

// Grid placement for imported nodes.
const (
	RowWidth    = 1500.0
	NodeSpacing = 80.0
)

// Graph is the part of the editor an import writes through.
type Graph interface {
	CreateNode(data model.NodeRecord) (model.Handle, error)
	Connect(start, end model.Handle, typ model.EdgeTypeID) (model.Handle, error)
	Flush(ctx context.Context) error
}

// Result counts what an import did.
type Result struct {
	Nodes   int `json:"nodes"`
	Edges   int `json:"edges"`
	Skipped int `json:"skipped"`
}

// GridPosition is where the i-th imported node is placed.
func GridPosition(i int) (x, y float64) {
	rowItems := RowWidth / NodeSpacing
	x = math.Mod(NodeSpacing*float64(i), RowWidth)
	y = NodeSpacing * math.Floor(float64(i)/rowItems)
	return x, y
}

type pendingNode struct {
	csvID string
	rec   model.NodeRecord
}

// Write creates the nodes and edges rules derive from ds.
//
// Nodes are created first and flushed so they hold backend ids; edges are
// then connected by handle and flushed again. A row that lacks a rule's
// column, or whose edge type cannot be looked up, is logged and skipped. A
// failed flush does not stop the import: the store keeps the work queued and
// the error is returned with the result.
func Write(ctx context.Context, g Graph, ds *Dataset, rules Rules, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		res  Result
		errs []error
	)

	nodes := collectNodes(ds, rules, logger, &res)
	handles := make(map[string]model.Handle, len(nodes))
	for i, n := range nodes {
		n.rec.X, n.rec.Y = GridPosition(i)
		h, err := g.CreateNode(n.rec)
		if err != nil {
			return res, fmt.Errorf("import node %q: %w", n.csvID, err)
		}
		res.Nodes++
		if _, dup := handles[n.csvID]; dup {
			logger.Warn("csv id names several nodes; edges use the first", "id", n.csvID)
			continue
		}
		handles[n.csvID] = h
	}
	if err := g.Flush(ctx); err != nil {
		logger.Error("flush after node import failed", "error", err)
		errs = append(errs, fmt.Errorf("flush nodes: %w", err))
	}

	for _, rule := range rules.Relationships {
		for _, row := range ds.Rows {
			sources, okS := row[rule.Source]
			targets, okT := row[rule.Target]
			if !okS || !okT {
				res.Skipped++
				continue
			}
			typ, key, ok := rule.edgeType(row)
			if !ok {
				logger.Warn("no edge type for row", "key", key)
				res.Skipped++
				continue
			}
			for _, src := range sources {
				start, ok := handles[src]
				if !ok || src == "" {
					res.Skipped++
					continue
				}
				for _, dst := range targets {
					if dst == "" {
						continue
					}
					end, ok := handles[dst]
					if !ok {
						logger.Warn("edge target is not an imported node", "source", src, "target", dst)
						res.Skipped++
						continue
					}
					if _, err := g.Connect(start, end, typ); err != nil {
						return res, fmt.Errorf("import edge %q -> %q: %w", src, dst, err)
					}
					res.Edges++
				}
			}
		}
	}
	if err := g.Flush(ctx); err != nil {
		logger.Error("flush after edge import failed", "error", err)
		errs = append(errs, fmt.Errorf("flush edges: %w", err))
	}

	logger.Info("csv import done", "nodes", res.Nodes, "edges", res.Edges, "skipped", res.Skipped)
	return res, errors.Join(errs...)
}

// collectNodes dedups rows by id, name and type, keeping first-seen order.
func collectNodes(ds *Dataset, rules Rules, logger *slog.Logger, res *Result) []pendingNode {
	var (
		out  []pendingNode
		seen = make(map[string]struct{})
	)
	for _, def := range rules.Nodes {
		if !ds.HasColumn(def.IDColumn) {
			logger.Warn("column not found in dataset", "column", def.IDColumn)
			continue
		}
		if !ds.HasColumn(def.NameColumn) {
			logger.Warn("column not found in dataset", "column", def.NameColumn)
			continue
		}
		for _, row := range ds.Rows {
			ids, okID := row[def.IDColumn]
			names, okName := row[def.NameColumn]
			if !okID || !okName {
				res.Skipped++
				continue
			}
			meta, _ := row.First(def.MetadataColumn)
			for i, id := range ids {
				if id == "" {
					continue
				}
				name := id
				switch {
				case i < len(names):
					name = names[i]
				case len(names) > 0:
					name = names[0]
				}
				key := id + "-" + name + "-" + string(def.Type)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, pendingNode{
					csvID: id,
					rec:   model.NodeRecord{Name: name, Type: def.Type, Metadata: meta},
				})
			}
		}
	}
	return out
}
