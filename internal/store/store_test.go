package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/koppla/internal/model"
	"github.com/roach88/koppla/internal/outbox"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "koppla.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	assert.NoError(t, s.Check(ctx))
	v, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)
}

func TestCheck_ReportsDrift(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.db.Exec("PRAGMA foreign_keys = OFF")
	require.NoError(t, err)

	err = s.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "foreign_keys")
}

func TestOpen_MigratesOldFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "old.db")

	s, err := Open(path)
	require.NoError(t, err)
	for _, stmt := range []string{
		"DROP INDEX idx_outbox_seq",
		"DROP INDEX idx_edges_start",
		"DROP INDEX idx_edges_end",
		"PRAGMA user_version = 0",
	} {
		_, err := s.db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	var indexes []string
	rows, err := s.db.Query(`SELECT name FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		indexes = append(indexes, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"idx_edges_end", "idx_edges_start", "idx_outbox_seq"}, indexes)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func TestOutbox_StageAckFail(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.Stage(ctx, []outbox.Entry{
		{ID: "e1", Kind: model.KindNode, Op: outbox.OpCreate, Key: "t1", Payload: json.RawMessage(`{"id":"t1"}`), Seq: 2},
		{ID: "e2", Kind: model.KindNode, Op: outbox.OpDelete, Key: "n-7", Seq: 1},
	}))
	require.NoError(t, s.Fail(ctx, model.KindNode, outbox.OpCreate, []string{"t1"}))

	// Re-staging keeps id and attempts.
	require.NoError(t, s.Stage(ctx, []outbox.Entry{
		{ID: "e3", Kind: model.KindNode, Op: outbox.OpCreate, Key: "t1", Payload: json.RawMessage(`{"id":"t1","x":5}`), Seq: 3},
	}))

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	assert.Equal(t, "e2", pending[0].ID)
	assert.Nil(t, pending[0].Payload)

	assert.Equal(t, "e1", pending[1].ID)
	assert.Equal(t, 1, pending[1].Attempts)
	assert.Equal(t, int64(3), pending[1].Seq)
	assert.JSONEq(t, `{"id":"t1","x":5}`, string(pending[1].Payload))

	require.NoError(t, s.Ack(ctx, model.KindNode, outbox.OpCreate, []string{"t1"}))
	pending, err = s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, outbox.OpDelete, pending[0].Op)
}

func TestOutbox_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "outbox.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Stage(ctx, []outbox.Entry{
		{ID: "e1", Kind: model.KindEdge, Op: outbox.OpUpdate, Key: "e-1", Payload: json.RawMessage(`{}`), Seq: 1},
	}))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	pending, err := s2.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.KindEdge, pending[0].Kind)
}

func TestProject_Types(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.PutNodeType(ctx, model.NodeType{ID: "user", Name: "User", Shape: model.ShapeDiamond, StrokeWidth: 2}))
	require.NoError(t, s.PutNodeType(ctx, model.NodeType{ID: "group", Name: "Group"}))
	require.NoError(t, s.PutNodeType(ctx, model.NodeType{ID: "user", Name: "Person", Shape: model.ShapeDiamond}))
	require.NoError(t, s.PutEdgeType(ctx, model.EdgeType{ID: "read", Name: "Read", LineDash: []float64{5, 5}}))
	require.NoError(t, s.PutEdgeType(ctx, model.EdgeType{ID: "owns", Name: "Owns"}))

	nts, err := s.NodeTypes(ctx)
	require.NoError(t, err)
	require.Len(t, nts, 2)
	assert.Equal(t, "Person", nts[0].Name)
	assert.Equal(t, model.ShapeDiamond, nts[0].Shape)

	ets, err := s.EdgeTypes(ctx)
	require.NoError(t, err)
	require.Len(t, ets, 2)
	assert.Equal(t, []float64{5, 5}, ets[0].LineDash)
	assert.Equal(t, []float64{}, ets[1].LineDash)
}

func TestProject_NodesAndEdges(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.InsertNodes(ctx, []model.NodeRecord{
		{ID: "n-1", Name: "alice", Type: "user", X: 1, Y: 2},
		{ID: "n-2", Name: "admins", Type: "group"},
	}))
	require.NoError(t, s.InsertEdges(ctx, []model.EdgeRecord{
		{ID: "e-1", Type: "member", StartID: "n-1", EndID: "n-2"},
	}))

	require.NoError(t, s.UpdateNodes(ctx, []model.NodeRecord{
		{ID: "n-1", Name: "alice", Type: "user", X: 40, Y: 60},
		{ID: "missing", Name: "ghost", Type: "user"},
	}))

	nodes, err := s.Nodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, 40.0, nodes[0].X)
	assert.Equal(t, model.NodeTypeID("group"), nodes[1].Type)

	edges, err := s.Edges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "n-1", edges[0].StartID)

	// Deleting an endpoint cascades to its edges.
	require.NoError(t, s.DeleteNodes(ctx, []string{"n-2"}))
	edges, err = s.Edges(ctx)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestProject_InsertEdgeUnknownEndpointRollsBack(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.InsertNodes(ctx, []model.NodeRecord{{ID: "n-1", Name: "a", Type: "user"}}))

	err := s.InsertEdges(ctx, []model.EdgeRecord{
		{ID: "e-1", Type: "x", StartID: "n-1", EndID: "n-1"},
		{ID: "e-2", Type: "x", StartID: "n-1", EndID: "nope"},
	})
	require.Error(t, err)

	edges, err := s.Edges(ctx)
	require.NoError(t, err)
	assert.Empty(t, edges, "failed batch must not leave partial rows")
}

func TestProject_DeleteEdges(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.InsertNodes(ctx, []model.NodeRecord{{ID: "n-1", Name: "a", Type: "user"}}))
	require.NoError(t, s.InsertEdges(ctx, []model.EdgeRecord{{ID: "e-1", Type: "x", StartID: "n-1", EndID: "n-1"}}))
	require.NoError(t, s.DeleteEdges(ctx, []string{"e-1", "unknown"}))
	require.NoError(t, s.DeleteEdges(ctx, nil))

	edges, err := s.Edges(ctx)
	require.NoError(t, err)
	assert.Empty(t, edges)
}
