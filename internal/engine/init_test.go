package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/koppla/internal/model"
	"github.com/roach88/koppla/internal/outbox"
	"github.com/roach88/koppla/internal/testutil"
)

func seededBackend() *testutil.RecordingBackend {
	b := testutil.NewRecordingBackend()
	b.SeedTypes(
		[]model.NodeType{{ID: "user", Name: "User", FillColor: "#fff"}},
		[]model.EdgeType{{ID: "member", Name: "Member", LineDash: []float64{4, 2}}},
	)
	alice := b.SeedNode(model.NodeRecord{Name: "alice", Type: "user", X: 10, Y: 20})
	admins := b.SeedNode(model.NodeRecord{Name: "admins", Type: "group", X: 200, Y: 20})
	b.SeedEdge(model.EdgeRecord{Type: "member", StartID: alice, EndID: admins})
	return b
}

func TestInit_LoadsGraph(t *testing.T) {
	b := seededBackend()
	s, _ := newTestStore(t, b)
	loader := newFakeLoader()

	require.NoError(t, s.Init(context.Background(), loader))

	assert.Equal(t, 1, loader.loaded)
	assert.Equal(t, [2]float64{10, 20}, loader.nodes[1])
	assert.Equal(t, [2]float64{200, 20}, loader.nodes[2])
	assert.Equal(t, [2]model.Handle{1, 2}, loader.edges[3])

	alice, ok := s.NodeByHandle(1)
	require.True(t, ok)
	assert.Equal(t, "n-1", alice.ID)

	e, ok := s.EdgeByHandle(3)
	require.True(t, ok)
	assert.Equal(t, "e-1", e.ID)
	assert.Equal(t, model.Handle(1), e.StartHandle)
	assert.Equal(t, "n-2", e.EndID)

	_, ok = s.NodeType("user")
	assert.True(t, ok)
	assert.Equal(t, []float64{4, 2}, s.EdgeType("member").LineDash)

	nodes, edges := s.Pending()
	assert.Equal(t, QueueStats{}, nodes, "loaded records are not queued")
	assert.Equal(t, QueueStats{}, edges)
}

func TestInit_TypeFailureIsIsolated(t *testing.T) {
	b := seededBackend()
	b.FailNext(testutil.OpNodeTypes, nil)
	s, _ := newTestStore(t, b)

	require.NoError(t, s.Init(context.Background(), newFakeLoader()))

	assert.Empty(t, s.NodeTypes())
	assert.Equal(t, "Member", s.EdgeType("member").Name)
	assert.Len(t, s.Nodes(), 2)
}

func TestInit_NodeLoadFailure(t *testing.T) {
	b := seededBackend()
	b.FailNext(testutil.OpNodes, nil)
	s, _ := newTestStore(t, b)
	loader := newFakeLoader()

	err := s.Init(context.Background(), loader)
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrInjected)
	assert.Equal(t, 1, loader.loaded, "editor is told loading finished")
	assert.Empty(t, s.Nodes())
	assert.Empty(t, s.Edges())
	_, ok := s.NodeType("user")
	assert.True(t, ok, "types still load")
}

func TestInit_EdgeLoadFailureKeepsNodes(t *testing.T) {
	b := seededBackend()
	b.FailNext(testutil.OpEdges, nil)
	s, _ := newTestStore(t, b)
	loader := newFakeLoader()

	err := s.Init(context.Background(), loader)
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrInjected)
	assert.Equal(t, 1, loader.loaded)
	assert.Len(t, loader.nodes, 2, "nodes reach the kernel")
	assert.Empty(t, loader.edges)

	alice, ok := s.NodeByHandle(1)
	require.True(t, ok)
	assert.Equal(t, "alice", alice.Name)
	assert.Len(t, s.Nodes(), 2)
	assert.Empty(t, s.Edges())
}

func TestInit_BothTypeRegistriesFail(t *testing.T) {
	b := seededBackend()
	b.FailNext(testutil.OpNodeTypes, nil)
	b.FailNext(testutil.OpEdgeTypes, nil)
	s, _ := newTestStore(t, b)
	loader := newFakeLoader()

	require.NoError(t, s.Init(context.Background(), loader))

	assert.Empty(t, s.NodeTypes())
	assert.Empty(t, s.EdgeTypes())
	assert.Len(t, s.Nodes(), 2)
	assert.Len(t, s.Edges(), 1)
	assert.Equal(t, 1, loader.loaded)
}

func TestInit_SkipsEdgeWithUnknownEndpoint(t *testing.T) {
	b := testutil.NewRecordingBackend()
	a := b.SeedNode(model.NodeRecord{Name: "a"})
	b.SeedEdge(model.EdgeRecord{StartID: a, EndID: "n-404"})
	s, _ := newTestStore(t, b)

	err := s.Init(context.Background(), newFakeLoader())
	require.Error(t, err)
	assert.True(t, IsUnresolved(err))
	assert.Len(t, s.Nodes(), 1)
	assert.Empty(t, s.Edges())
}

func TestInit_ReplaysOutbox(t *testing.T) {
	ctx := context.Background()
	b := testutil.NewRecordingBackend()
	existing := b.SeedNode(model.NodeRecord{Name: "old"})

	payload := func(v any) json.RawMessage {
		raw, err := model.MarshalCanonical(v)
		require.NoError(t, err)
		return raw
	}

	ob := outbox.NewMemory()
	require.NoError(t, ob.Stage(ctx, []outbox.Entry{
		{ID: "o1", Kind: model.KindNode, Op: outbox.OpDelete, Key: existing, Payload: payload(existing), Seq: 7},
		{ID: "o2", Kind: model.KindNode, Op: outbox.OpCreate, Key: "t9", Payload: payload(model.NodeRecord{ID: "t9", Name: "recovered"}), Seq: 3},
	}))

	s, _ := newTestStore(t, b, WithOutbox(ob))
	require.NoError(t, s.Init(ctx, newFakeLoader()))

	calls := b.Calls()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.Equal(t, testutil.Call{Op: testutil.OpCreateNodes, Keys: []string{"t9"}}, calls[0])
	assert.Equal(t, testutil.Call{Op: testutil.OpDeleteNodes, Keys: []string{existing}}, calls[1])

	nodes := s.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "recovered", nodes[0].Name)

	pending, err := ob.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.Greater(t, s.clock.Next(), int64(7), "new entries sort after recovered ones")
}

func TestInit_FailedReplayStaysStaged(t *testing.T) {
	ctx := context.Background()
	b := testutil.NewRecordingBackend()
	b.FailNext(testutil.OpCreateNodes, nil)

	ob := outbox.NewMemory()
	raw, err := model.MarshalCanonical(model.NodeRecord{ID: "t9", Name: "recovered"})
	require.NoError(t, err)
	require.NoError(t, ob.Stage(ctx, []outbox.Entry{
		{ID: "o1", Kind: model.KindNode, Op: outbox.OpCreate, Key: "t9", Payload: raw, Seq: 1},
	}))

	s, _ := newTestStore(t, b, WithOutbox(ob))
	err = s.Init(ctx, newFakeLoader())
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	pending, err := ob.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
}
