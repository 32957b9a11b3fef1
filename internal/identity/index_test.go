package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/koppla/internal/model"
)

func TestIndex_PutAndLookup(t *testing.T) {
	x := New[string]()
	require.NoError(t, x.Put(1, "t1", true, "alice"))
	require.NoError(t, x.Put(2, "n-2", false, "bob"))

	e, ok := x.Lookup(HandleRef(1))
	require.True(t, ok)
	assert.Equal(t, "t1", e.Key)
	assert.True(t, e.Temp)
	assert.Equal(t, "alice", e.Record)

	_, ok = x.Lookup(TempRef("t1"))
	assert.True(t, ok)
	_, ok = x.Lookup(IDRef("t1"))
	assert.False(t, ok, "temp key must not resolve as a durable id")

	e, ok = x.Lookup(IDRef("n-2"))
	require.True(t, ok)
	assert.Equal(t, model.Handle(2), e.Handle)
	_, ok = x.Lookup(TempRef("n-2"))
	assert.False(t, ok)
}

func TestIndex_PutRekeysHandle(t *testing.T) {
	x := New[int]()
	require.NoError(t, x.Put(1, "a", true, 1))
	require.NoError(t, x.Put(1, "b", false, 2))

	_, ok := x.ByKey("a")
	assert.False(t, ok)
	e, ok := x.ByKey("b")
	require.True(t, ok)
	assert.Equal(t, 2, e.Record)
	assert.Equal(t, 1, x.Len())
}

func TestIndex_PutKeyConflict(t *testing.T) {
	x := New[int]()
	require.NoError(t, x.Put(1, "a", false, 1))

	err := x.Put(2, "a", false, 2)
	require.ErrorIs(t, err, ErrKeyConflict)

	_, ok := x.Get(2)
	assert.False(t, ok)
	e, _ := x.ByKey("a")
	assert.Equal(t, model.Handle(1), e.Handle)
}

func TestIndex_Remap(t *testing.T) {
	x := New[string]()
	require.NoError(t, x.Put(7, "t1", true, "A"))

	h, moved, err := x.Remap("t1", "n-42")
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, model.Handle(7), h)

	e, ok := x.Lookup(IDRef("n-42"))
	require.True(t, ok)
	assert.Equal(t, "A", e.Record)
	assert.False(t, e.Temp)

	_, ok = x.Lookup(TempRef("t1"))
	assert.False(t, ok)
	_, ok = x.ByKey("t1")
	assert.False(t, ok)

	e, ok = x.Get(7)
	require.True(t, ok)
	assert.Equal(t, "n-42", e.Key)
}

func TestIndex_RemapMissingIsNoop(t *testing.T) {
	x := New[string]()
	h, moved, err := x.Remap("gone", "n-1")
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Zero(t, h)
	assert.Equal(t, 0, x.Len())
}

func TestIndex_RemapDurableKeyIsNoop(t *testing.T) {
	x := New[string]()
	require.NoError(t, x.Put(1, "n-1", false, "A"))

	_, moved, err := x.Remap("n-1", "n-2")
	require.NoError(t, err)
	assert.False(t, moved)
	_, ok := x.ByKey("n-1")
	assert.True(t, ok)
}

func TestIndex_RemapAll(t *testing.T) {
	x := New[string]()
	require.NoError(t, x.Put(1, "t1", true, "A"))
	require.NoError(t, x.Put(2, "t2", true, "B"))
	require.NoError(t, x.Put(3, "n-9", false, "C"))

	moved, err := x.RemapAll([]model.CreatedRef{
		{TempID: "t1", ID: "n-1"},
		{TempID: "deleted", ID: "n-5"},
		{TempID: "t2", ID: "n-9"},
	})
	require.ErrorIs(t, err, ErrKeyConflict)
	assert.Equal(t, []model.Handle{1}, moved)

	e, _ := x.Get(2)
	assert.Equal(t, "t2", e.Key, "conflicting pair leaves the temp entry in place")
}

func TestIndex_Delete(t *testing.T) {
	x := New[string]()
	require.NoError(t, x.Put(1, "t1", true, "A"))

	e, ok := x.Delete(1)
	require.True(t, ok)
	assert.Equal(t, "t1", e.Key)

	_, ok = x.Get(1)
	assert.False(t, ok)
	_, ok = x.ByKey("t1")
	assert.False(t, ok)

	_, ok = x.Delete(1)
	assert.False(t, ok)
}

func TestIndex_UpdateKeepsKey(t *testing.T) {
	x := New[model.NodeRecord]()
	require.NoError(t, x.Put(1, "n-1", false, model.NodeRecord{Name: "a"}))

	ok := x.Update(1, func(r *model.NodeRecord) { r.Name = "b" })
	require.True(t, ok)

	e, _ := x.Lookup(IDRef("n-1"))
	assert.Equal(t, "b", e.Record.Name)
	assert.False(t, x.Update(99, func(*model.NodeRecord) {}))
}

func TestIndex_EntriesOrderedByHandle(t *testing.T) {
	x := New[int]()
	for _, h := range []model.Handle{5, 1, 3} {
		require.NoError(t, x.Put(h, string(rune('a'+h)), false, int(h)))
	}

	var got []model.Handle
	for _, e := range x.Entries() {
		got = append(got, e.Handle)
	}
	assert.Equal(t, []model.Handle{1, 3, 5}, got)
}

func TestRef_String(t *testing.T) {
	assert.Equal(t, "handle:4", HandleRef(4).String())
	assert.Equal(t, "id:n-1", IDRef("n-1").String())
	assert.Equal(t, "temp:t1", TempRef("t1").String())
	assert.Equal(t, "invalid", Ref{}.String())
}
