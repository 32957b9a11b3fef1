package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyQueue_PushDedup(t *testing.T) {
	q := newKeyQueue()
	assert.True(t, q.push("a"))
	assert.True(t, q.push("b"))
	assert.False(t, q.push("a"))
	assert.Equal(t, []string{"a", "b"}, q.keys)
}

func TestKeyQueue_TakeHoldsBack(t *testing.T) {
	q := newKeyQueue()
	for _, k := range []string{"a", "t1", "b", "t2"} {
		q.push(k)
	}

	taken := q.take(func(k string) bool { return k[0] == 't' })
	assert.Equal(t, []string{"a", "b"}, taken)
	assert.Equal(t, []string{"t1", "t2"}, q.keys)
	assert.False(t, q.has("a"))
	assert.True(t, q.has("t1"))
}

func TestKeyQueue_RequeueGoesFirst(t *testing.T) {
	q := newKeyQueue()
	q.push("new")
	q.requeue([]string{"old1", "new", "old2"})
	assert.Equal(t, []string{"old1", "old2", "new"}, q.keys)
}

func TestKeyQueue_Rename(t *testing.T) {
	q := newKeyQueue()
	q.push("a")
	q.push("t1")
	q.push("c")

	q.rename("t1", "n-1")
	assert.Equal(t, []string{"a", "n-1", "c"}, q.keys)
	assert.True(t, q.has("n-1"))
	assert.False(t, q.has("t1"))

	q.rename("a", "c")
	assert.Equal(t, []string{"n-1", "c"}, q.keys, "renaming onto a queued key collapses them")

	q.rename("missing", "x")
	assert.False(t, q.has("x"))
}

func TestKeyQueue_Remove(t *testing.T) {
	q := newKeyQueue()
	q.push("a")
	q.push("b")
	assert.True(t, q.remove("a"))
	assert.False(t, q.remove("a"))
	assert.Equal(t, []string{"b"}, q.keys)
}
