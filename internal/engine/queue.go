package engine

import "slices"

// keyQueue is an ordered set of cache keys.
type keyQueue struct {
	keys []string
	in   map[string]bool
}

func newKeyQueue() *keyQueue {
	return &keyQueue{in: make(map[string]bool)}
}

// push appends key unless it is already queued.
func (q *keyQueue) push(key string) bool {
	if q.in[key] {
		return false
	}
	q.in[key] = true
	q.keys = append(q.keys, key)
	return true
}

// requeue puts keys back in front of anything queued since they were taken,
// preserving their original order.
func (q *keyQueue) requeue(keys []string) {
	front := make([]string, 0, len(keys))
	for _, k := range keys {
		if !q.in[k] {
			q.in[k] = true
			front = append(front, k)
		}
	}
	q.keys = append(front, q.keys...)
}

func (q *keyQueue) has(key string) bool {
	return q.in[key]
}

func (q *keyQueue) remove(key string) bool {
	if !q.in[key] {
		return false
	}
	delete(q.in, key)
	q.keys = slices.DeleteFunc(q.keys, func(k string) bool { return k == key })
	return true
}

// rename replaces from with to in place.
func (q *keyQueue) rename(from, to string) {
	if !q.in[from] {
		return
	}
	delete(q.in, from)
	if q.in[to] {
		q.keys = slices.DeleteFunc(q.keys, func(k string) bool { return k == from })
		return
	}
	q.in[to] = true
	if i := slices.Index(q.keys, from); i >= 0 {
		q.keys[i] = to
	}
}

// take removes and returns every key for which keep returns false.
// Keys for which keep returns true stay queued in order.
func (q *keyQueue) take(keep func(string) bool) []string {
	var taken, held []string
	for _, k := range q.keys {
		if keep(k) {
			held = append(held, k)
			continue
		}
		taken = append(taken, k)
		delete(q.in, k)
	}
	q.keys = held
	return taken
}

func (q *keyQueue) len() int {
	return len(q.keys)
}

// mutationQueues holds the pending mutations of one entity kind.
type mutationQueues struct {
	creates *keyQueue
	updates *keyQueue
	deletes *keyQueue

	// cancelled are temp keys whose create was dropped before it reached the
	// backend. Their outbox entries are discarded by the next cycle.
	cancelled []string

	// tempDeletes marks queued deletes whose key is still a temp id. They are
	// held back until the create response renames them.
	tempDeletes map[string]bool
}

func newMutationQueues() *mutationQueues {
	return &mutationQueues{
		creates:     newKeyQueue(),
		updates:     newKeyQueue(),
		deletes:     newKeyQueue(),
		tempDeletes: make(map[string]bool),
	}
}

func (m *mutationQueues) empty() bool {
	return m.creates.len() == 0 && m.updates.len() == 0 && m.deletes.len() == 0 && len(m.cancelled) == 0
}

// QueueStats is a snapshot of pending mutation counts for one kind.
type QueueStats struct {
	Creates int `json:"creates"`
	Updates int `json:"updates"`
	Deletes int `json:"deletes"`
}

func (m *mutationQueues) stats() QueueStats {
	return QueueStats{Creates: m.creates.len(), Updates: m.updates.len(), Deletes: m.deletes.len()}
}
