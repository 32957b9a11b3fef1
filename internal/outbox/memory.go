package outbox

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/roach88/koppla/internal/model"
)

type entryKey struct {
	kind model.EntityKind
	op   Op
	key  string
}

// Memory is an Outbox that lives only as long as the process. It is used when
// no outbox path is configured and in tests.
type Memory struct {
	mu      sync.Mutex
	entries map[entryKey]Entry
}

var _ Outbox = (*Memory)(nil)

// NewMemory creates an empty in-memory outbox.
func NewMemory() *Memory {
	return &Memory{entries: make(map[entryKey]Entry)}
}

func (m *Memory) Stage(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		k := entryKey{e.Kind, e.Op, e.Key}
		if prev, ok := m.entries[k]; ok {
			e.ID = prev.ID
			e.Attempts = prev.Attempts
		}
		m.entries[k] = e
	}
	return nil
}

func (m *Memory) Ack(_ context.Context, kind model.EntityKind, op Op, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, entryKey{kind, op, key})
	}
	return nil
}

func (m *Memory) Fail(_ context.Context, kind model.EntityKind, op Op, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		k := entryKey{kind, op, key}
		if e, ok := m.entries[k]; ok {
			e.Attempts++
			m.entries[k] = e
		}
	}
	return nil
}

func (m *Memory) Pending(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
