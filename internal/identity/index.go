// Package identity provides the bidirectional handle/key index used by the
// graph store.
//
// One Index exists per entity kind. Every entry is reachable from exactly one
// kernel handle and exactly one cache key; the key is either a durable entity
// id assigned by a backend or a temp id minted locally. Both directions share
// the same entry, so a remap can never leave the two views disagreeing.
//
// Index is not safe for concurrent use. The owning store serializes access.
package identity

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/koppla/internal/model"
)

// ErrKeyConflict is returned when a key is already bound to a different handle.
var ErrKeyConflict = errors.New("identity: key bound to another handle")

// RefKind tags the variant held by a Ref.
type RefKind uint8

const (
	RefHandle RefKind = iota + 1
	RefID
	RefTemp
)

// Ref addresses an entry by handle, by durable id, or by temp id.
type Ref struct {
	Kind   RefKind
	Handle model.Handle
	Key    string
}

// HandleRef addresses an entry by its kernel handle.
func HandleRef(h model.Handle) Ref { return Ref{Kind: RefHandle, Handle: h} }

// IDRef addresses an entry by its durable id. Temp-keyed entries never match.
func IDRef(id string) Ref { return Ref{Kind: RefID, Key: id} }

// TempRef addresses an entry by its temp id. Entries already remapped to a
// durable id never match.
func TempRef(tempID string) Ref { return Ref{Kind: RefTemp, Key: tempID} }

func (r Ref) String() string {
	switch r.Kind {
	case RefHandle:
		return fmt.Sprintf("handle:%d", r.Handle)
	case RefID:
		return "id:" + r.Key
	case RefTemp:
		return "temp:" + r.Key
	default:
		return "invalid"
	}
}

// Entry is a snapshot of one indexed record.
type Entry[R any] struct {
	Handle model.Handle
	Key    string
	Temp   bool
	Record R
}

type slot[R any] struct {
	handle model.Handle
	key    string
	temp   bool
	record R
}

func (s *slot[R]) entry() Entry[R] {
	return Entry[R]{Handle: s.handle, Key: s.key, Temp: s.temp, Record: s.record}
}

// Index maps handles and keys to records in O(1) both ways.
type Index[R any] struct {
	byHandle map[model.Handle]*slot[R]
	byKey    map[string]*slot[R]
}

// New creates an empty index.
func New[R any]() *Index[R] {
	return &Index[R]{
		byHandle: make(map[model.Handle]*slot[R]),
		byKey:    make(map[string]*slot[R]),
	}
}

// Put binds handle to key and stores rec.
//
// If the handle is already indexed under a different key, the old key is
// released. Binding a key that belongs to another handle fails with
// ErrKeyConflict and leaves the index untouched.
func (x *Index[R]) Put(h model.Handle, key string, temp bool, rec R) error {
	if other, ok := x.byKey[key]; ok && other.handle != h {
		return fmt.Errorf("%w: %q (handle %d, want %d)", ErrKeyConflict, key, other.handle, h)
	}

	s, ok := x.byHandle[h]
	if !ok {
		s = &slot[R]{handle: h}
		x.byHandle[h] = s
	} else if s.key != key {
		delete(x.byKey, s.key)
	}

	s.key = key
	s.temp = temp
	s.record = rec
	x.byKey[key] = s
	return nil
}

// Get returns the entry for a handle.
func (x *Index[R]) Get(h model.Handle) (Entry[R], bool) {
	s, ok := x.byHandle[h]
	if !ok {
		return Entry[R]{}, false
	}
	return s.entry(), true
}

// ByKey returns the entry bound to key regardless of whether it is temporary.
func (x *Index[R]) ByKey(key string) (Entry[R], bool) {
	s, ok := x.byKey[key]
	if !ok {
		return Entry[R]{}, false
	}
	return s.entry(), true
}

// Lookup resolves a Ref.
func (x *Index[R]) Lookup(ref Ref) (Entry[R], bool) {
	switch ref.Kind {
	case RefHandle:
		return x.Get(ref.Handle)
	case RefID, RefTemp:
		s, ok := x.byKey[ref.Key]
		if !ok || s.temp != (ref.Kind == RefTemp) {
			return Entry[R]{}, false
		}
		return s.entry(), true
	default:
		return Entry[R]{}, false
	}
}

// Update replaces the record stored for a handle, keeping its key.
func (x *Index[R]) Update(h model.Handle, fn func(*R)) bool {
	s, ok := x.byHandle[h]
	if !ok {
		return false
	}
	fn(&s.record)
	return true
}

// Remap moves the entry keyed by tempID to realID.
//
// Returns the affected handle and true when a temp entry was moved. A temp id
// that is not indexed (the record was deleted meanwhile) is a no-op. A realID
// already bound to another handle is reported as ErrKeyConflict.
func (x *Index[R]) Remap(tempID, realID string) (model.Handle, bool, error) {
	s, ok := x.byKey[tempID]
	if !ok || !s.temp {
		return 0, false, nil
	}
	if other, ok := x.byKey[realID]; ok && other != s {
		return 0, false, fmt.Errorf("%w: %q (handle %d, remapping handle %d)", ErrKeyConflict, realID, other.handle, s.handle)
	}

	// Bind the new key before releasing the old one so a lookup by either
	// never misses the entry.
	x.byKey[realID] = s
	s.key = realID
	s.temp = false
	delete(x.byKey, tempID)
	return s.handle, true, nil
}

// RemapAll applies a batch of remappings and returns the handles that moved.
// Conflicting pairs are skipped and reported together.
func (x *Index[R]) RemapAll(pairs []model.CreatedRef) ([]model.Handle, error) {
	var (
		moved []model.Handle
		errs  []error
	)
	for _, p := range pairs {
		h, ok, err := x.Remap(p.TempID, p.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			moved = append(moved, h)
		}
	}
	return moved, errors.Join(errs...)
}

// Delete removes the entry for a handle from both directions.
func (x *Index[R]) Delete(h model.Handle) (Entry[R], bool) {
	s, ok := x.byHandle[h]
	if !ok {
		return Entry[R]{}, false
	}
	delete(x.byHandle, h)
	delete(x.byKey, s.key)
	return s.entry(), true
}

// Len returns the number of indexed entries.
func (x *Index[R]) Len() int {
	return len(x.byHandle)
}

// Entries returns every entry ordered by handle.
func (x *Index[R]) Entries() []Entry[R] {
	out := make([]Entry[R], 0, len(x.byHandle))
	for _, s := range x.byHandle {
		out = append(out, s.entry())
	}
	slices.SortFunc(out, func(a, b Entry[R]) int {
		return cmp.Compare(a.Handle, b.Handle)
	})
	return out
}
