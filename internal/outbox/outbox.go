// Package outbox is the write-ahead staging area for backend mutations.
//
// The graph store stages every captured batch here before it talks to the
// backend and acknowledges entries once the backend confirms them. Entries
// that survive a crash or a failed request are replayed by the next session,
// so a mutation is only forgotten after the backend has accepted it.
package outbox

import (
	"context"
	"encoding/json"

	"github.com/roach88/koppla/internal/model"
)

// Op is the backend operation an entry stands for.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Entry is one staged mutation.
//
// (Kind, Op, Key) is unique: staging the same triple again replaces the
// payload and sequence number, keeping the attempt count.
type Entry struct {
	ID       string           `json:"id"`
	Kind     model.EntityKind `json:"kind"`
	Op       Op               `json:"op"`
	Key      string           `json:"key"`
	Payload  json.RawMessage  `json:"payload,omitempty"`
	Attempts int              `json:"attempts"`
	Seq      int64            `json:"seq"`
}

// Outbox stores staged mutations until they are acknowledged.
type Outbox interface {
	// Stage upserts entries.
	Stage(ctx context.Context, entries []Entry) error
	// Ack removes entries. Unknown keys are ignored.
	Ack(ctx context.Context, kind model.EntityKind, op Op, keys []string) error
	// Fail increments the attempt count of entries.
	Fail(ctx context.Context, kind model.EntityKind, op Op, keys []string) error
	// Pending returns every staged entry ordered by Seq.
	Pending(ctx context.Context) ([]Entry, error)
}
