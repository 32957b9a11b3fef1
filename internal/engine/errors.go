package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/koppla/internal/model"
	"github.com/roach88/koppla/internal/outbox"
)

var (
	// ErrUnknownHandle means a handle has no cache record. The kernel and the
	// store disagree about what exists; callers must not ignore it.
	ErrUnknownHandle = errors.New("engine: handle has no record")

	// ErrDanglingEndpoint means an edge references a node handle without a
	// record, or a node still has incident edges when it is deleted.
	ErrDanglingEndpoint = errors.New("engine: dangling edge endpoint")

	// ErrIDMismatch means a write carried an id that differs from the one
	// already bound to the handle.
	ErrIDMismatch = errors.New("engine: record id does not match handle")

	// ErrMissingCredentials means the backend requires a token and none is set.
	ErrMissingCredentials = errors.New("engine: missing credentials")
)

// SyncErrorCode categorizes persistence failures.
type SyncErrorCode string

const (
	// ErrCodeTransient is a failed backend request. The affected keys are
	// queued again and retried.
	ErrCodeTransient SyncErrorCode = "TRANSIENT"

	// ErrCodeMissingCredentials aborts a cycle before anything is captured.
	ErrCodeMissingCredentials SyncErrorCode = "MISSING_CREDENTIALS"

	// ErrCodeUnresolvedReference is a record skipped because something it
	// references (an endpoint, a type) is not known.
	ErrCodeUnresolvedReference SyncErrorCode = "UNRESOLVED_REFERENCE"

	// ErrCodeDesync is a backend response that does not line up with what was
	// sent, such as a create response missing a temp id.
	ErrCodeDesync SyncErrorCode = "DESYNC"
)

// SyncError describes one failed persistence operation.
type SyncError struct {
	Code SyncErrorCode
	Kind model.EntityKind
	Op   outbox.Op
	Keys []string
	Err  error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Kind != "" {
		fmt.Fprintf(&b, ": %s", e.Kind)
		if e.Op != "" {
			fmt.Fprintf(&b, " %s", e.Op)
		}
	}
	if len(e.Keys) > 0 {
		fmt.Fprintf(&b, " (%d keys)", len(e.Keys))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *SyncError) Unwrap() error { return e.Err }

// IsTransient reports whether err contains a transient sync failure.
// Uses errors.As to handle wrapped and joined errors.
func IsTransient(err error) bool {
	return hasCode(err, ErrCodeTransient)
}

// IsDesync reports whether err contains a desync failure.
func IsDesync(err error) bool {
	return hasCode(err, ErrCodeDesync)
}

// IsUnresolved reports whether err contains an unresolved reference.
func IsUnresolved(err error) bool {
	return hasCode(err, ErrCodeUnresolvedReference)
}

func hasCode(err error, code SyncErrorCode) bool {
	var se *SyncError
	if errors.As(err, &se) && se.Code == code {
		return true
	}
	// errors.As stops at the first match; joined errors may hold others.
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, inner := range j.Unwrap() {
			if hasCode(inner, code) {
				return true
			}
		}
	}
	return false
}
