package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/koppla/internal/model"
	"github.com/roach88/koppla/internal/outbox"
)

func TestSyncError_Error(t *testing.T) {
	err := &SyncError{
		Code: ErrCodeTransient,
		Kind: model.KindNode,
		Op:   outbox.OpCreate,
		Keys: []string{"t1", "t2"},
		Err:  errors.New("503"),
	}
	assert.Equal(t, "TRANSIENT: node create (2 keys): 503", err.Error())

	bare := &SyncError{Code: ErrCodeMissingCredentials, Err: ErrMissingCredentials}
	assert.Equal(t, "MISSING_CREDENTIALS: engine: missing credentials", bare.Error())
}

func TestSyncError_Unwrap(t *testing.T) {
	err := fmt.Errorf("cycle: %w", &SyncError{Code: ErrCodeMissingCredentials, Err: ErrMissingCredentials})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestIsTransient_Joined(t *testing.T) {
	err := errors.Join(
		&SyncError{Code: ErrCodeDesync},
		fmt.Errorf("wrapped: %w", &SyncError{Code: ErrCodeTransient}),
	)
	assert.True(t, IsTransient(err))
	assert.True(t, IsDesync(err))
	assert.False(t, IsUnresolved(err))
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("plain")))
}
