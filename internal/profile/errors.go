package profile

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by a Store when the addressed document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrProfileNotFound is returned when a user has no remote profile yet.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrUnknownSyncType marks a queue entry or task with an unsupported type.
	ErrUnknownSyncType = errors.New("unknown sync type")
	// ErrDispatcherClosed is the terminal error of tasks submitted after Close.
	ErrDispatcherClosed = errors.New("dispatcher closed")
	// ErrMissingUser is returned when a sync is requested without a user id.
	ErrMissingUser = errors.New("user id is required")
)

// SyncError wraps a remote write failure with the operation and domain.
type SyncError struct {
	Op   string   // "push", "replay", "enqueue"
	Type SyncType // domain being written
	Err  error
}

func (e *SyncError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.Type, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
