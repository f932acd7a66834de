package lockmgr

import (
	"context"
	"errors"
	"io"
)

// ILockManager grants shared and exclusive locks on tree paths.
//
// Two locks conflict when they belong to different transactions (tids), at least one
// of them is exclusive and their paths are equal or in ancestor/descendant relation.
// Locks of the same tid never conflict with each other.
type ILockManager interface {
	// Lock suspends the caller until the requested lock is grantable or ctx is done.
	// Waiters are served in FIFO order.
	Lock(ctx context.Context, path string, tid string, exclusive bool) (*Lock, error)

	// Locks returns a snapshot of all currently held locks.
	Locks() []LockInfo

	// WriteStats writes the wait and contention metrics as JSON to w.
	WriteStats(w io.Writer)

	// Close tears down the lock table. Waiters are woken with ErrClosed.
	// If locks are still held, ErrLocksOutstanding is returned.
	Close() error
}

// LockInfo describes a held lock.
type LockInfo struct {
	Path      string `json:"path"`
	Tid       string `json:"tid"`
	Exclusive bool   `json:"exclusive"`
}

var (
	// ErrClosed is returned for lock requests on (or waiting while) a closed lock table.
	ErrClosed = errors.New("lockmgr: lock table closed")
	// ErrLocksOutstanding is returned by Close when locks are still held.
	ErrLocksOutstanding = errors.New("lockmgr: locks outstanding")
	// ErrReleased is returned when a released or moved lock is used again.
	ErrReleased = errors.New("lockmgr: lock already released")
	// ErrNoParent is returned when moving the root lock to its parent.
	ErrNoParent = errors.New("lockmgr: root path has no parent")
)
