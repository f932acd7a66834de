package backend

import (
	"context"
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Factory is a function type that creates a new backend.
// This is used to abstract the creation of the backend from the storage using it.
type Factory func() (IBackend, error)

// IBackend is the contract the node storage requires from any concrete store.
// Records are addressed by their full path, the stored bytes are opaque to the backend.
// All methods block until the operation completed and must be safe for concurrent use.
type IBackend interface {
	// Get returns the record stored at exactly this path.
	// The boolean return value indicates whether a record was found.
	Get(ctx context.Context, path string) (data []byte, loaded bool, err error)
	// Set creates or overwrites the record at path.
	Set(ctx context.Context, path string, data []byte) (err error)
	// Remove deletes the record at path. Removing a missing record is a no-op.
	Remove(ctx context.Context, path string) (err error)
	// ChildrenOf returns the paths of all records that are direct children of path
	// (one segment deeper, key or index form).
	ChildrenOf(ctx context.Context, path string) (paths []string, err error)
	// DescendantsOf returns the paths of all records below path at any depth.
	DescendantsOf(ctx context.Context, path string) (paths []string, err error)
	// Close releases all resources held by the backend.
	Close() (err error)
}

// IMultiGetter can be implemented by backends that can load many records at once.
// GetMultiple falls back to concurrent Get calls for backends without it.
type IMultiGetter interface {
	// GetMultiple returns the records of all paths that exist. Missing paths are absent from the map.
	GetMultiple(ctx context.Context, paths []string) (records map[string][]byte, err error)
}

// IMultiRemover can be implemented by backends that can delete many records at once.
// RemoveMultiple falls back to concurrent Remove calls for backends without it.
type IMultiRemover interface {
	// RemoveMultiple deletes all given paths. Missing paths are ignored.
	RemoveMultiple(ctx context.Context, paths []string) (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("BackendError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new backend Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                       // 1: Operation failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the backend.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCClosed                              // 4: The backend was already closed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
