package node

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type of all node operations. It wraps a return code,
// the path the operation failed on and an optional cause.
type Error struct {
	Code RetCode // The return code
	Path string  // The path of the failed operation
	Msg  string  // The error message
	Err  error   // The underlying error (may be nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("NodeError (code %s) at %q: %s", e.Code, "/"+e.Path, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is match the sentinel errors of the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Path == "" && t.Msg == "" && t.Code == e.Code
}

// newError creates a new node Error with the given code and message.
func newError(code RetCode, p string, format string, args ...any) *Error {
	return &Error{
		Code: code,
		Path: p,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// wrapError wraps a backend or lock error.
func wrapError(p string, msg string, err error) error {
	if err == nil {
		return nil
	}
	var nErr *Error
	if errors.As(err, &nErr) {
		return err
	}
	return &Error{Code: RetCInternalError, Path: p, Msg: msg, Err: err}
}

// Sentinel errors for errors.Is.
var (
	ErrNotFound             = &Error{Code: RetCNotFound}
	ErrInvalidValue         = &Error{Code: RetCInvalidValue}
	ErrRevisionMismatch     = &Error{Code: RetCRevisionMismatch}
	ErrDecode               = &Error{Code: RetCDecodeError}
	ErrConsistencyViolation = &Error{Code: RetCConsistencyViolation}
	ErrIteratorUsed         = errors.New("node: children iterator already used")
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Operation executed successfully.
	RetCNotFound                            // 1: The node does not exist.
	RetCInvalidValue                        // 2: The value can not be stored at this position.
	RetCRevisionMismatch                    // 3: The asserted revision does not match.
	RetCDecodeError                         // 4: A stored record could not be decoded.
	RetCConsistencyViolation                // 5: The stored records contradict each other.
	RetCInternalError                       // 6: Backend or lock failure.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCNotFound:
		return "NotFound"
	case RetCInvalidValue:
		return "InvalidValue"
	case RetCRevisionMismatch:
		return "RevisionMismatch"
	case RetCDecodeError:
		return "DecodeError"
	case RetCConsistencyViolation:
		return "ConsistencyViolation"
	case RetCInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}
