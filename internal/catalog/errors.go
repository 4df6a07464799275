package catalog

import (
	"errors"
	"fmt"
)

// ErrorCode is the closed set of error categories surfaced by the catalog.
// Callers branch on the code, never on message text.
type ErrorCode int

const (
	// ErrInvalidFormat indicates a malformed input path.
	ErrInvalidFormat ErrorCode = iota

	// ErrCanonicalizationFailed indicates filesystem resolution was required
	// and failed.
	ErrCanonicalizationFailed

	// ErrBatchTooLarge indicates a single batch payload would exceed the
	// 2 GiB cap; the caller must split.
	ErrBatchTooLarge

	// ErrMemoryLimitExceeded indicates an operation would overrun the
	// configured memory caps; the caller must shrink the batch.
	ErrMemoryLimitExceeded

	// ErrTransactionFailed indicates an I/O or integrity error during
	// commit; the operation was rolled back and may be retried.
	ErrTransactionFailed

	// ErrNotFound indicates the id or path is not in the catalog.
	ErrNotFound

	// ErrCorrupt indicates a CRC mismatch or WAL integrity failure.
	ErrCorrupt

	// ErrTimeout indicates the operation deadline elapsed.
	ErrTimeout
)

func (c ErrorCode) String() string {
	switch c {
	case ErrInvalidFormat:
		return "invalid format"
	case ErrCanonicalizationFailed:
		return "canonicalization failed"
	case ErrBatchTooLarge:
		return "batch too large"
	case ErrMemoryLimitExceeded:
		return "memory limit exceeded"
	case ErrTransactionFailed:
		return "transaction failed"
	case ErrNotFound:
		return "not found"
	case ErrCorrupt:
		return "corrupt"
	case ErrTimeout:
		return "timeout"
	}
	return "unknown"
}

// Error is the tagged error type returned by catalog operations. Path and ID
// carry the offending key when known.
type Error struct {
	Code    ErrorCode
	Message string
	Path    string
	ID      uint64
	cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.ID != 0 {
		return fmt.Sprintf("%s: id %d", msg, e.ID)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// Is makes errors.Is(err, &Error{Code: c}) match on code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// newError builds a tagged error with a formatted message.
func newError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// wrapError tags an underlying error with a catalog code.
func wrapError(code ErrorCode, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// CodeOf extracts the catalog error code from err, or ok=false when err is
// not a catalog error. Wrapped errors are unwrapped.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.Code, true
}

// IsCode reports whether err is a catalog error with the given code.
func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
