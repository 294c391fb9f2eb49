package qa

import (
	"errors"
	"fmt"
)

// The service layer fails with one of these two kinds. Use errors.Is to classify.
var (
	// ErrInvalidOperation covers missing entities, name collisions and
	// invalid state transitions.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrUnauthorized means the caller does not own the resource.
	ErrUnauthorized = errors.New("unauthorized")
)

// ErrConcurrencyConflict is returned by stores when a row changed between the
// read and the write of an operation.
var ErrConcurrencyConflict = errors.New("the record was modified by another request")

// ErrDuplicateName is returned by stores on a friendly-name unique violation.
var ErrDuplicateName = errors.New("duplicate room name")

type serviceError struct {
	kind error
	msg  string
}

func (e *serviceError) Error() string { return e.msg }
func (e *serviceError) Unwrap() error { return e.kind }

// InvalidOperation builds an ErrInvalidOperation with a caller-facing message.
func InvalidOperation(format string, args ...any) error {
	return &serviceError{kind: ErrInvalidOperation, msg: fmt.Sprintf(format, args...)}
}

// Unauthorized builds an ErrUnauthorized with a caller-facing message.
func Unauthorized(msg string) error {
	return &serviceError{kind: ErrUnauthorized, msg: msg}
}
