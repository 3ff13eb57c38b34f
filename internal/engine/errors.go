package engine

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrorCode categorizes structural errors.
type ErrorCode string

const (
	// ErrCodeUnknownMethod indicates a call to a method that is not registered.
	ErrCodeUnknownMethod ErrorCode = "UNKNOWN_METHOD"

	// ErrCodeDuplicateMethod indicates a name registered twice.
	ErrCodeDuplicateMethod ErrorCode = "DUPLICATE_METHOD"

	// ErrCodeBlockMismatch indicates an end marker that does not match the
	// innermost open block.
	ErrCodeBlockMismatch ErrorCode = "BLOCK_MISMATCH"

	// ErrCodeUnmatchedBlockEnd indicates an end marker with no open block.
	ErrCodeUnmatchedBlockEnd ErrorCode = "UNMATCHED_BLOCK_END"

	// ErrCodeOpenBlock indicates running or cloning a chain with an open block.
	ErrCodeOpenBlock ErrorCode = "OPEN_BLOCK"

	// ErrCodeAlreadyStarted indicates starting a queue twice or registering a
	// second terminal callback.
	ErrCodeAlreadyStarted ErrorCode = "ALREADY_STARTED"

	// ErrCodeFinished indicates adding to a queue that already delivered its result.
	ErrCodeFinished ErrorCode = "FINISHED"

	// ErrCodeNotStarted indicates registering a terminal callback on a chain
	// that was never started.
	ErrCodeNotStarted ErrorCode = "NOT_STARTED"

	// ErrCodeReservedName indicates an extension name that shadows a core
	// Context method.
	ErrCodeReservedName ErrorCode = "RESERVED_NAME"

	// ErrCodeInvalidSpec indicates a malformed operation definition.
	ErrCodeInvalidSpec ErrorCode = "INVALID_SPEC"
)

// StructuralError reports a programming-contract violation: bad
// registration, mismatched blocks, or misuse of a queue's lifecycle. These
// are never delivered through a completion callback.
type StructuralError struct {
	Code    ErrorCode
	Message string
	Method  string // offending method, if any
	Block   string // block marker involved, if any
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("%s: %s (method=%s)", e.Code, e.Message, e.Method)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func structural(code ErrorCode, method, format string, args ...any) *StructuralError {
	return &StructuralError{Code: code, Message: fmt.Sprintf(format, args...), Method: method}
}

// ValidationError reports an argument or previous-result check failure.
//
// Error returns Message verbatim so callers can match the documented texts
// exactly; Method and Index carry the context.
type ValidationError struct {
	Method  string
	Index   int // argument position, -1 for count and previous-result checks
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// PanicError wraps a panic raised by an operation before it completed.
type PanicError struct {
	Method string
	Value  any
	Stack  []byte
}

func newPanicError(method string, value any) *PanicError {
	return &PanicError{Method: method, Value: value, Stack: debug.Stack()}
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("operation %q panicked: %v", e.Method, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// IsStructuralError returns true if err is or wraps a *StructuralError.
func IsStructuralError(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// IsValidationError returns true if err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPanicError returns true if err is or wraps a *PanicError.
func IsPanicError(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// HasCode returns true if err is a *StructuralError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var se *StructuralError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
