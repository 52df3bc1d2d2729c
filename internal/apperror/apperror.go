package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrLockConflict means another identity holds the edit lock.
	ErrLockConflict = errors.New("lock conflict")
	// ErrReadOnly is returned by client-side mutations on a read-only collection.
	ErrReadOnly = errors.New("read only")
	// ErrTransient covers network failures and server errors that are worth retrying.
	ErrTransient = errors.New("transient failure")
	// ErrExecution means the example ran but did not succeed.
	ErrExecution   = errors.New("execution failed")
	ErrRateLimited = errors.New("rate limited")
)

// Numeric error codes carried in API error bodies.
const (
	CodeDBError         = 1
	CodeExampleExists   = 2
	CodeExampleNotFound = 3
	CodeCommentExists   = 4
	CodeCommentNotFound = 5
	CodeBadExampleID    = 6
	CodeBadExampleBody  = 7
	CodeNeedEditLock    = 8
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Code    int    // Optional: numeric API code
	Owner   string // Lock holder, for lock conflicts and read-only errors
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithCode sets the numeric API code and returns e.
func (e *AppError) WithCode(code int) *AppError {
	e.Code = code
	return e
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// LockConflict reports that identity tried to write while owner holds the lock.
func LockConflict(identity, owner string) *AppError {
	return &AppError{
		Err:     ErrLockConflict,
		Message: fmt.Sprintf("user '%s' does not have access lock (held by %s)", identity, owner),
		Code:    CodeNeedEditLock,
		Owner:   owner,
	}
}

// ReadOnly is returned when a client mutation is refused. owner may be empty
// for collections that are read-only without a competing writer.
func ReadOnly(owner string) *AppError {
	msg := "examples are read-only"
	if owner != "" {
		msg = fmt.Sprintf("examples are read-only (locked by %s)", owner)
	}
	return &AppError{
		Err:     ErrReadOnly,
		Message: msg,
		Owner:   owner,
	}
}

// Transient wraps a retryable failure.
func Transient(err error) *AppError {
	return &AppError{
		Err:     ErrTransient,
		Message: err.Error(),
	}
}

func Execution(message string) *AppError {
	return &AppError{
		Err:     ErrExecution,
		Message: message,
	}
}

func RateLimited() *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Message: "too many execution requests, slow down",
	}
}

// FromCode rebuilds a typed error from an API error body. Unknown or missing
// codes are treated as transient.
func FromCode(code int, message, owner string) *AppError {
	var sentinel error
	switch code {
	case CodeNeedEditLock:
		sentinel = ErrLockConflict
	case CodeExampleNotFound, CodeCommentNotFound:
		sentinel = ErrNotFound
	case CodeExampleExists, CodeCommentExists:
		sentinel = ErrConflict
	case CodeBadExampleID, CodeBadExampleBody:
		sentinel = ErrValidation
	default:
		sentinel = ErrTransient
	}
	return &AppError{
		Err:     sentinel,
		Message: message,
		Code:    code,
		Owner:   owner,
	}
}
