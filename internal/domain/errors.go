package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
// Implementing this interface lets the handler layer translate domain
// errors without enumerating every concrete type.
type HTTPError interface {
	error
	StatusCode() int
}

type (
	// NotFoundError indicates a resource was not found. Hidden items are
	// reported through this type as well so they are indistinguishable
	// from missing items.
	NotFoundError struct {
		Message string
	}

	// UnauthorizedError indicates authentication failure.
	UnauthorizedError struct {
		Message string
	}

	// ForbiddenError indicates authorization failure. Disabled items are
	// reported through this type.
	ForbiddenError struct {
		Message string
	}
)

func (e *NotFoundError) Error() string     { return e.Message }
func (e *UnauthorizedError) Error() string { return e.Message }
func (e *ForbiddenError) Error() string    { return e.Message }

func (e *NotFoundError) StatusCode() int     { return http.StatusNotFound }
func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }
func (e *ForbiddenError) StatusCode() int    { return http.StatusForbidden }

// Is allows errors.Is() to match against ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Is allows errors.Is() to match against ErrUnauthorized.
func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }

// Is allows errors.Is() to match against ErrForbidden.
func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrLocked       = errors.New("item locked")
)

// ValidationError indicates invalid input or a violated command
// constraint. Summary is the user-facing message; Detail carries a
// developer hint for conditions that normally indicate a client bug
// (for example a menu offering a command its selection cannot satisfy).
type ValidationError struct {
	Summary string
	Detail  string
}

func (e *ValidationError) Error() string {
	return e.Summary
}

func (e *ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

// Is allows errors.Is() to match against ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// LockError indicates the operation lost a race for an item's process
// lock. The mutation did not happen (or, for recursive deletes, stopped
// at a safe point); callers may retry or leave completion to the queue.
type LockError struct {
	Message string
	ItemID  string
}

func (e *LockError) Error() string {
	return e.Message
}

func (e *LockError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrLocked.
func (e *LockError) Is(target error) bool {
	return target == ErrLocked
}

// ConflictError represents a resource conflict with details about the
// existing resource.
type ConflictError struct {
	Message      string
	ResourceType string // item, grant, task
	ResourceID   string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func (e *ConflictError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
