package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones and wraps of a
// sentinel still match it with errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var t *Error
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return t.Code == e.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// WrapAs wraps err using the code and status of a predefined error.
func WrapAs(base *Error, err error, message string) *Error {
	if message == "" {
		message = base.Message
	}
	return Wrap(err, base.Code, base.Status, message)
}

// Generic errors shared by every endpoint.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Lifecycle engine errors.
var (
	ErrCatalogUnavailable     = New("CATALOG_UNAVAILABLE", http.StatusServiceUnavailable, "rule catalog unavailable")
	ErrCatalogInvalid         = New("CATALOG_INVALID", http.StatusServiceUnavailable, "rule catalog is inconsistent")
	ErrNoSuchTransition       = New("NO_SUCH_TRANSITION", http.StatusUnprocessableEntity, "no such transition")
	ErrReasonRequired         = New("REASON_REQUIRED", http.StatusUnprocessableEntity, "transition requires a reason")
	ErrUnknownReason          = New("UNKNOWN_REASON", http.StatusUnprocessableEntity, "unknown transition reason")
	ErrActorRequired          = New("ACTOR_REQUIRED", http.StatusUnprocessableEntity, "transition requires an actor")
	ErrConcurrentModification = New("CONCURRENT_MODIFICATION", http.StatusConflict, "entity was modified concurrently")
	ErrReactor                = New("REACTOR_ERROR", http.StatusInternalServerError, "automatic milestone rule failed")
	ErrStorage                = New("STORAGE_ERROR", http.StatusInternalServerError, "lifecycle storage failure")
	ErrUnknownMilestone       = New("UNKNOWN_MILESTONE", http.StatusUnprocessableEntity, "unknown financial milestone")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// CodeOf returns the code of the first *Error in the chain or an empty string.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
