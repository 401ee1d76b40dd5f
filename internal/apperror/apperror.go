// Package apperror defines the domain errors shared by the service and
// repository layers. Handlers translate them to HTTP status codes; nothing
// below the handler layer knows about HTTP.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
)

type AppError struct {
	Err     error  // sentinel the error wraps
	Message string // Human-readable error message
	Field   string // Optional: field causing the error

	// RetryAfter is set for ErrRateLimited errors.
	RetryAfter time.Duration
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
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

// Conflict reports a uniqueness clash, e.g. an email that is already registered.
func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
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

// Unauthorized is returned for failed credential checks (401).
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// RateLimited tells the caller to come back after wait.
func RateLimited(message string, wait time.Duration) *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    message,
		RetryAfter: wait,
	}
}

// RetryAfter extracts the wait hint from a rate-limited error chain.
func RetryAfter(err error) (time.Duration, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && errors.Is(appErr.Err, ErrRateLimited) {
		return appErr.RetryAfter, true
	}
	return 0, false
}
