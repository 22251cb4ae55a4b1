// Package apperror defines the domain errors shared by every layer.
//
// Services and repositories return these; only the HTTP layer decides which
// status code and error name each one maps to.
//
//	ErrValidation   → 400 ValidationError
//	ErrUnauthorized → 401 UnauthorizedError
//	ErrNotFound     → 404 NotFoundError
//	ErrUnavailable  → 503 ServiceUnavailableError
//	anything else   → 500 InternalServerError, message hidden
package apperror

import (
	"errors"
	"fmt"
)

// Sentinels. Match them with errors.Is, never by comparing messages.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("unavailable")
)

// AppError pairs a sentinel with the message a client is allowed to see.
type AppError struct {
	Err     error  // one of the sentinels above
	Message string // safe to send to the client
	Field   string // set by ValidationFailed
}

func (e *AppError) Error() string { return e.Message }

func (e *AppError) Unwrap() error { return e.Err }

// NotFound reports that resource with the given id (or username) does not exist.
func NotFound(resource, id string) *AppError {
	return &AppError{Err: ErrNotFound, Message: fmt.Sprintf("%s not found with id %s", resource, id)}
}

// ValidationFailed rejects user input. field names the offending input.
func ValidationFailed(field, message string) *AppError {
	return &AppError{Err: ErrValidation, Message: message, Field: field}
}

// Unauthorized means the caller did not prove who they are: no session on a
// session route, or no valid bearer token on the write path.
func Unauthorized(message string) *AppError {
	return &AppError{Err: ErrUnauthorized, Message: message}
}

// Unavailable marks a feature that is switched off by configuration,
// e.g. login when no identity provider is configured.
func Unavailable(message string) *AppError {
	return &AppError{Err: ErrUnavailable, Message: message}
}
