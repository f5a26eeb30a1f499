// Package apperror provides domain-specific error types for the site.
// These errors carry an HTTP status code and a user-safe message. The Echo
// error handler maps them to appropriate HTTP responses automatically.
//
// NEVER return raw backend or infrastructure errors to the browser. Always
// wrap them in an apperror type or return a generic internal error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types used by the authentication flow. Handlers switch on these to
// decide whether to re-render a form, redirect, or show an error page.
const (
	TypeUnauthorized       = "unauthorized"
	TypeInvalidCredentials = "invalid_credentials"
	TypeValidation         = "validation_error"
	TypeCallback           = "callback_error"
	TypeNetwork            = "network_error"
	TypeRoleMismatch       = "role_mismatch"
)

// FieldError describes a single invalid form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError is the base error type for all domain errors. It carries an
// HTTP status code, a machine-readable error type, and a human-readable
// message safe to show to the client.
type AppError struct {
	// Code is the HTTP status code (e.g., 404, 400, 500).
	Code int `json:"-"`

	// Type is a machine-readable error classifier (e.g., "not_found").
	Type string `json:"type"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Fields lists per-field problems for validation errors.
	Fields []FieldError `json:"fields,omitempty"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// --- Constructors for common error types ---

// NewNotFound creates a 404 Not Found error.
func NewNotFound(message string) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Type:    "not_found",
		Message: message,
	}
}

// NewBadRequest creates a 400 Bad Request error.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    "bad_request",
		Message: message,
	}
}

// NewUnauthorized creates a 401 Unauthorized error.
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeUnauthorized,
		Message: message,
	}
}

// NewForbidden creates a 403 Forbidden error.
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    "forbidden",
		Message: message,
	}
}

// NewConflict creates a 409 Conflict error.
func NewConflict(message string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    "conflict",
		Message: message,
	}
}

// NewInvalidCredentials creates a 401 error for a rejected username/password.
func NewInvalidCredentials(message string) *AppError {
	if message == "" {
		message = "invalid username or password"
	}
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeInvalidCredentials,
		Message: message,
	}
}

// NewValidation creates a 422 Unprocessable Entity error for validation failures.
func NewValidation(message string, fields ...FieldError) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Type:    TypeValidation,
		Message: message,
		Fields:  fields,
	}
}

// NewCallback creates a 400 error for a malformed identity-provider callback.
func NewCallback(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    TypeCallback,
		Message: message,
	}
}

// NewNetwork creates a 502 error for a backend request that never produced
// a usable response (transport failure, timeout, undecodable body).
func NewNetwork(err error) *AppError {
	return &AppError{
		Code:     http.StatusBadGateway,
		Type:     TypeNetwork,
		Message:  "We couldn't reach the server. Please try again.",
		Internal: err,
	}
}

// NewRoleMismatch creates an informational error for a session used through
// an entry point meant for a different audience. Handlers resolve it with
// a redirect and a notice; it is never rendered as an error page.
func NewRoleMismatch(message string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    TypeRoleMismatch,
		Message: message,
	}
}

// errMissingContext is the shared internal error for nil precondition checks.
var errMissingContext = errors.New("missing required context")

// NewMissingContext creates a 500 error for handler nil-context guards
// (e.g. session not set, dependency not wired).
func NewMissingContext() *AppError {
	return NewInternal(errMissingContext)
}

// NewInternal creates a 500 Internal Server Error. The real error is stored
// in Internal for logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     "internal_error",
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// As extracts an *AppError from err's chain, or returns nil.
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType reports whether err carries an AppError of the given type.
func IsType(err error, typ string) bool {
	appErr := As(err)
	return appErr != nil && appErr.Type == typ
}

// IsUnauthorized reports a missing or rejected session. Invalid
// credentials share the 401 code but are not a session problem.
func IsUnauthorized(err error) bool {
	return IsType(err, TypeUnauthorized)
}

// SafeMessage returns the client-safe error message from an error. If the
// error is an AppError, returns its Message field (which is safe to expose).
// For any other error type, returns a generic message to prevent leaking
// internal details like backend URLs or stack traces.
func SafeMessage(err error) string {
	if appErr := As(err); appErr != nil {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status code from an AppError, or 500 for
// any other error type.
func SafeCode(err error) int {
	if appErr := As(err); appErr != nil {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
