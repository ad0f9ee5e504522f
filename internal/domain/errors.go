package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")
)

// ValidationError describes one invalid field. It wraps ErrValidation (or a
// more specific sentinel) so callers can match it with errors.Is.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string, err error) *ValidationError {
	if err == nil {
		err = ErrValidation
	}
	return &ValidationError{Field: field, Message: message, Err: err}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Err, e.Message)
	}
	return fmt.Sprintf("%s: %s %s", e.Err, e.Field, e.Message)
}

// Unwrap returns the wrapped sentinel.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is reports every ValidationError as an ErrValidation, whatever sentinel it wraps.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
