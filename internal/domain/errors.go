package domain

import (
	"errors"
	"fmt"
)

// Business-layer errors. The HTTP and socket boundaries map these to status
// codes and scoped error events.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// AuthorizationError reports an operation attempted by a user who is not
// entitled to perform it (not a participant, or not the author).
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return e.Reason
}

func NewAuthorizationError(format string, args ...any) *AuthorizationError {
	return &AuthorizationError{Reason: fmt.Sprintf(format, args...)}
}

// ValidationError reports a structurally invalid input, such as empty or
// over-long message content.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
