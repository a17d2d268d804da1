package models

import (
	"errors"
	"fmt"
)

// ErrInvalidSplit is returned when a split cannot be attempted at all:
// no participants, or a total that is not positive.
var ErrInvalidSplit = errors.New("invalid split")

// ValidationError describes malformed or missing user input.
// Message is safe to show to the user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError returns a *ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
