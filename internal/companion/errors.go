// ABOUTME: Error types returned by the engine's exposed operations
// ABOUTME: Malformed requests are InputErrors and never mutate state
package companion

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is wrapped by every InputError.
	ErrInvalidInput = errors.New("invalid input")
	// ErrFeatureDisabled is returned when a flag turns an operation off for a user.
	ErrFeatureDisabled = errors.New("feature disabled")
)

// InputError describes a malformed request field.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

func inputErr(field, reason string) error {
	return &InputError{Field: field, Reason: reason}
}
