package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is the shared shape for entity lookups that miss.
type ErrNotFound struct {
	Entity string
	ID     string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found with ID: %s", e.Entity, e.ID)
}

// IsNotFound reports whether err is an ErrNotFound of any entity.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

// ValidationError represents an error caused by invalid input or parameters.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// NewValidationError creates a new validation error with the given message.
func NewValidationError(message string) error {
	return ValidationError{Message: message}
}

// PermanentError marks a job failure that must not be retried: the job goes
// straight to dead regardless of remaining attempts.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err as a permanent job failure.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries the permanent failure marker.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
