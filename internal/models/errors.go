package models

import (
	"errors"
	"fmt"
)

// Domain error kinds. Services return these (usually wrapped with %w) and
// handlers discriminate with errors.Is / errors.As to pick a status code.
var (
	// ErrNotFound is returned by any id- or reference-keyed operation when
	// no such transaction (or user) exists.
	ErrNotFound = errors.New("not found")

	// ErrInvalidOperation covers operations the lifecycle forbids: cancel or
	// delete on a COMPLETED transaction, and transfers between the same account.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrReferenceExhausted is returned when the reference generator hits its
	// retry cap without finding a free reference.
	ErrReferenceExhausted = errors.New("reference generation exhausted")

	// ErrDuplicateReference is returned by the store when a create collides
	// on the unique reference column.
	ErrDuplicateReference = errors.New("duplicate transaction reference")

	// ErrEmailTaken is returned when a user create/update collides on email.
	ErrEmailTaken = errors.New("email already in use")
)

// ValidationError reports a rejected input field. Mutations failing
// validation leave the store unchanged.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
