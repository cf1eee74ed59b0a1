package iam

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced entity id does not exist
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when required fields are missing or a
	// cross-realm reference is attempted; nothing is mutated
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned on duplicate create of a uniquely-keyed entity
	ErrConflict = errors.New("conflict")

	// ErrRealmDisabled is returned when the realm gate fails
	ErrRealmDisabled = errors.New("realm disabled")

	// ErrUserDisabled is returned when the user gate fails
	ErrUserDisabled = errors.New("user disabled")

	// ErrTokenInvalid is returned when an unknown, revoked, or expired token
	// is presented for validation
	ErrTokenInvalid = errors.New("token invalid")

	// ErrEvaluation is returned when the policy predicate runner fails; the
	// affected permission is denied fail-closed
	ErrEvaluation = errors.New("policy evaluation failed")
)

// NotFoundError carries the entity kind and id of a missing reference.
// It matches errors.Is(err, ErrNotFound).
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFound builds a NotFoundError for the given entity kind and id.
func NewNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// Validationf builds a validation error with a formatted reason.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflictf builds a conflict error with a formatted reason.
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
