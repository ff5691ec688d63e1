package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when an exam document is malformed.
	ErrValidation = errors.New("validation failed")

	// ErrStorage is returned when the underlying store fails.
	ErrStorage = errors.New("storage failure")

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCollaborator is returned when an external collaborator (scheduler,
	// renderer, generation provider) fails.
	ErrCollaborator = errors.New("collaborator failure")

	ErrNoExamLoaded  = fmt.Errorf("%w: no exam loaded", ErrNotFound)
	ErrNoCurrentCard = fmt.Errorf("%w: no current card", ErrNotFound)
	ErrInvalidRating = errors.New("invalid rating")
)

// StoreError wraps an engine failure with the entity and operation involved.
type StoreError struct {
	Entity    string
	Operation string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Entity, e.Err)
}

// Unwrap exposes both ErrStorage and the underlying cause.
func (e *StoreError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// NewStoreError returns a StoreError, or nil when err is nil.
func NewStoreError(entity, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Entity: entity, Operation: operation, Err: err}
}
