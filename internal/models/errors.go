package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced restaurant, table, order, item or menu item does not exist
	ErrNotFound = errors.New("not found")
	// ErrValidation marks input the caller has to correct
	ErrValidation = errors.New("validation failed")
	// ErrIllegalTransition is returned when a status change violates the state table
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrConflict is returned on duplicate order numbers or stale writes
	ErrConflict = errors.New("conflict")
	// ErrSequenceExhausted is returned once a restaurant-day runs past 9999 orders
	ErrSequenceExhausted = fmt.Errorf("%w: daily order number sequence exhausted", ErrConflict)
)

// ValidationError describes a single invalid field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// TransitionError carries the rejected edge of a state machine
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s status cannot change from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// NotFoundError names the missing entity
func NotFoundError(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}
