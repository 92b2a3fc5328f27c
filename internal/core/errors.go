package core

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the ledger matches exactly one of
// these with errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("entry not found")
	ErrPersistence = errors.New("persistence failed")
)

var (
	ErrInvalidAmount  = errors.New("amount must be greater than zero")
	ErrNoParticipants = errors.New("participants cannot be empty without custom shares")
	ErrNegativeShare  = errors.New("shares cannot be negative")
	ErrInvalidShare   = errors.New("each share needs a numeric amount")
	ErrSharesMismatch = errors.New("shares must sum to the amount")
	ErrBlankCategory  = errors.New("category name cannot be blank")
	ErrBlankPayer     = errors.New("payer cannot be blank")
	ErrInvalidDate    = errors.New("date must be in YYYY-MM-DD form")
)

// ValidationError reports caller supplied data that violates an entry invariant.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// NotFoundError reports a reference to an entry id that is not in the store.
type NotFoundError struct {
	ID int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("entry %d not found", e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// PersistenceError wraps a failure of the durability port.
type PersistenceError struct {
	Op      string // "load" or "save"
	Backend string
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("%s snapshot: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s snapshot (%s): %v", e.Op, e.Backend, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
