package scheduling

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)

// Error carries a user-facing message and one of the sentinel kinds above.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.kind }

func newValidation(msg string) error { return &Error{kind: ErrValidation, msg: msg} }
func newNotFound(msg string) error   { return &Error{kind: ErrNotFound, msg: msg} }

// ConflictError reports the appointments occupying a requested slot.
type ConflictError struct {
	Conflicting []uuid.UUID
}

func (e *ConflictError) Error() string { return "time slot already booked" }
func (e *ConflictError) Unwrap() error { return ErrConflict }
