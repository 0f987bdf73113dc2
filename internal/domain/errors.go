package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below match them via errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid transition")
)

// ValidationError represents a rejected input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Msg)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError represents a missing entity.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e NotFoundError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError represents a violated uniqueness or availability rule.
// ExistingID points at the entity that caused the conflict when known.
type ConflictError struct {
	Resource   string
	Msg        string
	ExistingID int64
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
}

func (e ConflictError) Is(target error) bool { return target == ErrConflict }

// TransitionError is returned when an action is not allowed from the current state.
type TransitionError struct {
	Resource string
	ID       int64
	From     string
	Action   string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("%s %d: cannot %s from %q", e.Resource, e.ID, e.Action, e.From)
}

func (e TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

func Validation(field, msg string) error {
	return ValidationError{Field: field, Msg: msg}
}

func NotFound(resource string, id int64) error {
	return NotFoundError{Resource: resource, ID: id}
}

func Conflict(resource, msg string) error {
	return ConflictError{Resource: resource, Msg: msg}
}

func InvalidTransition(resource string, id int64, from, action string) error {
	return TransitionError{Resource: resource, ID: id, From: from, Action: action}
}

func IsValidation(err error) bool        { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool          { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool          { return errors.Is(err, ErrConflict) }
func IsInvalidTransition(err error) bool { return errors.Is(err, ErrInvalidTransition) }
