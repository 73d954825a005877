package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a write violates a check or foreign key constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrTransient is returned when storage is temporarily unavailable, e.g. the database is locked.
	ErrTransient = errors.New("persistence: transient failure")
)
