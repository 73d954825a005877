package application

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/room-reservations/internal/persistence"
	"github.com/example/room-reservations/internal/recurrence"
	"github.com/example/room-reservations/internal/scheduler"
	"github.com/example/room-reservations/internal/slot"
)

var (
	// ErrInvalidTimeInput is returned when an instant or date is missing or unparseable.
	ErrInvalidTimeInput = errors.New("application: invalid time input")
	// ErrInvalidWindow is returned when a window breaks alignment, duration, same-day or operating-hour rules.
	ErrInvalidWindow = errors.New("application: invalid reservation window")
	// ErrInvalidRecurrenceRange is returned for malformed repeat weekdays or repeat-until dates.
	ErrInvalidRecurrenceRange = errors.New("application: invalid recurrence range")
	// ErrTooManyOccurrences is returned when a series would exceed the occurrence cap.
	ErrTooManyOccurrences = errors.New("application: too many occurrences")
	// ErrConflict is returned when a window overlaps a block or a confirmed reservation.
	ErrConflict = errors.New("application: reservation conflict")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrInvalidState is returned when an operation is not allowed in the reservation's current status.
	ErrInvalidState = errors.New("application: invalid reservation state")
	// ErrInvalidPIN is returned when a cancel PIN does not match.
	ErrInvalidPIN = errors.New("application: invalid cancel PIN")
	// ErrLocked is returned while a reservation is in its cancel cooldown.
	ErrLocked = errors.New("application: cancel locked")
	// ErrUnauthorized is returned when a device key does not match an enabled device.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrTransientStorage is returned when storage is temporarily unavailable; callers may retry.
	ErrTransientStorage = errors.New("application: transient storage failure")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	if len(v.FieldErrors) == 1 {
		for field, msg := range v.FieldErrors {
			return fmt.Sprintf("validation failed: %s: %s", field, msg)
		}
	}
	return fmt.Sprintf("validation failed: %d fields", len(v.FieldErrors))
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// ConflictError describes which window collided and with what.
type ConflictError struct {
	Type          scheduler.ConflictType
	ConflictingID string
	RoomID        string
	Start         time.Time
	End           time.Time
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("reservation conflict: %s %s overlaps %s..%s",
		e.Type, e.ConflictingID, e.Start.UTC().Format(time.RFC3339), e.End.UTC().Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func newConflictError(c *scheduler.Conflict) *ConflictError {
	return &ConflictError{
		Type:          c.Type,
		ConflictingID: c.WithID,
		RoomID:        c.RoomID,
		Start:         c.Start,
		End:           c.End,
	}
}

// LockedError carries the end of a cancel cooldown.
type LockedError struct {
	Until time.Time
}

// Error implements the error interface.
func (e *LockedError) Error() string {
	return fmt.Sprintf("cancel locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrLocked) match.
func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// RetryAfter returns how long the caller should wait, rounded up to whole seconds.
func (e *LockedError) RetryAfter(now time.Time) time.Duration {
	d := e.Until.Sub(now)
	if d <= 0 {
		return 0
	}
	if rounded := d.Truncate(time.Second); rounded != d {
		return rounded + time.Second
	}
	return d
}

func mapWindowError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, slot.ErrInvalidTimeInput):
		return fmt.Errorf("%w: %w", ErrInvalidTimeInput, err)
	case errors.Is(err, slot.ErrInvalidWindow):
		return fmt.Errorf("%w: %w", ErrInvalidWindow, err)
	}
	return err
}

func mapRecurrenceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, recurrence.ErrTooManyOccurrences):
		return fmt.Errorf("%w: %w", ErrTooManyOccurrences, err)
	}
	return fmt.Errorf("%w: %w", ErrInvalidRecurrenceRange, err)
}

func mapStorageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, persistence.ErrTransient):
		return fmt.Errorf("%w: %w", ErrTransientStorage, err)
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}
