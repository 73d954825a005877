// Package audit defines the append-only audit event contract and the emitters
// the reservation authority writes through.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/room-reservations/internal/persistence"
)

// ActorKind identifies who caused an audited change.
type ActorKind string

const (
	ActorDevice ActorKind = "device"
	ActorAdmin  ActorKind = "admin"
	ActorSystem ActorKind = "system"
)

// Valid reports whether k is a known actor kind.
func (k ActorKind) Valid() bool {
	switch k {
	case ActorDevice, ActorAdmin, ActorSystem:
		return true
	}
	return false
}

// Action names an audited state change.
type Action string

const (
	ActionReservationCreate       Action = "reservation_create"
	ActionReservationCreateSeries Action = "reservation_create_series"
	ActionReservationUpdate       Action = "reservation_update"
	ActionReservationUpdateSeries Action = "reservation_update_series"
	ActionReservationCancel       Action = "reservation_cancel"
	ActionCancelPINFailed         Action = "reservation_cancel_pin_failed"
	ActionCancelLocked            Action = "reservation_cancel_locked"

	ActionRoomCreate     Action = "room_create"
	ActionRoomUpdate     Action = "room_update"
	ActionBlockCreate    Action = "block_create"
	ActionBlockDelete    Action = "block_delete"
	ActionDeviceRegister Action = "device_register"
)

// Event is one audit record handed to an Emitter.
type Event struct {
	At            time.Time
	ActorKind     ActorKind
	ActorLabel    string
	Action        Action
	ReservationID *string
	IP            *string
	Detail        map[string]any
}

// Emitter records audit events. Implementations must be safe for concurrent use.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, event Event) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// NopEmitter discards every event.
type NopEmitter struct{}

// Emit implements Emitter.
func (NopEmitter) Emit(context.Context, Event) error { return nil }

// StoreEmitter appends events to durable storage.
type StoreEmitter struct {
	writer      persistence.AuditRepository
	idGenerator func() string
	now         func() time.Time
}

// NewStoreEmitter constructs a StoreEmitter. Nil generators default to random
// UUIDs and the wall clock.
func NewStoreEmitter(writer persistence.AuditRepository, idGenerator func() string, now func() time.Time) *StoreEmitter {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &StoreEmitter{writer: writer, idGenerator: idGenerator, now: now}
}

// Emit implements Emitter.
func (e *StoreEmitter) Emit(ctx context.Context, event Event) error {
	if e == nil || e.writer == nil {
		return errors.New("audit: store emitter not configured")
	}
	if !event.ActorKind.Valid() {
		return fmt.Errorf("audit: unknown actor kind %q", event.ActorKind)
	}
	if event.Action == "" {
		return errors.New("audit: action is required")
	}
	at := event.At
	if at.IsZero() {
		at = e.now()
	}
	return e.writer.AppendAuditEntry(ctx, persistence.AuditEntry{
		ID:            e.idGenerator(),
		At:            at.UTC(),
		ActorKind:     string(event.ActorKind),
		ActorLabel:    event.ActorLabel,
		Action:        string(event.Action),
		ReservationID: event.ReservationID,
		IP:            event.IP,
		Detail:        event.Detail,
	})
}

// LogEmitter writes events as structured log records.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter constructs a LogEmitter. A nil logger uses slog.Default.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit implements Emitter.
func (e *LogEmitter) Emit(ctx context.Context, event Event) error {
	attrs := []any{
		"action", string(event.Action),
		"actor_kind", string(event.ActorKind),
		"actor_label", event.ActorLabel,
	}
	if event.ReservationID != nil {
		attrs = append(attrs, "reservation_id", *event.ReservationID)
	}
	if event.IP != nil {
		attrs = append(attrs, "ip", *event.IP)
	}
	if len(event.Detail) > 0 {
		attrs = append(attrs, "detail", event.Detail)
	}
	e.logger.InfoContext(ctx, "audit event", attrs...)
	return nil
}

// MultiEmitter fans events out to every emitter and joins their errors.
type MultiEmitter []Emitter

// Emit implements Emitter. Every emitter is called even when an earlier one fails.
func (m MultiEmitter) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, emitter := range m {
		if emitter == nil {
			continue
		}
		if err := emitter.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
