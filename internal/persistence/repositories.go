package persistence

import (
	"context"
	"time"
)

// RoomReader reads the room catalog.
type RoomReader interface {
	GetRoom(ctx context.Context, id string) (Room, error)
	ListActiveRooms(ctx context.Context) ([]Room, error)
}

// ReservationReader reads reservations and blocks.
type ReservationReader interface {
	GetReservation(ctx context.Context, id string) (Reservation, error)
	// ListConfirmedBetween returns confirmed reservations intersecting [start, end) ordered by room and start.
	ListConfirmedBetween(ctx context.Context, start, end time.Time) ([]Reservation, error)
	// ListBlocksBetween returns blocks intersecting [start, end) ordered by start.
	ListBlocksBetween(ctx context.Context, start, end time.Time) ([]Block, error)
}

// OverlapFinder locates the first stored interval colliding with a window.
type OverlapFinder interface {
	// FirstOverlappingBlock returns a block of roomID or a facility-wide block intersecting [start, end).
	FirstOverlappingBlock(ctx context.Context, roomID string, start, end time.Time) (Block, bool, error)
	// FirstOverlappingReservation returns a confirmed reservation of roomID intersecting [start, end), skipping excludeID.
	FirstOverlappingReservation(ctx context.Context, roomID string, start, end time.Time, excludeID string) (Reservation, bool, error)
}

// ReservationWriter mutates reservations.
type ReservationWriter interface {
	InsertReservations(ctx context.Context, reservations []Reservation) error
	UpdateReservation(ctx context.Context, reservation Reservation) error
	// ListSeries returns reservations of seriesID with the given status ordered by start.
	ListSeries(ctx context.Context, seriesID string, status ReservationStatus) ([]Reservation, error)
}

// Tx is the unit of work handed to WithinTransaction callbacks.
type Tx interface {
	RoomReader
	ReservationReader
	OverlapFinder
	ReservationWriter
}

// Store is the storage surface the reservation authority depends on.
type Store interface {
	RoomReader
	ReservationReader
	// WithinTransaction runs fn in one transaction. The transaction commits
	// when fn returns nil and rolls back otherwise, including on panic.
	WithinTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// DeviceRepository reads registered access devices.
type DeviceRepository interface {
	ListEnabledDevices(ctx context.Context) ([]AccessDevice, error)
}

// AuditRepository appends audit entries.
type AuditRepository interface {
	AppendAuditEntry(ctx context.Context, entry AuditEntry) error
}

// FacilityRepository manages rooms, blocks and devices on behalf of administrators.
type FacilityRepository interface {
	GetRoom(ctx context.Context, id string) (Room, error)
	CreateRoom(ctx context.Context, room Room) (Room, error)
	UpdateRoom(ctx context.Context, room Room) error
	CreateBlock(ctx context.Context, block Block) (Block, error)
	DeleteBlock(ctx context.Context, id string) error
	CreateDevice(ctx context.Context, device AccessDevice) (AccessDevice, error)
}
