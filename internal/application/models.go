package application

import (
	"time"

	"github.com/example/room-reservations/internal/audit"
	"github.com/example/room-reservations/internal/persistence"
	"github.com/example/room-reservations/internal/slot"
)

const (
	// MaxTitleLength bounds reservation titles, in characters.
	MaxTitleLength = 120
	// MaxColorLength bounds the display color value.
	MaxColorLength = 20
	// DefaultColor is the display color of reservations created without one.
	DefaultColor = "#e3f2fd"
)

// Actor identifies who is invoking an operation.
type Actor struct {
	Kind     audit.ActorKind
	Label    string
	DeviceID *string
	IP       string
}

// SystemActor is used when no caller identity is available.
var SystemActor = Actor{Kind: audit.ActorSystem, Label: "system"}

// Reservation is the caller facing view of a reservation. The PIN hash never leaves the service.
type Reservation struct {
	ID                string
	RoomID            string
	Start             time.Time
	End               time.Time
	Status            persistence.ReservationStatus
	SeriesID          *string
	Title             string
	Note              string
	Color             string
	CancelLockedUntil *time.Time
	CreatedByDevice   *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CreateReservationParams wraps the data required to create one reservation or a weekly series.
type CreateReservationParams struct {
	RoomID string
	Start  time.Time
	End    time.Time
	Title  string
	Note   string
	Color  string
	PIN    string
	// RepeatDays uses 0=Sunday through 6=Saturday. It must be set together with RepeatUntil.
	RepeatDays  []int
	RepeatUntil *slot.Date
	Actor       Actor
}

// CreateReservationResult lists the created reservations in start order.
type CreateReservationResult struct {
	IDs          []string
	SeriesID     *string
	Reservations []Reservation
}

// ReservationChanges lists the editable fields of a reservation. Nil fields are left unchanged.
// Start and End move the window and must be given together.
type ReservationChanges struct {
	RoomID *string
	Start  *time.Time
	End    *time.Time
	Title  *string
	Note   *string
	Color  *string
	// NewPIN replaces the cancel PIN.
	NewPIN *string
}

// UpdateReservationParams edits one confirmed reservation. PIN must match its cancel PIN.
type UpdateReservationParams struct {
	ID      string
	PIN     string
	Changes ReservationChanges
	Actor   Actor
}

// UpdateSeriesParams edits every confirmed occurrence of the series that
// ReservationID belongs to. PIN is checked against that reservation. A new
// Start/End applies to ReservationID exactly; the other occurrences move by the
// same number of days and the same wall-clock offset, keeping their durations.
type UpdateSeriesParams struct {
	ReservationID string
	PIN           string
	Changes       ReservationChanges
	Actor         Actor
}

// UpdateSeriesResult reports how many occurrences were changed.
type UpdateSeriesResult struct {
	SeriesID string
	Count    int
}

// CancelParams identifies the reservation to cancel and proves ownership with its PIN.
type CancelParams struct {
	ID    string
	PIN   string
	Actor Actor
}

// CancelResult lists the reservations that were cancelled.
type CancelResult struct {
	IDs      []string
	SeriesID *string
}

// LockoutPolicy controls the cancel brute-force protection.
type LockoutPolicy struct {
	// Threshold is the number of consecutive wrong PINs that starts a cooldown.
	Threshold int
	// Cooldown is how long cancel attempts are refused once locked.
	Cooldown time.Duration
}

// DefaultLockoutPolicy is applied when a service is built without one.
var DefaultLockoutPolicy = LockoutPolicy{Threshold: 5, Cooldown: 5 * time.Minute}

// DayOptions tunes the day schedule view.
type DayOptions struct {
	// IncludeInternal adds internal notes and series ids for office devices.
	IncludeInternal bool
}

// DaySchedule is everything a grid needs to render one local day.
type DaySchedule struct {
	Date         slot.Date
	Open         string
	Close        string
	SlotMinutes  int
	Slots        []string
	Rooms        []RoomSummary
	Reservations []GridReservation
	Blocks       []GridBlock
}

// RoomSummary is a room as shown on the grid.
type RoomSummary struct {
	ID   string
	Name string
}

// GridReservation is a reservation as shown on the grid. Note and SeriesID are
// only populated for internal views.
type GridReservation struct {
	ID       string
	RoomID   string
	Start    time.Time
	End      time.Time
	Title    string
	Color    string
	Note     string
	SeriesID *string
}

// GridBlock is a block as shown on the grid. A nil RoomID covers every room.
type GridBlock struct {
	ID     string
	RoomID *string
	Start  time.Time
	End    time.Time
	Reason string
}

func toReservation(r persistence.Reservation) Reservation {
	return Reservation{
		ID:                r.ID,
		RoomID:            r.RoomID,
		Start:             r.StartAt,
		End:               r.EndAt,
		Status:            r.Status,
		SeriesID:          r.SeriesID,
		Title:             r.Title,
		Note:              r.NoteInternal,
		Color:             r.Color,
		CancelLockedUntil: r.CancelLockedUntil,
		CreatedByDevice:   r.CreatedByDevice,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}
