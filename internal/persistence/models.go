package persistence

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	// StatusConfirmed marks a reservation that occupies its room.
	StatusConfirmed ReservationStatus = "confirmed"
	// StatusCancelled marks a reservation that no longer occupies its room.
	StatusCancelled ReservationStatus = "cancelled"
)

// Room represents a bookable room.
type Room struct {
	ID        string
	Name      string
	SortOrder int
	Location  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Reservation is a booked half-open interval of one room.
type Reservation struct {
	ID                string
	RoomID            string
	StartAt           time.Time
	EndAt             time.Time
	Status            ReservationStatus
	SeriesID          *string
	Title             string
	NoteInternal      string
	Color             string
	PINHash           string
	CancelFailCount   int
	CancelLockedUntil *time.Time
	CreatedByDevice   *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Block is an administrative closure. A nil RoomID closes every room.
type Block struct {
	ID        string
	RoomID    *string
	StartAt   time.Time
	EndAt     time.Time
	Reason    string
	CreatedAt time.Time
}

// AccessDevice is a registered kiosk or office terminal.
type AccessDevice struct {
	ID        string
	Label     string
	KeyHash   string
	Enabled   bool
	CreatedAt time.Time
}

// AuditEntry is an append-only record of a state change.
type AuditEntry struct {
	ID            string
	At            time.Time
	ActorKind     string
	ActorLabel    string
	Action        string
	ReservationID *string
	IP            *string
	Detail        map[string]any
}
