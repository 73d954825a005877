package testfixtures

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/example/room-reservations/internal/application"
	"github.com/example/room-reservations/internal/persistence"
	"github.com/example/room-reservations/internal/slot"
)

var (
	roomCounter        uint64
	blockCounter       uint64
	reservationCounter uint64
)

// referenceTime is Monday 2024-01-15 09:00 in America/Chicago.
var referenceTime = time.Date(2024, time.January, 15, 15, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Chicago returns the facility calendar used throughout the tests.
func Chicago(tb testing.TB) *slot.Calendar {
	tb.Helper()
	cal, err := slot.LoadCalendar(slot.DefaultTimezone)
	if err != nil {
		tb.Fatalf("load calendar: %v", err)
	}
	return cal
}

// At returns the instant of a local wall-clock time on cal.
func At(cal *slot.Calendar, year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, cal.Location()).UTC()
}

// FastHasher returns a PIN hasher with minimal argon2 cost for tests.
func FastHasher() *application.Argon2idHasher {
	return application.NewArgon2idHasher(application.Argon2idParams{
		Memory:      64,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  8,
		KeyLength:   16,
	})
}

// ----------------------------- Room fixtures -----------------------------

// RoomFixture represents a deterministic bookable room.
type RoomFixture struct {
	ID        string
	Name      string
	SortOrder int
	Location  string
	Active    bool
}

// RoomOption configures the generated room fixture.
type RoomOption func(*RoomFixture)

// NewRoomFixture returns an active room fixture with optional overrides.
func NewRoomFixture(opts ...RoomOption) RoomFixture {
	idx := atomic.AddUint64(&roomCounter, 1)
	fixture := RoomFixture{
		ID:        fmt.Sprintf("room-%03d", idx),
		Name:      fmt.Sprintf("Room %03d", idx),
		SortOrder: int(idx),
		Location:  "Main Office",
		Active:    true,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRoomID overrides the generated room ID.
func WithRoomID(id string) RoomOption {
	return func(f *RoomFixture) {
		f.ID = id
	}
}

// WithRoomName overrides the generated room name.
func WithRoomName(name string) RoomOption {
	return func(f *RoomFixture) {
		f.Name = name
	}
}

// WithRoomSortOrder overrides the grid position.
func WithRoomSortOrder(order int) RoomOption {
	return func(f *RoomFixture) {
		f.SortOrder = order
	}
}

// WithRoomInactive marks the room as hidden from the grid.
func WithRoomInactive() RoomOption {
	return func(f *RoomFixture) {
		f.Active = false
	}
}

// Persistence returns the fixture as a persistence.Room value.
func (f RoomFixture) Persistence() persistence.Room {
	return persistence.Room{
		ID:        f.ID,
		Name:      f.Name,
		SortOrder: f.SortOrder,
		Location:  f.Location,
		Active:    f.Active,
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
}

// Input returns the fixture as an application.RoomInput.
func (f RoomFixture) Input() application.RoomInput {
	return application.RoomInput{
		Name:      f.Name,
		Location:  f.Location,
		SortOrder: f.SortOrder,
		Active:    f.Active,
	}
}

// ----------------------------- Block fixtures ----------------------------

// BlockFixture represents an administrative block. A nil RoomID covers every room.
type BlockFixture struct {
	ID     string
	RoomID *string
	Start  time.Time
	End    time.Time
	Reason string
}

// BlockOption configures the generated block fixture.
type BlockOption func(*BlockFixture)

// NewBlockFixture returns a one hour facility-wide block starting at ReferenceTime.
func NewBlockFixture(opts ...BlockOption) BlockFixture {
	idx := atomic.AddUint64(&blockCounter, 1)
	fixture := BlockFixture{
		ID:     fmt.Sprintf("block-%03d", idx),
		Start:  referenceTime,
		End:    referenceTime.Add(time.Hour),
		Reason: "maintenance",
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBlockID overrides the generated block ID.
func WithBlockID(id string) BlockOption {
	return func(f *BlockFixture) {
		f.ID = id
	}
}

// WithBlockRoom limits the block to one room.
func WithBlockRoom(roomID string) BlockOption {
	return func(f *BlockFixture) {
		value := roomID
		f.RoomID = &value
	}
}

// WithBlockWindow overrides the blocked range.
func WithBlockWindow(start, end time.Time) BlockOption {
	return func(f *BlockFixture) {
		f.Start = start
		f.End = end
	}
}

// Persistence returns the fixture as a persistence.Block value.
func (f BlockFixture) Persistence() persistence.Block {
	return persistence.Block{
		ID:      f.ID,
		RoomID:  copyStringPtr(f.RoomID),
		StartAt: f.Start,
		EndAt:   f.End,
		Reason:  f.Reason,
	}
}

// -------------------------- Reservation fixtures -------------------------

// ReservationFixture represents a stored reservation row.
type ReservationFixture struct {
	ID                string
	RoomID            string
	Start             time.Time
	End               time.Time
	Status            persistence.ReservationStatus
	SeriesID          *string
	Title             string
	Note              string
	PINHash           string
	CancelFailCount   int
	CancelLockedUntil *time.Time
}

// ReservationOption configures the generated reservation fixture.
type ReservationOption func(*ReservationFixture)

// NewReservationFixture returns a confirmed one hour reservation of roomID at ReferenceTime.
func NewReservationFixture(roomID string, opts ...ReservationOption) ReservationFixture {
	idx := atomic.AddUint64(&reservationCounter, 1)
	fixture := ReservationFixture{
		ID:      fmt.Sprintf("reservation-%03d", idx),
		RoomID:  roomID,
		Start:   referenceTime,
		End:     referenceTime.Add(time.Hour),
		Status:  persistence.StatusConfirmed,
		Title:   fmt.Sprintf("Meeting %03d", idx),
		PINHash: "unset",
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithReservationID overrides the generated reservation ID.
func WithReservationID(id string) ReservationOption {
	return func(f *ReservationFixture) {
		f.ID = id
	}
}

// WithReservationWindow overrides the reserved range.
func WithReservationWindow(start, end time.Time) ReservationOption {
	return func(f *ReservationFixture) {
		f.Start = start
		f.End = end
	}
}

// WithReservationSeries attaches the fixture to a series.
func WithReservationSeries(seriesID string) ReservationOption {
	return func(f *ReservationFixture) {
		value := seriesID
		f.SeriesID = &value
	}
}

// WithReservationStatus overrides the status.
func WithReservationStatus(status persistence.ReservationStatus) ReservationOption {
	return func(f *ReservationFixture) {
		f.Status = status
	}
}

// WithReservationPINHash stores an already hashed PIN.
func WithReservationPINHash(hash string) ReservationOption {
	return func(f *ReservationFixture) {
		f.PINHash = hash
	}
}

// WithReservationLock sets the cancel lockout state.
func WithReservationLock(failCount int, lockedUntil *time.Time) ReservationOption {
	return func(f *ReservationFixture) {
		f.CancelFailCount = failCount
		f.CancelLockedUntil = lockedUntil
	}
}

// Persistence returns the fixture as a persistence.Reservation value.
func (f ReservationFixture) Persistence() persistence.Reservation {
	return persistence.Reservation{
		ID:                f.ID,
		RoomID:            f.RoomID,
		StartAt:           f.Start,
		EndAt:             f.End,
		Status:            f.Status,
		SeriesID:          copyStringPtr(f.SeriesID),
		Title:             f.Title,
		NoteInternal:      f.Note,
		Color:             application.DefaultColor,
		PINHash:           f.PINHash,
		CancelFailCount:   f.CancelFailCount,
		CancelLockedUntil: f.CancelLockedUntil,
		CreatedAt:         referenceTime,
		UpdatedAt:         referenceTime,
	}
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
