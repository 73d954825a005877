package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/room-reservations/internal/audit"
	"github.com/example/room-reservations/internal/persistence"
	"github.com/example/room-reservations/internal/scheduler"
)

// memStore is a transactional in-memory persistence.Store. Each transaction
// works on a copy of the state that replaces it only on commit.
type memStore struct {
	mu    sync.Mutex
	state memState

	beginErr  error
	commits   int
	rollbacks int
}

type memState struct {
	rooms        map[string]persistence.Room
	reservations map[string]persistence.Reservation
	blocks       map[string]persistence.Block
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		rooms:        map[string]persistence.Room{},
		reservations: map[string]persistence.Reservation{},
		blocks:       map[string]persistence.Block{},
	}}
}

func (s memState) clone() memState {
	out := memState{
		rooms:        make(map[string]persistence.Room, len(s.rooms)),
		reservations: make(map[string]persistence.Reservation, len(s.reservations)),
		blocks:       make(map[string]persistence.Block, len(s.blocks)),
	}
	for k, v := range s.rooms {
		out.rooms[k] = v
	}
	for k, v := range s.reservations {
		out.reservations[k] = v
	}
	for k, v := range s.blocks {
		out.blocks[k] = v
	}
	return out
}

func (m *memStore) addRoom(room persistence.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.rooms[room.ID] = room
}

func (m *memStore) addBlock(block persistence.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.blocks[block.ID] = block
}

func (m *memStore) addReservation(r persistence.Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.reservations[r.ID] = r
}

func (m *memStore) reservation(id string) (persistence.Reservation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.state.reservations[id]
	return r, ok
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.reservations)
}

func (m *memStore) WithinTransaction(ctx context.Context, fn func(tx persistence.Tx) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beginErr != nil {
		return m.beginErr
	}

	tx := &memTx{state: m.state.clone()}
	defer func() {
		if p := recover(); p != nil {
			m.rollbacks++
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		m.rollbacks++
		return err
	}
	m.state = tx.state
	m.commits++
	return nil
}

func (m *memStore) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{state: m.state}).GetRoom(ctx, id)
}

func (m *memStore) ListActiveRooms(ctx context.Context) ([]persistence.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{state: m.state}).ListActiveRooms(ctx)
}

func (m *memStore) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{state: m.state}).GetReservation(ctx, id)
}

func (m *memStore) ListConfirmedBetween(ctx context.Context, start, end time.Time) ([]persistence.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{state: m.state}).ListConfirmedBetween(ctx, start, end)
}

func (m *memStore) ListBlocksBetween(ctx context.Context, start, end time.Time) ([]persistence.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{state: m.state}).ListBlocksBetween(ctx, start, end)
}

type memTx struct {
	state memState
}

func (t *memTx) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	room, ok := t.state.rooms[id]
	if !ok {
		return persistence.Room{}, persistence.ErrNotFound
	}
	return room, nil
}

func (t *memTx) ListActiveRooms(ctx context.Context) ([]persistence.Room, error) {
	rooms := make([]persistence.Room, 0, len(t.state.rooms))
	for _, room := range t.state.rooms {
		if room.Active {
			rooms = append(rooms, room)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].SortOrder != rooms[j].SortOrder {
			return rooms[i].SortOrder < rooms[j].SortOrder
		}
		return rooms[i].Name < rooms[j].Name
	})
	return rooms, nil
}

func (t *memTx) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	r, ok := t.state.reservations[id]
	if !ok {
		return persistence.Reservation{}, persistence.ErrNotFound
	}
	return r, nil
}

func (t *memTx) ListConfirmedBetween(ctx context.Context, start, end time.Time) ([]persistence.Reservation, error) {
	var out []persistence.Reservation
	for _, r := range t.state.reservations {
		if r.Status == persistence.StatusConfirmed && scheduler.Overlaps(r.StartAt, r.EndAt, start, end) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoomID != out[j].RoomID {
			return out[i].RoomID < out[j].RoomID
		}
		return out[i].StartAt.Before(out[j].StartAt)
	})
	return out, nil
}

func (t *memTx) ListBlocksBetween(ctx context.Context, start, end time.Time) ([]persistence.Block, error) {
	var out []persistence.Block
	for _, b := range t.state.blocks {
		if scheduler.Overlaps(b.StartAt, b.EndAt, start, end) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (t *memTx) FirstOverlappingBlock(ctx context.Context, roomID string, start, end time.Time) (persistence.Block, bool, error) {
	blocks, _ := t.ListBlocksBetween(ctx, start, end)
	for _, b := range blocks {
		if b.RoomID == nil || *b.RoomID == roomID {
			return b, true, nil
		}
	}
	return persistence.Block{}, false, nil
}

func (t *memTx) FirstOverlappingReservation(ctx context.Context, roomID string, start, end time.Time, excludeID string) (persistence.Reservation, bool, error) {
	reservations, _ := t.ListConfirmedBetween(ctx, start, end)
	for _, r := range reservations {
		if r.RoomID == roomID && r.ID != excludeID {
			return r, true, nil
		}
	}
	return persistence.Reservation{}, false, nil
}

func (t *memTx) InsertReservations(ctx context.Context, reservations []persistence.Reservation) error {
	for _, r := range reservations {
		if _, ok := t.state.rooms[r.RoomID]; !ok {
			return fmt.Errorf("%w: unknown room %s", persistence.ErrConstraintViolation, r.RoomID)
		}
		if _, ok := t.state.reservations[r.ID]; ok {
			return fmt.Errorf("%w: reservation %s", persistence.ErrDuplicate, r.ID)
		}
		for _, existing := range t.state.reservations {
			if existing.Status == persistence.StatusConfirmed && existing.RoomID == r.RoomID && existing.StartAt.Equal(r.StartAt) {
				return fmt.Errorf("%w: room %s already booked at %s", persistence.ErrDuplicate, r.RoomID, r.StartAt)
			}
		}
		t.state.reservations[r.ID] = r
	}
	return nil
}

func (t *memTx) UpdateReservation(ctx context.Context, r persistence.Reservation) error {
	if _, ok := t.state.reservations[r.ID]; !ok {
		return persistence.ErrNotFound
	}
	t.state.reservations[r.ID] = r
	return nil
}

func (t *memTx) ListSeries(ctx context.Context, seriesID string, status persistence.ReservationStatus) ([]persistence.Reservation, error) {
	var out []persistence.Reservation
	for _, r := range t.state.reservations {
		if r.SeriesID != nil && *r.SeriesID == seriesID && r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

// recordingEmitter keeps every event it receives.
type recordingEmitter struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (r *recordingEmitter) Emit(ctx context.Context, event audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingEmitter) actions() []audit.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Action, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

func (r *recordingEmitter) last() audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

var (
	_ persistence.Store = (*memStore)(nil)
	_ persistence.Tx    = (*memTx)(nil)
)
