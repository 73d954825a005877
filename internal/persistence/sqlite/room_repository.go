package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/room-reservations/internal/persistence"
)

const roomColumns = `id, name, sort_order, location, active, created_at, updated_at`

// GetRoom retrieves a room by ID.
func (q *queries) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	if id == "" {
		return persistence.Room{}, persistence.ErrNotFound
	}

	row := q.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
	room, err := scanRoom(row)
	if err != nil {
		return persistence.Room{}, q.mapper.MapError(err)
	}
	return room, nil
}

// ListActiveRooms returns active rooms ordered by sort order then name.
func (q *queries) ListActiveRooms(ctx context.Context) ([]persistence.Room, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE active = 1 ORDER BY sort_order, name`)
	if err != nil {
		return nil, q.mapper.MapError(err)
	}
	defer rows.Close()

	var rooms []persistence.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, q.mapper.MapError(err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, q.mapper.MapError(err)
	}
	return rooms, nil
}

// CreateRoom inserts a room. Timestamps are set from the store clock.
func (s *Store) CreateRoom(ctx context.Context, room persistence.Room) (persistence.Room, error) {
	if room.ID == "" || strings.TrimSpace(room.Name) == "" || room.SortOrder < 0 {
		return persistence.Room{}, persistence.ErrConstraintViolation
	}

	now := s.now().UTC()
	room.CreatedAt = now
	room.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, name, sort_order, location, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		room.ID,
		room.Name,
		room.SortOrder,
		room.Location,
		boolToInt(room.Active),
		formatTime(room.CreatedAt),
		formatTime(room.UpdatedAt),
	)
	if err != nil {
		return persistence.Room{}, s.mapper.MapError(err)
	}
	return room, nil
}

// UpdateRoom overwrites the mutable fields of a room.
func (s *Store) UpdateRoom(ctx context.Context, room persistence.Room) error {
	if room.ID == "" || strings.TrimSpace(room.Name) == "" || room.SortOrder < 0 {
		return persistence.ErrConstraintViolation
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE rooms
		SET name = ?, sort_order = ?, location = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		room.Name,
		room.SortOrder,
		room.Location,
		boolToInt(room.Active),
		formatTime(s.now()),
		room.ID,
	)
	if err != nil {
		return s.mapper.MapError(err)
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (persistence.Room, error) {
	var (
		room                 persistence.Room
		active               int
		createdAt, updatedAt string
	)
	if err := row.Scan(&room.ID, &room.Name, &room.SortOrder, &room.Location, &active, &createdAt, &updatedAt); err != nil {
		return persistence.Room{}, err
	}
	room.Active = active == 1

	var err error
	if room.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Room{}, err
	}
	if room.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Room{}, err
	}
	return room, nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func requireAffected(result rowsAffecter) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
