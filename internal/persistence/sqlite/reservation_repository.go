package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/room-reservations/internal/persistence"
)

const reservationColumns = `id, room_id, start_at, end_at, status, series_id, title, note_internal, color,
	pin_hash, cancel_fail_count, cancel_locked_until, created_by_device, created_at, updated_at`

// GetReservation retrieves a reservation by ID regardless of status.
func (q *queries) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	if id == "" {
		return persistence.Reservation{}, persistence.ErrNotFound
	}
	row := q.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	reservation, err := scanReservation(row)
	if err != nil {
		return persistence.Reservation{}, q.mapper.MapError(err)
	}
	return reservation, nil
}

// FirstOverlappingReservation returns the earliest confirmed reservation of
// the room intersecting [start, end), skipping excludeID.
func (q *queries) FirstOverlappingReservation(ctx context.Context, roomID string, start, end time.Time, excludeID string) (persistence.Reservation, bool, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE room_id = ?
		  AND status = ?
		  AND start_at < ?
		  AND end_at > ?
		  AND id <> ?
		ORDER BY start_at
		LIMIT 1`,
		roomID,
		string(persistence.StatusConfirmed),
		formatTime(end),
		formatTime(start),
		excludeID,
	)
	reservation, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return persistence.Reservation{}, false, nil
	}
	if err != nil {
		return persistence.Reservation{}, false, q.mapper.MapError(err)
	}
	return reservation, true, nil
}

// ListConfirmedBetween returns confirmed reservations intersecting [start, end).
func (q *queries) ListConfirmedBetween(ctx context.Context, start, end time.Time) ([]persistence.Reservation, error) {
	return q.listReservations(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status = ? AND start_at < ? AND end_at > ?
		ORDER BY room_id, start_at`,
		string(persistence.StatusConfirmed), formatTime(end), formatTime(start),
	)
}

// ListSeries returns the reservations of a series with the given status.
func (q *queries) ListSeries(ctx context.Context, seriesID string, status persistence.ReservationStatus) ([]persistence.Reservation, error) {
	return q.listReservations(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE series_id = ? AND status = ?
		ORDER BY start_at`,
		seriesID, string(status),
	)
}

// InsertReservations inserts every row or fails on the first error. Callers
// run it inside a transaction so a failure leaves nothing behind.
func (q *queries) InsertReservations(ctx context.Context, reservations []persistence.Reservation) error {
	for _, r := range reservations {
		status := r.Status
		if status == "" {
			status = persistence.StatusConfirmed
		}
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO reservations (`+reservationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID,
			r.RoomID,
			formatTime(r.StartAt),
			formatTime(r.EndAt),
			string(status),
			optionalString(r.SeriesID),
			r.Title,
			r.NoteInternal,
			r.Color,
			r.PINHash,
			r.CancelFailCount,
			formatOptionalTime(r.CancelLockedUntil),
			optionalString(r.CreatedByDevice),
			formatTime(r.CreatedAt),
			formatTime(r.UpdatedAt),
		)
		if err != nil {
			return q.mapper.MapError(err)
		}
	}
	return nil
}

// UpdateReservation overwrites the mutable fields of a reservation.
func (q *queries) UpdateReservation(ctx context.Context, r persistence.Reservation) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE reservations
		SET room_id = ?, start_at = ?, end_at = ?, status = ?,
		    title = ?, note_internal = ?, color = ?, pin_hash = ?,
		    cancel_fail_count = ?, cancel_locked_until = ?, updated_at = ?
		WHERE id = ?`,
		r.RoomID,
		formatTime(r.StartAt),
		formatTime(r.EndAt),
		string(r.Status),
		r.Title,
		r.NoteInternal,
		r.Color,
		r.PINHash,
		r.CancelFailCount,
		formatOptionalTime(r.CancelLockedUntil),
		formatTime(r.UpdatedAt),
		r.ID,
	)
	if err != nil {
		return q.mapper.MapError(err)
	}
	return requireAffected(result)
}

func (q *queries) listReservations(ctx context.Context, query string, args ...any) ([]persistence.Reservation, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, q.mapper.MapError(err)
	}
	defer rows.Close()

	var reservations []persistence.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, q.mapper.MapError(err)
		}
		reservations = append(reservations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, q.mapper.MapError(err)
	}
	return reservations, nil
}

func scanReservation(row rowScanner) (persistence.Reservation, error) {
	var (
		r                    persistence.Reservation
		status               string
		startAt, endAt       string
		createdAt, updatedAt string
		seriesID, device     sql.NullString
		lockedUntil          sql.NullString
	)
	if err := row.Scan(
		&r.ID,
		&r.RoomID,
		&startAt,
		&endAt,
		&status,
		&seriesID,
		&r.Title,
		&r.NoteInternal,
		&r.Color,
		&r.PINHash,
		&r.CancelFailCount,
		&lockedUntil,
		&device,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Reservation{}, err
	}

	r.Status = persistence.ReservationStatus(status)
	r.SeriesID = stringPtr(seriesID)
	r.CreatedByDevice = stringPtr(device)

	var err error
	if r.StartAt, err = parseTime(startAt); err != nil {
		return persistence.Reservation{}, err
	}
	if r.EndAt, err = parseTime(endAt); err != nil {
		return persistence.Reservation{}, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Reservation{}, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Reservation{}, err
	}
	if r.CancelLockedUntil, err = parseOptionalTime(lockedUntil); err != nil {
		return persistence.Reservation{}, err
	}
	return r, nil
}
