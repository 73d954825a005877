package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/room-reservations/internal/persistence"
)

const blockColumns = `id, room_id, start_at, end_at, reason, created_at`

// FirstOverlappingBlock returns the earliest block covering the room or the
// whole facility that intersects [start, end).
func (q *queries) FirstOverlappingBlock(ctx context.Context, roomID string, start, end time.Time) (persistence.Block, bool, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+blockColumns+`
		FROM blocks
		WHERE (room_id = ? OR room_id IS NULL)
		  AND start_at < ?
		  AND end_at > ?
		ORDER BY start_at
		LIMIT 1`,
		roomID,
		formatTime(end),
		formatTime(start),
	)
	block, err := scanBlock(row)
	if err == sql.ErrNoRows {
		return persistence.Block{}, false, nil
	}
	if err != nil {
		return persistence.Block{}, false, q.mapper.MapError(err)
	}
	return block, true, nil
}

// ListBlocksBetween returns every block intersecting [start, end).
func (q *queries) ListBlocksBetween(ctx context.Context, start, end time.Time) ([]persistence.Block, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+blockColumns+`
		FROM blocks
		WHERE start_at < ? AND end_at > ?
		ORDER BY start_at, id`,
		formatTime(end),
		formatTime(start),
	)
	if err != nil {
		return nil, q.mapper.MapError(err)
	}
	defer rows.Close()

	var blocks []persistence.Block
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, q.mapper.MapError(err)
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, q.mapper.MapError(err)
	}
	return blocks, nil
}

// CreateBlock inserts an administrative block.
func (s *Store) CreateBlock(ctx context.Context, block persistence.Block) (persistence.Block, error) {
	if block.ID == "" || !block.StartAt.Before(block.EndAt) {
		return persistence.Block{}, persistence.ErrConstraintViolation
	}
	block.CreatedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocks (`+blockColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		block.ID,
		optionalString(block.RoomID),
		formatTime(block.StartAt),
		formatTime(block.EndAt),
		block.Reason,
		formatTime(block.CreatedAt),
	)
	if err != nil {
		return persistence.Block{}, s.mapper.MapError(err)
	}
	return block, nil
}

// DeleteBlock removes a block.
func (s *Store) DeleteBlock(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE id = ?`, id)
	if err != nil {
		return s.mapper.MapError(err)
	}
	return requireAffected(result)
}

func scanBlock(row rowScanner) (persistence.Block, error) {
	var (
		block                     persistence.Block
		roomID                    sql.NullString
		startAt, endAt, createdAt string
	)
	if err := row.Scan(&block.ID, &roomID, &startAt, &endAt, &block.Reason, &createdAt); err != nil {
		return persistence.Block{}, err
	}
	block.RoomID = stringPtr(roomID)

	var err error
	if block.StartAt, err = parseTime(startAt); err != nil {
		return persistence.Block{}, err
	}
	if block.EndAt, err = parseTime(endAt); err != nil {
		return persistence.Block{}, err
	}
	if block.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Block{}, err
	}
	return block, nil
}
