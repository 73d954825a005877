package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/example/room-reservations/internal/persistence"
)

// AppendAuditEntry stores an audit entry. Entries are never updated.
func (q *queries) AppendAuditEntry(ctx context.Context, entry persistence.AuditEntry) error {
	detail := entry.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	encoded, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: encode audit detail: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, at, actor_kind, actor_label, action, reservation_id, ip, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		formatTime(entry.At),
		entry.ActorKind,
		entry.ActorLabel,
		entry.Action,
		optionalString(entry.ReservationID),
		optionalString(entry.IP),
		string(encoded),
	)
	if err != nil {
		return q.mapper.MapError(err)
	}
	return nil
}

// ListAuditEntries returns audit entries in insertion time order, optionally
// restricted to one action.
func (q *queries) ListAuditEntries(ctx context.Context, action string) ([]persistence.AuditEntry, error) {
	query := `SELECT id, at, actor_kind, actor_label, action, reservation_id, ip, detail FROM audit_log`
	var args []any
	if action != "" {
		query += ` WHERE action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY at, rowid`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, q.mapper.MapError(err)
	}
	defer rows.Close()

	var entries []persistence.AuditEntry
	for rows.Next() {
		var (
			entry                 persistence.AuditEntry
			at, detail            string
			reservationID, ipAddr sql.NullString
		)
		if err := rows.Scan(&entry.ID, &at, &entry.ActorKind, &entry.ActorLabel, &entry.Action, &reservationID, &ipAddr, &detail); err != nil {
			return nil, q.mapper.MapError(err)
		}
		if entry.At, err = parseTime(at); err != nil {
			return nil, err
		}
		entry.ReservationID = stringPtr(reservationID)
		entry.IP = stringPtr(ipAddr)
		if err := json.Unmarshal([]byte(detail), &entry.Detail); err != nil {
			return nil, fmt.Errorf("sqlite: decode audit detail: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, q.mapper.MapError(err)
	}
	return entries, nil
}
