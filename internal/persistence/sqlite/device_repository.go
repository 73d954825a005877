package sqlite

import (
	"context"
	"strings"

	"github.com/example/room-reservations/internal/persistence"
)

// ListEnabledDevices returns every enabled access device ordered by label.
func (q *queries) ListEnabledDevices(ctx context.Context) ([]persistence.AccessDevice, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, label, key_hash, enabled, created_at
		FROM access_devices
		WHERE enabled = 1
		ORDER BY label`)
	if err != nil {
		return nil, q.mapper.MapError(err)
	}
	defer rows.Close()

	var devices []persistence.AccessDevice
	for rows.Next() {
		var (
			device    persistence.AccessDevice
			enabled   int
			createdAt string
		)
		if err := rows.Scan(&device.ID, &device.Label, &device.KeyHash, &enabled, &createdAt); err != nil {
			return nil, q.mapper.MapError(err)
		}
		device.Enabled = enabled == 1
		if device.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, q.mapper.MapError(err)
	}
	return devices, nil
}

// CreateDevice registers an access device. KeyHash must already be hashed.
func (s *Store) CreateDevice(ctx context.Context, device persistence.AccessDevice) (persistence.AccessDevice, error) {
	if device.ID == "" || strings.TrimSpace(device.Label) == "" || device.KeyHash == "" {
		return persistence.AccessDevice{}, persistence.ErrConstraintViolation
	}
	device.CreatedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_devices (id, label, key_hash, enabled, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		device.ID,
		device.Label,
		device.KeyHash,
		boolToInt(device.Enabled),
		formatTime(device.CreatedAt),
	)
	if err != nil {
		return persistence.AccessDevice{}, s.mapper.MapError(err)
	}
	return device, nil
}
