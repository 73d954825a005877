// Package sqlite implements the persistence interfaces on top of SQLite using
// the pure Go modernc.org/sqlite driver.
//
// Instants are stored as fixed-width UTC text so that SQL string comparison
// orders them chronologically.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/room-reservations/internal/persistence"
)

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement; it runs either on the pool or inside a transaction.
type queries struct {
	db     dbtx
	mapper *ErrorMapper
}

// Store is the SQLite backed persistence.Store.
type Store struct {
	*queries
	pool *ConnectionPool
	now  func() time.Time
}

var (
	_ persistence.Store              = (*Store)(nil)
	_ persistence.DeviceRepository   = (*Store)(nil)
	_ persistence.AuditRepository    = (*Store)(nil)
	_ persistence.FacilityRepository = (*Store)(nil)
	_ persistence.Tx                 = (*queries)(nil)
)

// Open connects to the database described by cfg.
func Open(cfg Config) (*Store, error) {
	pool, err := NewConnectionPool(cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(pool), nil
}

// NewStore builds a Store on an existing pool.
func NewStore(pool *ConnectionPool) *Store {
	return &Store{
		queries: &queries{db: pool.db, mapper: pool.mapper},
		pool:    pool,
		now:     time.Now,
	}
}

// WithClock overrides the clock used for admin-side timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// Pool exposes the underlying connection pool.
func (s *Store) Pool() *ConnectionPool {
	return s.pool
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate brings the schema up to date.
func (s *Store) Migrate(ctx context.Context, logger *slog.Logger) error {
	return s.pool.Migrate(ctx, logger)
}

// WithinTransaction runs fn inside one immediate transaction.
func (s *Store) WithinTransaction(ctx context.Context, fn func(tx persistence.Tx) error) error {
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return fn(&queries{db: tx, mapper: s.mapper})
	})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse stored time %q: %w", value, err)
	}
	return t.UTC(), nil
}

func parseOptionalTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optionalString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
