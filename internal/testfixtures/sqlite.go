package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/room-reservations/internal/persistence/sqlite"
)

// SQLiteHarness provides a migrated, file backed store for integration-style
// tests. Each harness owns its own database file.
type SQLiteHarness struct {
	Store *sqlite.Store
	Path  string

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. The store stamps rows with clock; a nil clock uses
// the wall clock. Callers may invoke Close, but the helper also registers a
// cleanup callback with tb.
func NewSQLiteHarness(tb testing.TB, clock *Clock) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "reservations.db")

	store, err := sqlite.Open(sqlite.DefaultConfig(path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if clock != nil {
		store = store.WithClock(clock.NowFunc())
	}

	if err := store.Migrate(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Store: store,
		Path:  path,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedRoom inserts fixture and fails the test on error.
func (h *SQLiteHarness) SeedRoom(tb testing.TB, fixture RoomFixture) {
	tb.Helper()
	if _, err := h.Store.CreateRoom(context.Background(), fixture.Persistence()); err != nil {
		tb.Fatalf("failed to seed room %s: %v", fixture.ID, err)
	}
}

// SeedBlock inserts fixture and fails the test on error.
func (h *SQLiteHarness) SeedBlock(tb testing.TB, fixture BlockFixture) {
	tb.Helper()
	if _, err := h.Store.CreateBlock(context.Background(), fixture.Persistence()); err != nil {
		tb.Fatalf("failed to seed block %s: %v", fixture.ID, err)
	}
}
