package sqlite

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const memoryDSN = ":memory:"

// Config holds SQLite connection settings.
type Config struct {
	// Path is the database file path, or ":memory:".
	Path string

	// BusyTimeout sets how long a connection waits for a competing writer.
	BusyTimeout time.Duration

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.)
	JournalMode string

	// Synchronous sets the synchronous mode (FULL, NORMAL, OFF)
	Synchronous string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns the settings used by the service for a database file.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		BusyTimeout: 5 * time.Second,
		JournalMode: "WAL",
		Synchronous: "NORMAL",
	}
}

// Validate reports configuration that cannot produce a usable connection.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("sqlite: database path is required")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy timeout must not be negative")
	}
	switch strings.ToUpper(c.JournalMode) {
	case "", "WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "OFF":
	default:
		return fmt.Errorf("sqlite: unsupported journal mode %q", c.JournalMode)
	}
	switch strings.ToUpper(c.Synchronous) {
	case "", "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		return fmt.Errorf("sqlite: unsupported synchronous mode %q", c.Synchronous)
	}
	return nil
}

// DSN renders the driver connection string. Pragmas travel in the DSN so
// every pooled connection gets them, and _txlock=immediate makes BEGIN take
// the write lock.
func (c Config) DSN() string {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	if c.JournalMode != "" && c.Path != memoryDSN {
		params.Add("_pragma", fmt.Sprintf("journal_mode(%s)", strings.ToUpper(c.JournalMode)))
	}
	if c.Synchronous != "" {
		params.Add("_pragma", fmt.Sprintf("synchronous(%s)", strings.ToUpper(c.Synchronous)))
	}
	params.Set("_txlock", "immediate")
	return c.Path + "?" + params.Encode()
}

// ensureDirectory creates the parent directory of a file database.
func (c Config) ensureDirectory() error {
	if c.Path == memoryDSN {
		return nil
	}
	dir := filepath.Dir(c.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("sqlite: create database directory %s: %w", dir, err)
	}
	return nil
}
