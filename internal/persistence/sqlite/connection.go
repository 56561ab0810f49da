package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/networking-rounds/internal/persistence"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Config holds SQLite connection settings.
type Config struct {
	// DSN is the database file path. ":memory:" opens a private in-memory
	// database.
	DSN string

	// BusyTimeout sets how long a connection waits for a lock.
	BusyTimeout time.Duration

	// JournalMode sets the SQLite journal mode (WAL, DELETE, ...).
	JournalMode string

	// Synchronous sets the synchronous mode (FULL, NORMAL, OFF).
	Synchronous string

	// MaxOpenConns caps open connections. SQLite serializes writers, so
	// the default is a single connection.
	MaxOpenConns int
}

// DefaultConfig returns settings for a file-backed database at dsn.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:          dsn,
		BusyTimeout:  5 * time.Second,
		JournalMode:  "WAL",
		Synchronous:  "NORMAL",
		MaxOpenConns: 1,
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return errors.New("sqlite: DSN is required")
	}
	if c.BusyTimeout < 0 {
		return errors.New("sqlite: busy timeout must not be negative")
	}
	return nil
}

func (c Config) inMemory() bool {
	return c.DSN == ":memory:"
}

// openDB opens and configures a database handle.
func openDB(config Config) (*sql.DB, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	if !config.inMemory() {
		if err := os.MkdirAll(filepath.Dir(config.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	maxOpen := config.MaxOpenConns
	if maxOpen <= 0 || config.inMemory() {
		// Every connection to ":memory:" is a separate database.
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)

	if err := configure(db, config); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping database: %w", err)
	}
	return db, nil
}

func configure(db *sql.DB, config Config) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", config.BusyTimeout.Milliseconds()),
	}
	if config.JournalMode != "" && !config.inMemory() {
		pragmas = append(pragmas, "PRAGMA journal_mode = "+config.JournalMode)
	}
	if config.Synchronous != "" {
		pragmas = append(pragmas, "PRAGMA synchronous = "+config.Synchronous)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return nil
}

// withTransaction runs fn in a transaction, rolling back when fn fails.
func withTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(fmt.Errorf("begin transaction: %w", err))
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// mapError translates driver errors into persistence errors. Lock and busy
// conditions become ErrUnavailable so the retrying store backs off.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}

	message := err.Error()
	if containsAny(message, []string{"database is locked", "database locked", "SQLITE_BUSY", "database is busy"}) {
		return fmt.Errorf("%w: %v", persistence.ErrUnavailable, err)
	}
	if errors.Is(err, sql.ErrConnDone) || containsAny(message, []string{"sql: database is closed"}) {
		return fmt.Errorf("%w: %v", persistence.ErrUnavailable, err)
	}
	return err
}

func containsAny(s string, substrings []string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
