package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/networking-rounds/internal/persistence"
	"github.com/example/networking-rounds/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite store
// for integration-style persistence tests.
type SQLiteHarness struct {
	Store      *sqlite.Store
	Repository *persistence.Repository

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
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "rounds.db")

	store, err := sqlite.Open(sqlite.DefaultConfig(path))
	if err != nil {
		tb.Fatalf("failed to open store: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate store: %v", err)
	}

	harness := &SQLiteHarness{
		Store:      store,
		Repository: persistence.NewRepository(store),
		cleanup: func() {
			_ = store.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}

// SeedSessions stores session fixtures through the repository.
func (h *SQLiteHarness) SeedSessions(tb testing.TB, sessions ...SessionFixture) {
	tb.Helper()
	for _, session := range sessions {
		if err := h.Repository.PutSession(context.Background(), session.Persistence()); err != nil {
			tb.Fatalf("failed to seed session %s: %v", session.ID, err)
		}
	}
}

// SeedRegistrations stores registration fixtures through the repository.
func (h *SQLiteHarness) SeedRegistrations(tb testing.TB, registrations ...RegistrationFixture) {
	tb.Helper()
	for _, registration := range registrations {
		if err := h.Repository.PutRegistration(context.Background(), registration.Persistence()); err != nil {
			tb.Fatalf("failed to seed registration %s: %v", registration.ID(), err)
		}
	}
}
