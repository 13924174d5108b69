package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/availability-scheduler/internal/persistence/postgres"
	"github.com/example/availability-scheduler/internal/persistence/sqlite"
	"github.com/example/availability-scheduler/internal/persistence/sqlstore"
)

// PostgresDSNEnv names the variable that enables PostgreSQL backed tests.
const PostgresDSNEnv = "SCHEDULER_TEST_POSTGRES_DSN"

// SQLiteHarness provides a migrated SQLite store in a temporary file.
type SQLiteHarness struct {
	Storage *sqlite.Storage
	Path    string

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens a fresh database under tb.TempDir. The harness is
// closed automatically when the test ends.
func NewSQLiteHarness(tb testing.TB, opts ...sqlstore.Option) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "scheduler.db")
	storage, err := sqlite.Open(context.Background(), sqlite.TempFileTestConfig(path), discardLogger(), opts...)
	if err != nil {
		tb.Fatalf("failed to open sqlite storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage: storage,
		Path:    path,
		cleanup: func() { _ = storage.Close() },
	}
	tb.Cleanup(harness.Close)
	return harness
}

// NewPostgresStorage opens the database named by SCHEDULER_TEST_POSTGRES_DSN
// and empties every scheduling table. The test is skipped when the variable
// is unset.
func NewPostgresStorage(tb testing.TB, opts ...sqlstore.Option) *postgres.Storage {
	tb.Helper()

	dsn := strings.TrimSpace(os.Getenv(PostgresDSNEnv))
	if dsn == "" {
		tb.Skipf("%s not set", PostgresDSNEnv)
	}

	ctx := context.Background()
	storage, err := postgres.Open(ctx, postgres.DefaultConfig(dsn), discardLogger(), opts...)
	if err != nil {
		tb.Fatalf("failed to open postgres storage: %v", err)
	}
	tb.Cleanup(func() { _ = storage.Close() })

	if _, err := storage.DB().ExecContext(ctx,
		`TRUNCATE suggestions, availability_submissions, availability_ranges, group_members, events`); err != nil {
		tb.Fatalf("failed to reset postgres tables: %v", err)
	}
	return storage
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
