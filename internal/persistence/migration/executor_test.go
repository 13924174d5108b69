package migration

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunMigrations_SQLite(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	files := fstest.MapFS{
		"001_initial_schema.sql": {Data: []byte("CREATE TABLE events (id TEXT PRIMARY KEY);\nCREATE TABLE ranges (id TEXT PRIMARY KEY, event_id TEXT);")},
		"002_add_index.sql":      {Data: []byte("CREATE INDEX idx_ranges_event ON ranges(event_id);")},
	}

	manager := NewMigrationManager(NewFileScanner(files), NewExecutor(db, QuestionPlaceholder), nil)
	if err := manager.RunMigrations(ctx); err != nil {
		t.Fatalf("RunMigrations returned error: %v", err)
	}
	// Second run is a no-op.
	if err := manager.RunMigrations(ctx); err != nil {
		t.Fatalf("second RunMigrations returned error: %v", err)
	}

	status, err := manager.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus returned error: %v", err)
	}
	if status.CurrentVersion != "002" || status.PendingCount != 0 {
		t.Fatalf("unexpected status %+v", status)
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO ranges (id, event_id) VALUES ('r1', 'e1')"); err != nil {
		t.Fatalf("schema not applied: %v", err)
	}
}

func TestExecuteMigration_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	executor := NewExecutor(db, QuestionPlaceholder)

	if err := executor.InitializeVersionTable(ctx); err != nil {
		t.Fatalf("InitializeVersionTable returned error: %v", err)
	}

	_, err := executor.ExecuteMigration(ctx, Migration{
		Version: "001",
		SQL:     "CREATE TABLE a (id TEXT);\nINSERT INTO missing VALUES (1);",
	})
	if err == nil {
		t.Fatal("expected error")
	}

	applied, err := executor.GetAppliedVersions(ctx)
	if err != nil {
		t.Fatalf("GetAppliedVersions returned error: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no applied versions, got %+v", applied)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'a'").Scan(&count); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if count != 0 {
		t.Fatal("table a survived the rollback")
	}
}

func TestPlaceholders(t *testing.T) {
	if QuestionPlaceholder(3) != "?" {
		t.Error("question placeholder")
	}
	if DollarPlaceholder(3) != "$3" {
		t.Error("dollar placeholder")
	}
}
