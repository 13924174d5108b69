package migration

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestFileScanner_ScanMigrations(t *testing.T) {
	tests := []struct {
		name          string
		files         fstest.MapFS
		expectedOrder []string
		expectedErr   error
	}{
		{
			name: "orders files numerically",
			files: fstest.MapFS{
				"010_add_indexes.sql":    {Data: []byte("CREATE INDEX idx_a ON a(id);")},
				"002_add_ranges.sql":     {Data: []byte("CREATE TABLE b (id TEXT PRIMARY KEY);")},
				"001_initial_schema.sql": {Data: []byte("CREATE TABLE a (id TEXT PRIMARY KEY);")},
			},
			expectedOrder: []string{"001", "002", "010"},
		},
		{
			name: "ignores non-SQL files and directories",
			files: fstest.MapFS{
				"001_initial_schema.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
				"README.md":              {Data: []byte("# notes")},
				"nested/002_skip.sql":    {Data: []byte("CREATE TABLE b (id TEXT);")},
			},
			expectedOrder: []string{"001"},
		},
		{
			name:          "empty directory",
			files:         fstest.MapFS{},
			expectedOrder: nil,
		},
		{
			name: "rejects malformed file name",
			files: fstest.MapFS{
				"initial.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
			},
			expectedErr: ErrInvalidMigrationFile,
		},
		{
			name: "rejects duplicate versions",
			files: fstest.MapFS{
				"001_a.sql":  {Data: []byte("CREATE TABLE a (id TEXT);")},
				"0001_b.sql": {Data: []byte("CREATE TABLE b (id TEXT);")},
				"001_c.sql":  {Data: []byte("CREATE TABLE c (id TEXT);")},
			},
			expectedErr: ErrDuplicateVersion,
		},
		{
			name: "rejects comment-only file",
			files: fstest.MapFS{
				"001_empty.sql": {Data: []byte("-- nothing here\n")},
			},
			expectedErr: ErrInvalidMigrationFile,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			migrations, err := NewFileScanner(tc.files).ScanMigrations()
			if tc.expectedErr != nil {
				if !errors.Is(err, tc.expectedErr) {
					t.Fatalf("expected %v, got %v", tc.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ScanMigrations returned error: %v", err)
			}
			if len(migrations) != len(tc.expectedOrder) {
				t.Fatalf("expected %d migrations, got %d", len(tc.expectedOrder), len(migrations))
			}
			for i, version := range tc.expectedOrder {
				if migrations[i].Version != version {
					t.Errorf("position %d: expected version %s, got %s", i, version, migrations[i].Version)
				}
				if migrations[i].Checksum == "" {
					t.Errorf("position %d: checksum not computed", i)
				}
			}
		})
	}
}

func TestFileScanner_Description(t *testing.T) {
	files := fstest.MapFS{
		"001_initial_schema.sql": {Data: []byte("-- Migration: 001\n-- Description: Create events table\nCREATE TABLE events (id TEXT);")},
		"002_add_members.sql":    {Data: []byte("CREATE TABLE members (id TEXT);")},
	}

	migrations, err := NewFileScanner(files).ScanMigrations()
	if err != nil {
		t.Fatalf("ScanMigrations returned error: %v", err)
	}
	if migrations[0].Description != "Create events table" {
		t.Errorf("expected description from comment, got %q", migrations[0].Description)
	}
	if migrations[1].Description != "add members" {
		t.Errorf("expected description from file name, got %q", migrations[1].Description)
	}
}

func TestSplitStatements(t *testing.T) {
	content := `
-- Description: two tables
CREATE TABLE a (
	id TEXT PRIMARY KEY
);

-- trailing comment
CREATE TABLE b (id TEXT);
`
	statements := splitStatements(content)
	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(statements), statements)
	}
	if statements[1] != "CREATE TABLE b (id TEXT)" {
		t.Errorf("unexpected second statement %q", statements[1])
	}
}
