// Package sqlite opens the SQLite backed scheduling store.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/example/availability-scheduler/internal/persistence/migration"
	"github.com/example/availability-scheduler/internal/persistence/sqlstore"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Storage is a migrated SQLite database exposed through sqlstore.
type Storage struct {
	*sqlstore.Store
}

// Open connects to the database described by cfg and applies pending migrations.
func Open(ctx context.Context, cfg Config, logger *slog.Logger, opts ...sqlstore.Option) (*Storage, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	migrations, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: load migrations: %w", err)
	}

	manager := migration.NewMigrationManager(
		migration.NewFileScanner(migrations),
		migration.NewExecutor(db, migration.QuestionPlaceholder),
		logger,
	)
	if err := manager.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	return &Storage{Store: sqlstore.New(db, Dialect{}, opts...)}, nil
}

// Close closes the underlying database.
func (s *Storage) Close() error {
	return s.DB().Close()
}
