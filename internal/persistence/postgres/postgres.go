// Package postgres opens the PostgreSQL backed scheduling store. Event
// transactions lock the event row with SELECT ... FOR UPDATE, so submissions
// for different events never wait on each other.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/example/availability-scheduler/internal/persistence"
	"github.com/example/availability-scheduler/internal/persistence/migration"
	"github.com/example/availability-scheduler/internal/persistence/sqlstore"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Config holds PostgreSQL connection settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a configuration with pool limits suited to a single service instance.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             strings.TrimSpace(dsn),
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Storage is a migrated PostgreSQL database exposed through sqlstore.
type Storage struct {
	*sqlstore.Store
}

// Open connects, pings and applies pending migrations.
func Open(ctx context.Context, cfg Config, logger *slog.Logger, opts ...sqlstore.Option) (*Storage, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: DSN cannot be empty")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping database: %w", err)
	}

	migrations, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: load migrations: %w", err)
	}

	manager := migration.NewMigrationManager(
		migration.NewFileScanner(migrations),
		migration.NewExecutor(db, migration.DollarPlaceholder),
		logger,
	)
	if err := manager.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return &Storage{Store: sqlstore.New(db, Dialect{}, opts...)}, nil
}

// Close closes the underlying database.
func (s *Storage) Close() error {
	return s.DB().Close()
}

// Dialect adapts sqlstore to PostgreSQL.
type Dialect struct{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) Rebind(query string) string { return sqlstore.RebindDollar(query) }

func (Dialect) LockEvent(ctx context.Context, tx *sql.Tx, eventID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: lock event %s: %w", eventID, Dialect{}.MapError(err))
	}
	return nil
}

func (Dialect) TimeValue(t time.Time) any {
	return t.UTC()
}

// PostgreSQL error codes, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeNotNullViolation     = "23502"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// MapError maps *pq.Error codes to persistence layer errors
func (Dialect) MapError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch string(pqErr.Code) {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %v", persistence.ErrForeignKeyViolation, err)
	case codeCheckViolation, codeNotNullViolation:
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return fmt.Errorf("%w: %v", persistence.ErrConflict, err)
	}
	return err
}

var _ sqlstore.Dialect = Dialect{}
