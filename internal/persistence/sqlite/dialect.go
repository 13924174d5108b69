package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	moderncsqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/example/availability-scheduler/internal/persistence"
	"github.com/example/availability-scheduler/internal/persistence/sqlstore"
)

// Dialect adapts sqlstore to SQLite.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Rebind(query string) string { return query }

// LockEvent bumps lock_version so the transaction acquires the database
// write lock before it reads anything.
func (Dialect) LockEvent(ctx context.Context, tx *sql.Tx, eventID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE events SET lock_version = lock_version + 1 WHERE id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("sqlite: lock event %s: %w", eventID, Dialect{}.MapError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: lock event %s: %w", eventID, err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (Dialect) TimeValue(t time.Time) any {
	return sqlstore.FormatTextTime(t)
}

// MapError maps SQLite errors to persistence layer errors
func (Dialect) MapError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr *moderncsqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		switch code {
		case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
		case sqlitelib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %v", persistence.ErrForeignKeyViolation, err)
		}
		switch code & 0xff {
		case sqlitelib.SQLITE_CONSTRAINT:
			return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
		case sqlitelib.SQLITE_BUSY, sqlitelib.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", persistence.ErrConflict, err)
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", persistence.ErrForeignKeyViolation, err)
	case strings.Contains(msg, "CHECK constraint failed"), strings.Contains(msg, "NOT NULL constraint failed"):
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "SQLITE_BUSY"):
		return fmt.Errorf("%w: %v", persistence.ErrConflict, err)
	}
	return err
}

var _ sqlstore.Dialect = Dialect{}
