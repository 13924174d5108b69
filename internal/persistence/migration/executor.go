package migration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Placeholder renders the n-th (1-based) bind parameter of a dialect.
type Placeholder func(n int) string

// QuestionPlaceholder renders "?" as used by SQLite.
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders "$n" as used by PostgreSQL.
func DollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// SQLExecutor implements Executor on top of database/sql.
type SQLExecutor struct {
	db          *sql.DB
	placeholder Placeholder
	now         func() time.Time
}

// NewExecutor creates a migration executor for db.
func NewExecutor(db *sql.DB, placeholder Placeholder) *SQLExecutor {
	if placeholder == nil {
		placeholder = QuestionPlaceholder
	}
	return &SQLExecutor{
		db:          db,
		placeholder: placeholder,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ExecuteMigration runs every statement of the migration and records the
// version in one transaction.
func (e *SQLExecutor) ExecuteMigration(ctx context.Context, migration Migration) (elapsed time.Duration, err error) {
	started := e.now()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, NewDatabaseError(migration.Version, "", "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	statements := splitStatements(migration.SQL)
	if len(statements) == 0 {
		return 0, NewMigrationError(migration.Version, migration.FilePath, "parse SQL",
			fmt.Errorf("%w: no SQL statements found", ErrInvalidMigrationFile))
	}

	for i, stmt := range statements {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			return 0, NewDatabaseError(migration.Version, stmt, fmt.Sprintf("execute statement %d", i+1), execErr)
		}
	}

	elapsed = e.now().Sub(started)
	insertSQL := fmt.Sprintf(
		"INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (%s, %s, %s, %s)",
		e.placeholder(1), e.placeholder(2), e.placeholder(3), e.placeholder(4),
	)
	if _, execErr := tx.ExecContext(ctx, insertSQL,
		migration.Version,
		e.now().Format(time.RFC3339),
		migration.Checksum,
		elapsed.Milliseconds(),
	); execErr != nil {
		return 0, NewDatabaseError(migration.Version, insertSQL, "record migration", execErr)
	}

	if err = tx.Commit(); err != nil {
		return 0, NewDatabaseError(migration.Version, "", "commit transaction", err)
	}
	return elapsed, nil
}

// InitializeVersionTable creates the schema_migrations table if it doesn't exist
func (e *SQLExecutor) InitializeVersionTable(ctx context.Context) error {
	createTableSQL := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			checksum TEXT,
			execution_time_ms BIGINT
		)
	`
	if _, err := e.db.ExecContext(ctx, createTableSQL); err != nil {
		return NewDatabaseError("", createTableSQL, "create schema_migrations table", err)
	}
	return nil
}

// GetAppliedVersions returns all applied migration versions with timestamps
func (e *SQLExecutor) GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error) {
	querySQL := `
		SELECT version, applied_at, COALESCE(execution_time_ms, 0), COALESCE(checksum, '')
		FROM schema_migrations
		ORDER BY version ASC
	`

	rows, err := e.db.QueryContext(ctx, querySQL)
	if err != nil {
		return nil, NewDatabaseError("", querySQL, "get applied versions", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var version, appliedAtStr, checksum string
		var executionTimeMs int64

		if err := rows.Scan(&version, &appliedAtStr, &executionTimeMs, &checksum); err != nil {
			return nil, NewDatabaseError("", querySQL, "scan applied migration", err)
		}

		appliedAt, parseErr := time.Parse(time.RFC3339, strings.TrimSpace(appliedAtStr))
		if parseErr != nil {
			return nil, NewDatabaseError(version, querySQL, "parse applied_at", parseErr)
		}

		applied = append(applied, AppliedMigration{
			Version:       version,
			AppliedAt:     appliedAt,
			ExecutionTime: time.Duration(executionTimeMs) * time.Millisecond,
			Checksum:      checksum,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError("", querySQL, "iterate applied migrations", err)
	}
	return applied, nil
}
