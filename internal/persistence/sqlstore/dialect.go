// Package sqlstore implements the persistence ports on database/sql. The SQL
// is shared between SQLite and PostgreSQL; everything engine specific is
// supplied through a Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect captures the differences between database engines.
type Dialect interface {
	// Name identifies the dialect in logs and errors.
	Name() string
	// Rebind rewrites "?" placeholders into the engine's bind syntax.
	Rebind(query string) string
	// LockEvent takes the exclusive lock on the event row as the first
	// statement of tx. It returns persistence.ErrNotFound when no row matches.
	LockEvent(ctx context.Context, tx *sql.Tx, eventID string) error
	// MapError translates driver errors into persistence sentinels.
	MapError(err error) error
	// TimeValue converts an instant into the engine's bind value.
	TimeValue(t time.Time) any
}

// RebindDollar rewrites "?" placeholders into "$1", "$2", ...
func RebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TextTimeFormat is a fixed width UTC layout, so lexical order matches time order.
const TextTimeFormat = "2006-01-02T15:04:05.000000000Z"

// FormatTextTime renders t in TextTimeFormat.
func FormatTextTime(t time.Time) string {
	return t.UTC().Format(TextTimeFormat)
}

// dbTime scans instants stored either natively or as text.
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("sqlstore: cannot scan %T into time", value)
	}
}

func (t *dbTime) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("sqlstore: parse time %q: %w", s, err)
	}
	t.Time, t.Valid = parsed.UTC(), true
	return nil
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var _ sql.Scanner = (*dbTime)(nil)

func nullableTime(d Dialect, t *time.Time) driver.Value {
	if t == nil {
		return nil
	}
	return d.TimeValue(*t)
}
