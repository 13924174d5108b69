package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/availability-scheduler/internal/persistence"
)

const eventColumns = `id, group_id, duration_minutes, range_start, range_end, is_auto_scheduled,
	start_date, end_date, suggestions_computed_at, created_at, updated_at`

// Store implements persistence.SchedulingStore and persistence.MemberRepository.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the clock used for bookkeeping timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps an open database whose schema is already migrated.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping tests the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

func (s *Store) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}
	return s.dialect.MapError(err)
}

// CreateEvent inserts a new event.
func (s *Store) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" || event.GroupID == "" || event.DurationMinutes <= 0 {
		return persistence.ErrConstraintViolation
	}

	now := s.now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}

	query := s.q(`
		INSERT INTO events (` + eventColumns + `, lock_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`)
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.GroupID,
		event.DurationMinutes,
		nullableTime(s.dialect, event.RangeStart),
		nullableTime(s.dialect, event.RangeEnd),
		event.IsAutoScheduled,
		nullableTime(s.dialect, event.StartDate),
		nullableTime(s.dialect, event.EndDate),
		nullableTime(s.dialect, event.SuggestionsComputedAt),
		s.dialect.TimeValue(event.CreatedAt),
		s.dialect.TimeValue(event.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create event %s: %w", event.ID, s.mapError(err))
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	return s.getEvent(ctx, s.db, id)
}

// ListRanges returns every stored range of an event ordered by user then start.
func (s *Store) ListRanges(ctx context.Context, eventID string) ([]persistence.AvailabilityRange, error) {
	if err := s.ensureEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.listRanges(ctx, s.db, eventID)
}

// ListSuggestions returns the suggestions of an event in rank order.
func (s *Store) ListSuggestions(ctx context.Context, eventID string) ([]persistence.Suggestion, error) {
	if err := s.ensureEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.listSuggestions(ctx, s.db, eventID)
}

// ListUnscheduledEventIDs returns the group's events that have no start date.
func (s *Store) ListUnscheduledEventIDs(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id FROM events WHERE group_id = ? AND start_date IS NULL ORDER BY id`),
		groupID,
	)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, s.mapError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError(err)
	}
	return ids, nil
}

// WithinEvent locks the event row and runs fn in the same transaction.
func (s *Store) WithinEvent(ctx context.Context, eventID string, fn persistence.TxFunc) error {
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.dialect.LockEvent(ctx, tx, eventID); err != nil {
			return err
		}

		event, err := s.getEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}

		return fn(ctx, &eventTx{store: s, tx: tx, event: event})
	})
}

// ReplaceGroupMembers overwrites the member list of a group.
func (s *Store) ReplaceGroupMembers(ctx context.Context, groupID string, members []persistence.GroupMember) error {
	if groupID == "" {
		return persistence.ErrConstraintViolation
	}
	for _, m := range members {
		if m.UserID == "" {
			return persistence.ErrConstraintViolation
		}
	}

	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM group_members WHERE group_id = ?`), groupID); err != nil {
			return fmt.Errorf("clear group %s: %w", groupID, s.mapError(err))
		}

		insert := s.q(`INSERT INTO group_members (group_id, user_id, role) VALUES (?, ?, ?)`)
		for _, m := range members {
			if _, err := tx.ExecContext(ctx, insert, groupID, m.UserID, m.Role); err != nil {
				return fmt.Errorf("insert member %s: %w", m.UserID, s.mapError(err))
			}
		}
		return nil
	})
}

// ListGroupMembers returns the members of a group ordered by user ID.
func (s *Store) ListGroupMembers(ctx context.Context, groupID string) ([]persistence.GroupMember, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT group_id, user_id, role FROM group_members WHERE group_id = ? ORDER BY user_id`),
		groupID,
	)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	members := make([]persistence.GroupMember, 0)
	for rows.Next() {
		var m persistence.GroupMember
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role); err != nil {
			return nil, s.mapError(err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError(err)
	}
	return members, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) ensureEvent(ctx context.Context, eventID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM events WHERE id = ?`), eventID).Scan(&one)
	return s.mapError(err)
}

func (s *Store) getEvent(ctx context.Context, q querier, id string) (persistence.Event, error) {
	row := q.QueryRowContext(ctx, s.q(`SELECT `+eventColumns+` FROM events WHERE id = ?`), id)

	var (
		event                                          persistence.Event
		rangeStart, rangeEnd, startDate, endDate, comp dbTime
		createdAt, updatedAt                           dbTime
	)
	err := row.Scan(
		&event.ID,
		&event.GroupID,
		&event.DurationMinutes,
		&rangeStart,
		&rangeEnd,
		&event.IsAutoScheduled,
		&startDate,
		&endDate,
		&comp,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Event{}, s.mapError(err)
	}

	event.RangeStart = rangeStart.ptr()
	event.RangeEnd = rangeEnd.ptr()
	event.StartDate = startDate.ptr()
	event.EndDate = endDate.ptr()
	event.SuggestionsComputedAt = comp.ptr()
	event.CreatedAt = createdAt.Time
	event.UpdatedAt = updatedAt.Time
	return event, nil
}

func (s *Store) listRanges(ctx context.Context, q querier, eventID string) ([]persistence.AvailabilityRange, error) {
	rows, err := q.QueryContext(ctx, s.q(`
		SELECT id, event_id, user_id, available_from, available_to
		FROM availability_ranges
		WHERE event_id = ?
		ORDER BY user_id, available_from
	`), eventID)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	ranges := make([]persistence.AvailabilityRange, 0)
	for rows.Next() {
		var (
			r        persistence.AvailabilityRange
			from, to dbTime
		)
		if err := rows.Scan(&r.ID, &r.EventID, &r.UserID, &from, &to); err != nil {
			return nil, s.mapError(err)
		}
		r.AvailableFrom, r.AvailableTo = from.Time, to.Time
		ranges = append(ranges, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError(err)
	}
	return ranges, nil
}

func (s *Store) listSuggestions(ctx context.Context, q querier, eventID string) ([]persistence.Suggestion, error) {
	rows, err := q.QueryContext(ctx, s.q(`
		SELECT id, event_id, start_time, score, suggestion_rank, created_at
		FROM suggestions
		WHERE event_id = ?
		ORDER BY suggestion_rank
	`), eventID)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	suggestions := make([]persistence.Suggestion, 0)
	for rows.Next() {
		var (
			sg               persistence.Suggestion
			start, createdAt dbTime
		)
		if err := rows.Scan(&sg.ID, &sg.EventID, &start, &sg.Score, &sg.Rank, &createdAt); err != nil {
			return nil, s.mapError(err)
		}
		sg.StartTime, sg.CreatedAt = start.Time, createdAt.Time
		suggestions = append(suggestions, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError(err)
	}
	return suggestions, nil
}

// eventTx implements persistence.EventTx on a locked *sql.Tx.
type eventTx struct {
	store *Store
	tx    *sql.Tx
	event persistence.Event
}

func (t *eventTx) Event() persistence.Event {
	return t.event
}

func (t *eventTx) UpdateEvent(ctx context.Context, event persistence.Event) error {
	s := t.store
	if event.ID != t.event.ID {
		return persistence.ErrNotFound
	}
	if (event.StartDate == nil) != (event.EndDate == nil) {
		return persistence.ErrConstraintViolation
	}

	event.CreatedAt = t.event.CreatedAt
	event.UpdatedAt = s.now()

	_, err := t.tx.ExecContext(ctx, s.q(`
		UPDATE events
		SET duration_minutes = ?, range_start = ?, range_end = ?, is_auto_scheduled = ?,
			start_date = ?, end_date = ?, suggestions_computed_at = ?, updated_at = ?
		WHERE id = ?
	`),
		event.DurationMinutes,
		nullableTime(s.dialect, event.RangeStart),
		nullableTime(s.dialect, event.RangeEnd),
		event.IsAutoScheduled,
		nullableTime(s.dialect, event.StartDate),
		nullableTime(s.dialect, event.EndDate),
		nullableTime(s.dialect, event.SuggestionsComputedAt),
		s.dialect.TimeValue(event.UpdatedAt),
		event.ID,
	)
	if err != nil {
		return fmt.Errorf("update event %s: %w", event.ID, s.mapError(err))
	}

	t.event = event
	return nil
}

func (t *eventTx) ListRanges(ctx context.Context) ([]persistence.AvailabilityRange, error) {
	return t.store.listRanges(ctx, t.tx, t.event.ID)
}

func (t *eventTx) ReplaceRanges(ctx context.Context, userID string, ranges []persistence.AvailabilityRange) error {
	s := t.store
	if _, err := t.tx.ExecContext(ctx,
		s.q(`DELETE FROM availability_ranges WHERE event_id = ? AND user_id = ?`),
		t.event.ID, userID,
	); err != nil {
		return fmt.Errorf("delete ranges of %s: %w", userID, s.mapError(err))
	}

	insert := s.q(`
		INSERT INTO availability_ranges (id, event_id, user_id, available_from, available_to)
		VALUES (?, ?, ?, ?, ?)
	`)
	for _, r := range ranges {
		if !r.AvailableFrom.Before(r.AvailableTo) {
			return persistence.ErrConstraintViolation
		}
		if _, err := t.tx.ExecContext(ctx, insert,
			r.ID,
			t.event.ID,
			userID,
			s.dialect.TimeValue(r.AvailableFrom),
			s.dialect.TimeValue(r.AvailableTo),
		); err != nil {
			return fmt.Errorf("insert range %s: %w", r.ID, s.mapError(err))
		}
	}
	return nil
}

func (t *eventTx) GetSubmission(ctx context.Context, userID string) (persistence.Submission, error) {
	s := t.store
	var (
		sub         persistence.Submission
		submittedAt dbTime
	)
	err := t.tx.QueryRowContext(ctx, s.q(`
		SELECT event_id, user_id, fingerprint, submitted_at
		FROM availability_submissions
		WHERE event_id = ? AND user_id = ?
	`), t.event.ID, userID).Scan(&sub.EventID, &sub.UserID, &sub.Fingerprint, &submittedAt)
	if err != nil {
		return persistence.Submission{}, s.mapError(err)
	}
	sub.SubmittedAt = submittedAt.Time
	return sub, nil
}

func (t *eventTx) UpsertSubmission(ctx context.Context, submission persistence.Submission) error {
	s := t.store
	_, err := t.tx.ExecContext(ctx, s.q(`
		INSERT INTO availability_submissions (event_id, user_id, fingerprint, submitted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (event_id, user_id)
		DO UPDATE SET fingerprint = excluded.fingerprint, submitted_at = excluded.submitted_at
	`),
		t.event.ID,
		submission.UserID,
		submission.Fingerprint,
		s.dialect.TimeValue(submission.SubmittedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert submission of %s: %w", submission.UserID, s.mapError(err))
	}
	return nil
}

func (t *eventTx) ListSuggestions(ctx context.Context) ([]persistence.Suggestion, error) {
	return t.store.listSuggestions(ctx, t.tx, t.event.ID)
}

func (t *eventTx) ReplaceSuggestions(ctx context.Context, suggestions []persistence.Suggestion) error {
	s := t.store
	if _, err := t.tx.ExecContext(ctx, s.q(`DELETE FROM suggestions WHERE event_id = ?`), t.event.ID); err != nil {
		return fmt.Errorf("clear suggestions: %w", s.mapError(err))
	}

	insert := s.q(`
		INSERT INTO suggestions (id, event_id, start_time, score, suggestion_rank, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	for _, sg := range suggestions {
		createdAt := sg.CreatedAt
		if createdAt.IsZero() {
			createdAt = s.now()
		}
		if _, err := t.tx.ExecContext(ctx, insert,
			sg.ID,
			t.event.ID,
			s.dialect.TimeValue(sg.StartTime),
			sg.Score,
			sg.Rank,
			s.dialect.TimeValue(createdAt),
		); err != nil {
			return fmt.Errorf("insert suggestion %s: %w", sg.ID, s.mapError(err))
		}
	}
	return nil
}

var (
	_ persistence.SchedulingStore  = (*Store)(nil)
	_ persistence.MemberRepository = (*Store)(nil)
	_ persistence.EventTx          = (*eventTx)(nil)
)
