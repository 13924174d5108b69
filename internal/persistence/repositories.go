package persistence

import "context"

// EventTx exposes the reads and writes allowed while an event is locked.
// Implementations must hold the event lock from the first call until the
// surrounding WithinEvent returns.
type EventTx interface {
	// Event returns the locked event as of the start of the transaction,
	// including changes made through UpdateEvent.
	Event() Event
	UpdateEvent(ctx context.Context, event Event) error

	ListRanges(ctx context.Context) ([]AvailabilityRange, error)
	ReplaceRanges(ctx context.Context, userID string, ranges []AvailabilityRange) error

	GetSubmission(ctx context.Context, userID string) (Submission, error)
	UpsertSubmission(ctx context.Context, submission Submission) error

	ListSuggestions(ctx context.Context) ([]Suggestion, error)
	ReplaceSuggestions(ctx context.Context, suggestions []Suggestion) error
}

// TxFunc runs inside an event transaction. Returning an error rolls back every
// write made through tx.
type TxFunc func(ctx context.Context, tx EventTx) error

// SchedulingStore persists events together with their ranges and suggestions.
type SchedulingStore interface {
	CreateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	ListRanges(ctx context.Context, eventID string) ([]AvailabilityRange, error)
	ListSuggestions(ctx context.Context, eventID string) ([]Suggestion, error)

	// ListUnscheduledEventIDs returns the IDs of the group's events without a
	// start date, ordered by ID. An unknown group yields an empty list.
	ListUnscheduledEventIDs(ctx context.Context, groupID string) ([]string, error)

	// WithinEvent locks the event and runs fn in one transaction. It returns
	// ErrNotFound when the event does not exist and ErrConflict when the
	// database gave up waiting for the lock.
	WithinEvent(ctx context.Context, eventID string, fn TxFunc) error
}

// MemberRepository stores group membership synced from the membership service.
type MemberRepository interface {
	ReplaceGroupMembers(ctx context.Context, groupID string, members []GroupMember) error
	ListGroupMembers(ctx context.Context, groupID string) ([]GroupMember, error)
}
