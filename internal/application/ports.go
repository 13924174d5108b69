package application

import "context"

// EventTx exposes the reads and writes allowed while an event is locked.
// Errors follow the package sentinels: ErrNotFound for missing rows and
// ErrConcurrencyConflict when the lock could not be held.
type EventTx interface {
	Event() Event
	UpdateEvent(ctx context.Context, event Event) error

	ListRanges(ctx context.Context) ([]AvailabilityRange, error)
	ReplaceRanges(ctx context.Context, userID string, ranges []AvailabilityRange) error

	GetSubmission(ctx context.Context, userID string) (Submission, error)
	UpsertSubmission(ctx context.Context, submission Submission) error

	ListSuggestions(ctx context.Context) ([]Suggestion, error)
	ReplaceSuggestions(ctx context.Context, suggestions []Suggestion) error
}

// EventTxFunc runs inside an event transaction; returning an error discards its writes.
type EventTxFunc func(ctx context.Context, tx EventTx) error

// SchedulingStore captures the persistence interactions needed by the service.
type SchedulingStore interface {
	CreateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	ListRanges(ctx context.Context, eventID string) ([]AvailabilityRange, error)
	ListSuggestions(ctx context.Context, eventID string) ([]Suggestion, error)
	ListUnscheduledEventIDs(ctx context.Context, groupID string) ([]string, error)
	WithinEvent(ctx context.Context, eventID string, fn EventTxFunc) error
}

// MemberDirectory exposes group membership owned by the membership service.
type MemberDirectory interface {
	ListMembers(ctx context.Context, groupID string) ([]GroupMember, error)
}

// MemberRegistry accepts membership snapshots pushed by the membership service.
type MemberRegistry interface {
	ReplaceMembers(ctx context.Context, groupID string, members []GroupMember) error
}
