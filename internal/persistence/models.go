package persistence

import "time"

// Event holds the scheduling fields of a group event.
type Event struct {
	ID                    string
	GroupID               string
	DurationMinutes       int
	RangeStart            *time.Time
	RangeEnd              *time.Time
	IsAutoScheduled       bool
	StartDate             *time.Time
	EndDate               *time.Time
	SuggestionsComputedAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// AvailabilityRange is one free-time window submitted by a member for an event.
type AvailabilityRange struct {
	ID            string
	EventID       string
	UserID        string
	AvailableFrom time.Time
	AvailableTo   time.Time
}

// Submission records the digest of the latest range batch of a member.
type Submission struct {
	EventID     string
	UserID      string
	Fingerprint string
	SubmittedAt time.Time
}

// Suggestion is a ranked candidate start time computed for an event.
type Suggestion struct {
	ID        string
	EventID   string
	StartTime time.Time
	Score     int
	Rank      int
	CreatedAt time.Time
}

// GroupMember links a user to a group with a role.
type GroupMember struct {
	GroupID string
	UserID  string
	Role    string
}
