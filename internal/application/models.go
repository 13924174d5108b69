package application

import (
	"time"

	"github.com/example/availability-scheduler/internal/scheduler"
)

// Role is the position of a user within a group.
type Role string

const (
	// RoleMember may submit availability and read suggestions.
	RoleMember Role = "member"
	// RoleOrganizer may additionally finalize and recompute suggestions.
	RoleOrganizer Role = "organizer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleOrganizer
}

// Principal is the caller of a service method together with its resolved
// role in the event's group. A zero Role means the caller is not a member.
type Principal struct {
	UserID string
	Role   Role
}

// IsMember reports whether the principal belongs to the group.
func (p Principal) IsMember() bool {
	return p.UserID != "" && p.Role.Valid()
}

// IsOrganizer reports whether the principal may finalize the event.
func (p Principal) IsOrganizer() bool {
	return p.UserID != "" && p.Role == RoleOrganizer
}

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

// Duration returns the required meeting length.
func (e Event) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Scheduled reports whether a meeting slot has been committed.
func (e Event) Scheduled() bool {
	return e.StartDate != nil
}

// Bound returns the search window as an interval, or nil when either end is unset.
func (e Event) Bound() *scheduler.Interval {
	if e.RangeStart == nil || e.RangeEnd == nil {
		return nil
	}
	return &scheduler.Interval{From: e.RangeStart.UTC(), To: e.RangeEnd.UTC()}
}

// AvailabilityRange is a stored free-time window of a member.
type AvailabilityRange struct {
	ID            string
	EventID       string
	UserID        string
	AvailableFrom time.Time
	AvailableTo   time.Time
}

// Interval returns the range as a scheduler interval.
func (r AvailabilityRange) Interval() scheduler.Interval {
	return scheduler.Interval{From: r.AvailableFrom, To: r.AvailableTo}
}

// Submission is the digest of the latest batch a member submitted.
type Submission struct {
	EventID     string
	UserID      string
	Fingerprint string
	SubmittedAt time.Time
}

// Suggestion is a ranked candidate meeting start.
type Suggestion struct {
	ID        string
	EventID   string
	StartTime time.Time
	EndTime   time.Time
	Score     int
	Rank      int
	CreatedAt time.Time
}

// GroupMember links a user to a group with a role.
type GroupMember struct {
	GroupID string
	UserID  string
	Role    Role
}

// RegisterEventParams carries the scheduling fields of a newly created event.
type RegisterEventParams struct {
	ID              string
	GroupID         string
	DurationMinutes int
	RangeStart      *time.Time
	RangeEnd        *time.Time
	IsAutoScheduled bool
}

// SubmitAvailabilityParams carries a member's complete availability for an event.
type SubmitAvailabilityParams struct {
	EventID   string
	Principal Principal
	Ranges    []scheduler.Interval
}

// SubmissionResult reports the stored ranges and the scheduling outcome.
type SubmissionResult struct {
	Event       Event
	Ranges      []AvailabilityRange
	Unchanged   bool
	Recomputed  bool
	Withdrawn   bool
	Status      Status
	Suggestions []Suggestion
}

// ChooseSuggestionParams identifies the suggestion an organizer commits to.
type ChooseSuggestionParams struct {
	EventID      string
	SuggestionID string
	Principal    Principal
}

// ScheduleView summarises the scheduling state of an event.
type ScheduleView struct {
	Event           Event
	Status          Status
	MemberCount     int
	SubmittedCount  int
	SuggestionCount int
}
