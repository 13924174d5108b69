package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/availability-scheduler/internal/application"
	"github.com/example/availability-scheduler/internal/persistence"
	"github.com/example/availability-scheduler/internal/scheduler"
)

var eventCounter uint64

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// referenceDay is the calendar day availability fixtures are placed on.
var referenceDay = time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// At returns hour:minute UTC on the reference day.
func At(hour, minute int) time.Time {
	return referenceDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// Window returns the interval [from, to) on the reference day, expressed in
// "HH:MM" notation.
func Window(from, to string) scheduler.Interval {
	return scheduler.Interval{From: parseClock(from), To: parseClock(to)}
}

func parseClock(hhmm string) time.Time {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		panic(fmt.Sprintf("testfixtures: bad time %q", hhmm))
	}
	return At(h, m)
}

// ----------------------------- Event fixtures -----------------------------

// EventFixture is a deterministic event that can be materialised for
// application or persistence tests.
type EventFixture struct {
	ID              string
	GroupID         string
	DurationMinutes int
	RangeStart      *time.Time
	RangeEnd        *time.Time
	IsAutoScheduled bool
	StartDate       *time.Time
	EndDate         *time.Time
	CreatedAt       time.Time
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns an unscheduled one hour event with optional overrides.
func NewEventFixture(opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	fixture := EventFixture{
		ID:              fmt.Sprintf("event-%03d", idx),
		GroupID:         "group-001",
		DurationMinutes: 60,
		CreatedAt:       referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventID overrides the generated event ID.
func WithEventID(id string) EventOption {
	return func(f *EventFixture) { f.ID = id }
}

// WithEventGroup overrides the owning group.
func WithEventGroup(groupID string) EventOption {
	return func(f *EventFixture) { f.GroupID = groupID }
}

// WithEventDuration sets the meeting length in minutes.
func WithEventDuration(minutes int) EventOption {
	return func(f *EventFixture) { f.DurationMinutes = minutes }
}

// WithAutoSchedulingWindow marks the event auto-scheduled within [start, end].
func WithAutoSchedulingWindow(start, end time.Time) EventOption {
	return func(f *EventFixture) {
		f.IsAutoScheduled = true
		f.RangeStart = &start
		f.RangeEnd = &end
	}
}

// WithEventScheduledAt finalizes the event at start.
func WithEventScheduledAt(start time.Time) EventOption {
	return func(f *EventFixture) {
		end := start.Add(time.Duration(f.DurationMinutes) * time.Minute)
		f.StartDate = &start
		f.EndDate = &end
		f.IsAutoScheduled = false
	}
}

// Application converts the fixture into an application.Event.
func (f EventFixture) Application() application.Event {
	return application.Event{
		ID:              f.ID,
		GroupID:         f.GroupID,
		DurationMinutes: f.DurationMinutes,
		RangeStart:      copyTimePtr(f.RangeStart),
		RangeEnd:        copyTimePtr(f.RangeEnd),
		IsAutoScheduled: f.IsAutoScheduled,
		StartDate:       copyTimePtr(f.StartDate),
		EndDate:         copyTimePtr(f.EndDate),
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.CreatedAt,
	}
}

// Persistence converts the fixture into a persistence.Event.
func (f EventFixture) Persistence() persistence.Event {
	return persistence.Event{
		ID:              f.ID,
		GroupID:         f.GroupID,
		DurationMinutes: f.DurationMinutes,
		RangeStart:      copyTimePtr(f.RangeStart),
		RangeEnd:        copyTimePtr(f.RangeEnd),
		IsAutoScheduled: f.IsAutoScheduled,
		StartDate:       copyTimePtr(f.StartDate),
		EndDate:         copyTimePtr(f.EndDate),
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.CreatedAt,
	}
}

// RegisterParams converts the fixture into service registration input.
func (f EventFixture) RegisterParams() application.RegisterEventParams {
	return application.RegisterEventParams{
		ID:              f.ID,
		GroupID:         f.GroupID,
		DurationMinutes: f.DurationMinutes,
		RangeStart:      copyTimePtr(f.RangeStart),
		RangeEnd:        copyTimePtr(f.RangeEnd),
		IsAutoScheduled: f.IsAutoScheduled,
	}
}

// ----------------------------- Member fixtures -----------------------------

// Organizer returns an organizer membership of groupID.
func Organizer(groupID, userID string) application.GroupMember {
	return application.GroupMember{GroupID: groupID, UserID: userID, Role: application.RoleOrganizer}
}

// Member returns a plain membership of groupID.
func Member(groupID, userID string) application.GroupMember {
	return application.GroupMember{GroupID: groupID, UserID: userID, Role: application.RoleMember}
}

// PersistenceMembers converts memberships for MemberRepository tests.
func PersistenceMembers(members ...application.GroupMember) []persistence.GroupMember {
	out := make([]persistence.GroupMember, 0, len(members))
	for _, m := range members {
		out = append(out, persistence.GroupMember{GroupID: m.GroupID, UserID: m.UserID, Role: string(m.Role)})
	}
	return out
}

// ----------------------------- Range fixtures -----------------------------

// Ranges converts intervals into stored ranges of userID with ids from gen.
func Ranges(gen *IDGenerator, eventID, userID string, windows ...scheduler.Interval) []persistence.AvailabilityRange {
	out := make([]persistence.AvailabilityRange, 0, len(windows))
	for _, w := range windows {
		out = append(out, persistence.AvailabilityRange{
			ID:            gen.Next(),
			EventID:       eventID,
			UserID:        userID,
			AvailableFrom: w.From,
			AvailableTo:   w.To,
		})
	}
	return out
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}
