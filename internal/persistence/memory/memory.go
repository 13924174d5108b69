// Package memory provides a map backed implementation of the persistence
// ports. Each event is guarded by its own mutex, so transactions on different
// events run in parallel while transactions on the same event are serialized.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/availability-scheduler/internal/persistence"
)

// Storage keeps every record in process memory.
type Storage struct {
	mu          sync.RWMutex
	events      map[string]persistence.Event
	ranges      map[string][]persistence.AvailabilityRange
	submissions map[string]map[string]persistence.Submission
	suggestions map[string][]persistence.Suggestion
	members     map[string][]persistence.GroupMember

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		events:      make(map[string]persistence.Event),
		ranges:      make(map[string][]persistence.AvailabilityRange),
		submissions: make(map[string]map[string]persistence.Submission),
		suggestions: make(map[string][]persistence.Suggestion),
		members:     make(map[string][]persistence.GroupMember),
		locks:       make(map[string]*sync.Mutex),
	}
}

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}

// Ping reports whether ctx is still live.
func (s *Storage) Ping(ctx context.Context) error {
	return ctx.Err()
}

// --- SchedulingStore implementation ---

// CreateEvent stores a new event.
func (s *Storage) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" || event.GroupID == "" || event.DurationMinutes <= 0 {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; ok {
		return fmt.Errorf("memory: event %s: %w", event.ID, persistence.ErrDuplicate)
	}
	s.events[event.ID] = cloneEvent(event)
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Storage) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return cloneEvent(event), nil
}

// ListRanges returns the ranges of every member ordered by user then start.
func (s *Storage) ListRanges(ctx context.Context, eventID string) ([]persistence.AvailabilityRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.events[eventID]; !ok {
		return nil, persistence.ErrNotFound
	}
	return sortedRanges(s.ranges[eventID]), nil
}

// ListSuggestions returns the suggestions of an event in rank order.
func (s *Storage) ListSuggestions(ctx context.Context, eventID string) ([]persistence.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.events[eventID]; !ok {
		return nil, persistence.ErrNotFound
	}
	return sortedSuggestions(s.suggestions[eventID]), nil
}

// ListUnscheduledEventIDs returns the group's events that have no start date.
func (s *Storage) ListUnscheduledEventIDs(ctx context.Context, groupID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for id, event := range s.events {
		if event.GroupID == groupID && event.StartDate == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// WithinEvent serializes fn against other transactions on the same event.
// Writes are staged on a private copy and published only when fn succeeds.
func (s *Storage) WithinEvent(ctx context.Context, eventID string, fn persistence.TxFunc) error {
	lock := s.eventLock(eventID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	event, ok := s.events[eventID]
	if !ok {
		s.mu.RUnlock()
		return persistence.ErrNotFound
	}
	tx := &eventTx{
		event:       cloneEvent(event),
		ranges:      cloneRanges(s.ranges[eventID]),
		suggestions: cloneSuggestions(s.suggestions[eventID]),
		submissions: make(map[string]persistence.Submission, len(s.submissions[eventID])),
	}
	for userID, sub := range s.submissions[eventID] {
		tx.submissions[userID] = sub
	}
	s.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[eventID] = tx.event
	s.ranges[eventID] = tx.ranges
	s.suggestions[eventID] = tx.suggestions
	s.submissions[eventID] = tx.submissions
	return nil
}

func (s *Storage) eventLock(eventID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[eventID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[eventID] = lock
	}
	return lock
}

// --- MemberRepository implementation ---

// ReplaceGroupMembers overwrites the member list of a group.
func (s *Storage) ReplaceGroupMembers(ctx context.Context, groupID string, members []persistence.GroupMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]persistence.GroupMember, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m.UserID == "" {
			return persistence.ErrConstraintViolation
		}
		if _, dup := seen[m.UserID]; dup {
			return fmt.Errorf("memory: member %s: %w", m.UserID, persistence.ErrDuplicate)
		}
		seen[m.UserID] = struct{}{}
		m.GroupID = groupID
		copied = append(copied, m)
	}
	s.members[groupID] = copied
	return nil
}

// ListGroupMembers returns the members of a group ordered by user ID.
func (s *Storage) ListGroupMembers(ctx context.Context, groupID string) ([]persistence.GroupMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]persistence.GroupMember, len(s.members[groupID]))
	copy(members, s.members[groupID])
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

// --- EventTx implementation ---

type eventTx struct {
	event       persistence.Event
	ranges      []persistence.AvailabilityRange
	suggestions []persistence.Suggestion
	submissions map[string]persistence.Submission
}

func (tx *eventTx) Event() persistence.Event {
	return cloneEvent(tx.event)
}

func (tx *eventTx) UpdateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID != tx.event.ID {
		return persistence.ErrNotFound
	}
	if (event.StartDate == nil) != (event.EndDate == nil) {
		return persistence.ErrConstraintViolation
	}
	tx.event = cloneEvent(event)
	return nil
}

func (tx *eventTx) ListRanges(ctx context.Context) ([]persistence.AvailabilityRange, error) {
	return sortedRanges(tx.ranges), nil
}

func (tx *eventTx) ReplaceRanges(ctx context.Context, userID string, ranges []persistence.AvailabilityRange) error {
	kept := make([]persistence.AvailabilityRange, 0, len(tx.ranges)+len(ranges))
	for _, r := range tx.ranges {
		if r.UserID != userID {
			kept = append(kept, r)
		}
	}
	for _, r := range ranges {
		if !r.AvailableFrom.Before(r.AvailableTo) {
			return persistence.ErrConstraintViolation
		}
		r.EventID = tx.event.ID
		r.UserID = userID
		kept = append(kept, r)
	}
	tx.ranges = kept
	return nil
}

func (tx *eventTx) GetSubmission(ctx context.Context, userID string) (persistence.Submission, error) {
	sub, ok := tx.submissions[userID]
	if !ok {
		return persistence.Submission{}, persistence.ErrNotFound
	}
	return sub, nil
}

func (tx *eventTx) UpsertSubmission(ctx context.Context, submission persistence.Submission) error {
	submission.EventID = tx.event.ID
	tx.submissions[submission.UserID] = submission
	return nil
}

func (tx *eventTx) ListSuggestions(ctx context.Context) ([]persistence.Suggestion, error) {
	return sortedSuggestions(tx.suggestions), nil
}

func (tx *eventTx) ReplaceSuggestions(ctx context.Context, suggestions []persistence.Suggestion) error {
	replaced := make([]persistence.Suggestion, 0, len(suggestions))
	for _, sg := range suggestions {
		sg.EventID = tx.event.ID
		replaced = append(replaced, sg)
	}
	tx.suggestions = replaced
	return nil
}

// --- helpers ---

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copy := *t
	return &copy
}

func cloneEvent(event persistence.Event) persistence.Event {
	event.RangeStart = cloneTime(event.RangeStart)
	event.RangeEnd = cloneTime(event.RangeEnd)
	event.StartDate = cloneTime(event.StartDate)
	event.EndDate = cloneTime(event.EndDate)
	event.SuggestionsComputedAt = cloneTime(event.SuggestionsComputedAt)
	return event
}

func cloneRanges(ranges []persistence.AvailabilityRange) []persistence.AvailabilityRange {
	out := make([]persistence.AvailabilityRange, len(ranges))
	copy(out, ranges)
	return out
}

func cloneSuggestions(suggestions []persistence.Suggestion) []persistence.Suggestion {
	out := make([]persistence.Suggestion, len(suggestions))
	copy(out, suggestions)
	return out
}

func sortedRanges(ranges []persistence.AvailabilityRange) []persistence.AvailabilityRange {
	out := cloneRanges(ranges)
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].AvailableFrom.Before(out[j].AvailableFrom)
	})
	return out
}

func sortedSuggestions(suggestions []persistence.Suggestion) []persistence.Suggestion {
	out := cloneSuggestions(suggestions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}
