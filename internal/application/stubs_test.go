package application

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// schedulingStoreStub keeps events in memory and serializes WithinEvent per
// store. Writes made inside a failed transaction are discarded.
type schedulingStoreStub struct {
	mu          sync.Mutex
	txMu        sync.Mutex
	events      map[string]Event
	ranges      map[string][]AvailabilityRange
	submissions map[string]map[string]Submission
	suggestions map[string][]Suggestion

	createErr    error
	conflicts    int
	transactions int
}

func newSchedulingStoreStub(events ...Event) *schedulingStoreStub {
	s := &schedulingStoreStub{
		events:      make(map[string]Event),
		ranges:      make(map[string][]AvailabilityRange),
		submissions: make(map[string]map[string]Submission),
		suggestions: make(map[string][]Suggestion),
	}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *schedulingStoreStub) CreateEvent(ctx context.Context, event Event) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; ok {
		return ErrAlreadyExists
	}
	s.events[event.ID] = event
	return nil
}

func (s *schedulingStoreStub) GetEvent(ctx context.Context, id string) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	return event, nil
}

func (s *schedulingStoreStub) ListRanges(ctx context.Context, eventID string) ([]AvailabilityRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; !ok {
		return nil, ErrNotFound
	}
	return append([]AvailabilityRange(nil), s.ranges[eventID]...), nil
}

func (s *schedulingStoreStub) ListSuggestions(ctx context.Context, eventID string) ([]Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; !ok {
		return nil, ErrNotFound
	}
	return append([]Suggestion(nil), s.suggestions[eventID]...), nil
}

func (s *schedulingStoreStub) ListUnscheduledEventIDs(ctx context.Context, groupID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0)
	for id, e := range s.events {
		if e.GroupID == groupID && e.StartDate == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *schedulingStoreStub) WithinEvent(ctx context.Context, eventID string, fn EventTxFunc) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.transactions++
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return ErrConcurrencyConflict
	}
	event, ok := s.events[eventID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	tx := &eventTxStub{
		event:       event,
		ranges:      append([]AvailabilityRange(nil), s.ranges[eventID]...),
		suggestions: append([]Suggestion(nil), s.suggestions[eventID]...),
		submissions: make(map[string]Submission),
	}
	for k, v := range s.submissions[eventID] {
		tx.submissions[k] = v
	}
	s.mu.Unlock()

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

type eventTxStub struct {
	event       Event
	ranges      []AvailabilityRange
	suggestions []Suggestion
	submissions map[string]Submission
}

func (tx *eventTxStub) Event() Event { return tx.event }

func (tx *eventTxStub) UpdateEvent(ctx context.Context, event Event) error {
	tx.event = event
	return nil
}

func (tx *eventTxStub) ListRanges(ctx context.Context) ([]AvailabilityRange, error) {
	out := append([]AvailabilityRange(nil), tx.ranges...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].AvailableFrom.Before(out[j].AvailableFrom)
	})
	return out, nil
}

func (tx *eventTxStub) ReplaceRanges(ctx context.Context, userID string, ranges []AvailabilityRange) error {
	kept := make([]AvailabilityRange, 0, len(tx.ranges)+len(ranges))
	for _, r := range tx.ranges {
		if r.UserID != userID {
			kept = append(kept, r)
		}
	}
	tx.ranges = append(kept, ranges...)
	return nil
}

func (tx *eventTxStub) GetSubmission(ctx context.Context, userID string) (Submission, error) {
	sub, ok := tx.submissions[userID]
	if !ok {
		return Submission{}, ErrNotFound
	}
	return sub, nil
}

func (tx *eventTxStub) UpsertSubmission(ctx context.Context, submission Submission) error {
	tx.submissions[submission.UserID] = submission
	return nil
}

func (tx *eventTxStub) ListSuggestions(ctx context.Context) ([]Suggestion, error) {
	return append([]Suggestion(nil), tx.suggestions...), nil
}

func (tx *eventTxStub) ReplaceSuggestions(ctx context.Context, suggestions []Suggestion) error {
	tx.suggestions = append([]Suggestion(nil), suggestions...)
	return nil
}

type memberDirectoryStub struct {
	mu      sync.Mutex
	members map[string][]GroupMember
	err     error
	calls   int
}

func (m *memberDirectoryStub) ListMembers(ctx context.Context, groupID string) ([]GroupMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	members, ok := m.members[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]GroupMember(nil), members...), nil
}

func (m *memberDirectoryStub) ReplaceMembers(ctx context.Context, groupID string, members []GroupMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.members == nil {
		m.members = make(map[string][]GroupMember)
	}
	m.members[groupID] = append([]GroupMember(nil), members...)
	return nil
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 6, 3, hour, minute, 0, 0, time.UTC)
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) }
}
