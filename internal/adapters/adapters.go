// Package adapters bridges the persistence layer and the application ports.
// It converts records in both directions and translates persistence errors
// into the application sentinels.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/availability-scheduler/internal/application"
	"github.com/example/availability-scheduler/internal/persistence"
)

// SchedulingStore exposes a persistence.SchedulingStore as an application.SchedulingStore.
type SchedulingStore struct {
	repo persistence.SchedulingStore
}

// NewSchedulingStore wraps repo.
func NewSchedulingStore(repo persistence.SchedulingStore) *SchedulingStore {
	return &SchedulingStore{repo: repo}
}

func (a *SchedulingStore) CreateEvent(ctx context.Context, event application.Event) error {
	return mapError(a.repo.CreateEvent(ctx, toPersistenceEvent(event)))
}

func (a *SchedulingStore) GetEvent(ctx context.Context, id string) (application.Event, error) {
	stored, err := a.repo.GetEvent(ctx, id)
	if err != nil {
		return application.Event{}, mapError(err)
	}
	return toApplicationEvent(stored), nil
}

func (a *SchedulingStore) ListRanges(ctx context.Context, eventID string) ([]application.AvailabilityRange, error) {
	stored, err := a.repo.ListRanges(ctx, eventID)
	if err != nil {
		return nil, mapError(err)
	}
	return toApplicationRanges(stored), nil
}

func (a *SchedulingStore) ListSuggestions(ctx context.Context, eventID string) ([]application.Suggestion, error) {
	stored, err := a.repo.ListSuggestions(ctx, eventID)
	if err != nil {
		return nil, mapError(err)
	}
	return toApplicationSuggestions(stored), nil
}

func (a *SchedulingStore) ListUnscheduledEventIDs(ctx context.Context, groupID string) ([]string, error) {
	ids, err := a.repo.ListUnscheduledEventIDs(ctx, groupID)
	if err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}

func (a *SchedulingStore) WithinEvent(ctx context.Context, eventID string, fn application.EventTxFunc) error {
	err := a.repo.WithinEvent(ctx, eventID, func(ctx context.Context, tx persistence.EventTx) error {
		return fn(ctx, &eventTx{tx: tx})
	})
	return mapError(err)
}

type eventTx struct {
	tx persistence.EventTx
}

func (t *eventTx) Event() application.Event {
	return toApplicationEvent(t.tx.Event())
}

func (t *eventTx) UpdateEvent(ctx context.Context, event application.Event) error {
	return mapError(t.tx.UpdateEvent(ctx, toPersistenceEvent(event)))
}

func (t *eventTx) ListRanges(ctx context.Context) ([]application.AvailabilityRange, error) {
	stored, err := t.tx.ListRanges(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return toApplicationRanges(stored), nil
}

func (t *eventTx) ReplaceRanges(ctx context.Context, userID string, ranges []application.AvailabilityRange) error {
	records := make([]persistence.AvailabilityRange, 0, len(ranges))
	for _, r := range ranges {
		records = append(records, persistence.AvailabilityRange{
			ID:            r.ID,
			EventID:       r.EventID,
			UserID:        r.UserID,
			AvailableFrom: r.AvailableFrom,
			AvailableTo:   r.AvailableTo,
		})
	}
	return mapError(t.tx.ReplaceRanges(ctx, userID, records))
}

func (t *eventTx) GetSubmission(ctx context.Context, userID string) (application.Submission, error) {
	stored, err := t.tx.GetSubmission(ctx, userID)
	if err != nil {
		return application.Submission{}, mapError(err)
	}
	return application.Submission{
		EventID:     stored.EventID,
		UserID:      stored.UserID,
		Fingerprint: stored.Fingerprint,
		SubmittedAt: stored.SubmittedAt,
	}, nil
}

func (t *eventTx) UpsertSubmission(ctx context.Context, submission application.Submission) error {
	return mapError(t.tx.UpsertSubmission(ctx, persistence.Submission{
		EventID:     submission.EventID,
		UserID:      submission.UserID,
		Fingerprint: submission.Fingerprint,
		SubmittedAt: submission.SubmittedAt,
	}))
}

func (t *eventTx) ListSuggestions(ctx context.Context) ([]application.Suggestion, error) {
	stored, err := t.tx.ListSuggestions(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return toApplicationSuggestions(stored), nil
}

func (t *eventTx) ReplaceSuggestions(ctx context.Context, suggestions []application.Suggestion) error {
	records := make([]persistence.Suggestion, 0, len(suggestions))
	for _, sg := range suggestions {
		records = append(records, persistence.Suggestion{
			ID:        sg.ID,
			EventID:   sg.EventID,
			StartTime: sg.StartTime,
			Score:     sg.Score,
			Rank:      sg.Rank,
			CreatedAt: sg.CreatedAt,
		})
	}
	return mapError(t.tx.ReplaceSuggestions(ctx, records))
}

// MemberDirectory serves application.MemberDirectory and
// application.MemberRegistry from the local member snapshot.
type MemberDirectory struct {
	repo persistence.MemberRepository
}

// NewMemberDirectory wraps repo.
func NewMemberDirectory(repo persistence.MemberRepository) *MemberDirectory {
	return &MemberDirectory{repo: repo}
}

func (a *MemberDirectory) ListMembers(ctx context.Context, groupID string) ([]application.GroupMember, error) {
	stored, err := a.repo.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, mapError(err)
	}
	members := make([]application.GroupMember, 0, len(stored))
	for _, m := range stored {
		members = append(members, application.GroupMember{
			GroupID: m.GroupID,
			UserID:  m.UserID,
			Role:    application.Role(m.Role),
		})
	}
	return members, nil
}

func (a *MemberDirectory) ReplaceMembers(ctx context.Context, groupID string, members []application.GroupMember) error {
	records := make([]persistence.GroupMember, 0, len(members))
	for _, m := range members {
		records = append(records, persistence.GroupMember{
			GroupID: groupID,
			UserID:  m.UserID,
			Role:    string(m.Role),
		})
	}
	return mapError(a.repo.ReplaceGroupMembers(ctx, groupID, records))
}

// mapError keeps the original error text while exposing the application
// sentinel to errors.Is. Errors that are already application errors, such as
// a ValidationError returned from inside a transaction, pass through.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return fmt.Errorf("%w: %v", application.ErrNotFound, err)
	case errors.Is(err, persistence.ErrConflict):
		return fmt.Errorf("%w: %v", application.ErrConcurrencyConflict, err)
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: %v", application.ErrAlreadyExists, err)
	default:
		return err
	}
}

func toApplicationEvent(model persistence.Event) application.Event {
	return application.Event{
		ID:                    model.ID,
		GroupID:               model.GroupID,
		DurationMinutes:       model.DurationMinutes,
		RangeStart:            cloneTime(model.RangeStart),
		RangeEnd:              cloneTime(model.RangeEnd),
		IsAutoScheduled:       model.IsAutoScheduled,
		StartDate:             cloneTime(model.StartDate),
		EndDate:               cloneTime(model.EndDate),
		SuggestionsComputedAt: cloneTime(model.SuggestionsComputedAt),
		CreatedAt:             model.CreatedAt,
		UpdatedAt:             model.UpdatedAt,
	}
}

func toPersistenceEvent(event application.Event) persistence.Event {
	return persistence.Event{
		ID:                    event.ID,
		GroupID:               event.GroupID,
		DurationMinutes:       event.DurationMinutes,
		RangeStart:            cloneTime(event.RangeStart),
		RangeEnd:              cloneTime(event.RangeEnd),
		IsAutoScheduled:       event.IsAutoScheduled,
		StartDate:             cloneTime(event.StartDate),
		EndDate:               cloneTime(event.EndDate),
		SuggestionsComputedAt: cloneTime(event.SuggestionsComputedAt),
		CreatedAt:             event.CreatedAt,
		UpdatedAt:             event.UpdatedAt,
	}
}

func toApplicationRanges(models []persistence.AvailabilityRange) []application.AvailabilityRange {
	out := make([]application.AvailabilityRange, 0, len(models))
	for _, m := range models {
		out = append(out, application.AvailabilityRange{
			ID:            m.ID,
			EventID:       m.EventID,
			UserID:        m.UserID,
			AvailableFrom: m.AvailableFrom.UTC(),
			AvailableTo:   m.AvailableTo.UTC(),
		})
	}
	return out
}

func toApplicationSuggestions(models []persistence.Suggestion) []application.Suggestion {
	out := make([]application.Suggestion, 0, len(models))
	for _, m := range models {
		out = append(out, application.Suggestion{
			ID:        m.ID,
			EventID:   m.EventID,
			StartTime: m.StartTime.UTC(),
			Score:     m.Score,
			Rank:      m.Rank,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := value.UTC()
	return &clone
}
