package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SchedulingService drives the scheduling state machine of events: it stores
// availability, decides when suggestions are computed and commits the chosen
// slot. Every mutation runs inside one event transaction.
type SchedulingService struct {
	store       SchedulingStore
	members     MemberDirectory
	registry    MemberRegistry
	ranges      *AvailabilityStore
	engine      *suggestionEngine
	trigger     SuggestionTrigger
	retry       *retryHelper
	cache       *memberCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

type schedulingOptions struct {
	policy         TriggerPolicy
	limit          int
	retry          RetryConfig
	memberCacheTTL time.Duration
	registry       MemberRegistry
	logger         *slog.Logger
}

// SchedulingOption customises a SchedulingService.
type SchedulingOption func(*schedulingOptions)

// WithTriggerPolicy selects how AllMembersSubmitted is handled.
func WithTriggerPolicy(policy TriggerPolicy) SchedulingOption {
	return func(o *schedulingOptions) { o.policy = policy }
}

// WithSuggestionLimit caps the number of stored suggestions. Zero or less keeps all.
func WithSuggestionLimit(limit int) SchedulingOption {
	return func(o *schedulingOptions) { o.limit = limit }
}

// WithRetryConfig overrides the conflict retry policy.
func WithRetryConfig(cfg RetryConfig) SchedulingOption {
	return func(o *schedulingOptions) { o.retry = cfg }
}

// WithMemberCacheTTL enables caching of member lists. Zero disables the cache.
func WithMemberCacheTTL(ttl time.Duration) SchedulingOption {
	return func(o *schedulingOptions) { o.memberCacheTTL = ttl }
}

// WithMemberRegistry enables SyncGroupMembers.
func WithMemberRegistry(registry MemberRegistry) SchedulingOption {
	return func(o *schedulingOptions) { o.registry = registry }
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(logger *slog.Logger) SchedulingOption {
	return func(o *schedulingOptions) { o.logger = logger }
}

// NewSchedulingService wires dependencies for scheduling operations.
func NewSchedulingService(store SchedulingStore, members MemberDirectory, idGenerator func() string, now func() time.Time, opts ...SchedulingOption) *SchedulingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}

	o := schedulingOptions{
		policy: TriggerImmediate,
		limit:  DefaultSuggestionLimit,
		retry:  DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	ranges := NewAvailabilityStore(idGenerator, now)
	engine := &suggestionEngine{
		ranges:      ranges,
		limit:       o.limit,
		idGenerator: idGenerator,
		now:         now,
	}

	return &SchedulingService{
		store:       store,
		members:     members,
		registry:    o.registry,
		ranges:      ranges,
		engine:      engine,
		trigger:     newSuggestionTrigger(o.policy, engine),
		retry:       newRetryHelper(o.retry),
		cache:       newMemberCache(o.memberCacheTTL, 0, now),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(o.logger),
	}
}

func (s *SchedulingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SchedulingService", operation, attrs...)
}

// RegisterEvent records the scheduling fields of an event created by the event service.
func (s *SchedulingService) RegisterEvent(ctx context.Context, params RegisterEventParams) (event Event, err error) {
	if s == nil || s.store == nil {
		return Event{}, fmt.Errorf("scheduling store not configured")
	}

	logger := s.loggerWith(ctx, "RegisterEvent", "group_id", params.GroupID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "event registration failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("event_id", event.ID).InfoContext(ctx, "event registered")
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(params.GroupID) == "" {
		vErr.add("group_id", "group_id is required")
	}
	if params.DurationMinutes <= 0 {
		vErr.add("duration_minutes", "duration_minutes must be positive")
	}
	if (params.RangeStart == nil) != (params.RangeEnd == nil) {
		vErr.add("range", "range_start and range_end must be provided together")
	} else if params.RangeStart != nil && !params.RangeStart.Before(*params.RangeEnd) {
		vErr.add("range", "range_start must be before range_end")
	}
	if vErr.HasErrors() {
		return Event{}, vErr
	}

	id := strings.TrimSpace(params.ID)
	if id == "" {
		id = s.idGenerator()
	}

	now := s.now().UTC()
	event = Event{
		ID:              id,
		GroupID:         strings.TrimSpace(params.GroupID),
		DurationMinutes: params.DurationMinutes,
		RangeStart:      utcPtr(params.RangeStart),
		RangeEnd:        utcPtr(params.RangeEnd),
		IsAutoScheduled: params.IsAutoScheduled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err = s.store.CreateEvent(ctx, event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// SyncGroupMembers replaces the member snapshot of a group.
func (s *SchedulingService) SyncGroupMembers(ctx context.Context, groupID string, members []GroupMember) (err error) {
	if s == nil || s.registry == nil {
		return fmt.Errorf("member registry not configured")
	}

	logger := s.loggerWith(ctx, "SyncGroupMembers", "group_id", groupID, "member_count", len(members))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "member sync failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "members synced")
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(groupID) == "" {
		vErr.add("group_id", "group_id is required")
	}
	seen := make(map[string]struct{}, len(members))
	normalized := make([]GroupMember, 0, len(members))
	for i, m := range members {
		field := fmt.Sprintf("members[%d]", i)
		userID := strings.TrimSpace(m.UserID)
		switch {
		case userID == "":
			vErr.add(field, "user_id is required")
			continue
		case !m.Role.Valid():
			vErr.add(field, "role must be member or organizer")
			continue
		}
		if _, dup := seen[userID]; dup {
			vErr.add(field, "duplicate user_id")
			continue
		}
		seen[userID] = struct{}{}
		normalized = append(normalized, GroupMember{GroupID: groupID, UserID: userID, Role: m.Role})
	}
	if vErr.HasErrors() {
		return vErr
	}

	if err = s.registry.ReplaceMembers(ctx, groupID, normalized); err != nil {
		return err
	}
	s.cache.Invalidate(groupID)

	memberIDs := make([]string, 0, len(normalized))
	for _, m := range normalized {
		memberIDs = append(memberIDs, m.UserID)
	}
	return s.reconcileGroup(ctx, groupID, memberIDs)
}

// reconcileGroup re-evaluates every unscheduled event of a group against a new
// member set. Events that lost completeness drop their suggestions; events
// that became complete are handed to the trigger.
func (s *SchedulingService) reconcileGroup(ctx context.Context, groupID string, memberIDs []string) error {
	if s.store == nil {
		return nil
	}
	eventIDs, err := s.store.ListUnscheduledEventIDs(ctx, groupID)
	if err != nil {
		return fmt.Errorf("list events of %s: %w", groupID, err)
	}

	logger := s.loggerWith(ctx, "SyncGroupMembers", "group_id", groupID)
	for _, eventID := range eventIDs {
		var withdrawn, recomputed bool
		err := s.retry.withRetry(ctx, func() error {
			withdrawn, recomputed = false, false
			return s.store.WithinEvent(ctx, eventID, func(ctx context.Context, tx EventTx) error {
				current := tx.Event()
				if current.Scheduled() {
					return nil
				}
				all, err := s.ranges.AllMembersSubmitted(ctx, tx, memberIDs)
				if err != nil {
					return err
				}
				switch {
				case !all:
					withdrawn, err = s.engine.withdraw(ctx, tx)
				case current.SuggestionsComputedAt == nil:
					recomputed, err = s.trigger.OnAllMembersSubmitted(ctx, tx, AllMembersSubmitted{
						EventID:   current.ID,
						MemberIDs: memberIDs,
					})
				}
				return err
			})
		})
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reconcile event %s: %w", eventID, err)
		}
		if withdrawn || recomputed {
			logger.InfoContext(ctx, "event reconciled with member set",
				"event_id", eventID, "withdrawn", withdrawn, "recomputed", recomputed)
		}
	}
	return nil
}

// ResolvePrincipal looks up the caller's role in the group owning the event.
// Non-members get a Principal without a role.
func (s *SchedulingService) ResolvePrincipal(ctx context.Context, eventID, userID string) (Principal, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return Principal{}, err
	}
	members, err := s.listMembers(ctx, event.GroupID)
	if err != nil {
		return Principal{}, err
	}
	principal := Principal{UserID: userID}
	for _, m := range members {
		if m.UserID == userID {
			principal.Role = m.Role
			break
		}
	}
	return principal, nil
}

// SubmitAvailability replaces the caller's ranges and, once every member has
// submitted, hands the event to the suggestion trigger in the same transaction.
func (s *SchedulingService) SubmitAvailability(ctx context.Context, params SubmitAvailabilityParams) (result SubmissionResult, err error) {
	if s == nil || s.store == nil {
		return SubmissionResult{}, fmt.Errorf("scheduling store not configured")
	}

	logger := s.loggerWith(ctx, "SubmitAvailability",
		"event_id", params.EventID,
		"user_id", params.Principal.UserID,
		"range_count", len(params.Ranges),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "availability submission failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"unchanged", result.Unchanged,
			"recomputed", result.Recomputed,
			"withdrawn", result.Withdrawn,
			"status", result.Status,
			"suggestion_count", len(result.Suggestions),
		).InfoContext(ctx, "availability submitted")
	}()

	if !params.Principal.IsMember() {
		return SubmissionResult{}, ErrUnauthorized
	}

	event, err := s.store.GetEvent(ctx, params.EventID)
	if err != nil {
		return SubmissionResult{}, err
	}
	memberIDs, err := s.memberIDs(ctx, event.GroupID)
	if err != nil {
		return SubmissionResult{}, err
	}

	err = s.retry.withRetry(ctx, func() error {
		result = SubmissionResult{}
		return s.store.WithinEvent(ctx, params.EventID, func(ctx context.Context, tx EventTx) error {
			outcome, err := s.ranges.Submit(ctx, tx, params.Principal.UserID, params.Ranges)
			if err != nil {
				return err
			}
			result.Ranges = outcome.Ranges
			result.Unchanged = outcome.Unchanged

			current := tx.Event()
			allSubmitted := false
			if !current.Scheduled() {
				allSubmitted, err = s.ranges.AllMembersSubmitted(ctx, tx, memberIDs)
				if err != nil {
					return err
				}
				alreadyComputed := outcome.Unchanged && current.SuggestionsComputedAt != nil
				if allSubmitted && !alreadyComputed {
					result.Recomputed, err = s.trigger.OnAllMembersSubmitted(ctx, tx, AllMembersSubmitted{
						EventID:     current.ID,
						SubmittedBy: params.Principal.UserID,
						MemberIDs:   memberIDs,
					})
					if err != nil {
						return err
					}
				} else if !allSubmitted {
					result.Withdrawn, err = s.engine.withdraw(ctx, tx)
					if err != nil {
						return err
					}
				}
			}

			suggestions, err := tx.ListSuggestions(ctx)
			if err != nil {
				return err
			}
			result.Event = tx.Event()
			result.Suggestions = withEndTimes(suggestions, result.Event)
			result.Status = DeriveStatus(result.Event, allSubmitted, len(suggestions))
			return nil
		})
	})
	if err != nil {
		return SubmissionResult{}, err
	}
	return result, nil
}

// ListMemberAvailability returns the ranges the caller has stored for the event.
func (s *SchedulingService) ListMemberAvailability(ctx context.Context, eventID string, principal Principal) ([]AvailabilityRange, error) {
	if !principal.IsMember() {
		return nil, ErrUnauthorized
	}
	ranges, err := s.store.ListRanges(ctx, eventID)
	if err != nil {
		s.loggerWith(ctx, "ListMemberAvailability", "event_id", eventID).
			ErrorContext(ctx, "failed to list availability", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return filterByUser(ranges, principal.UserID), nil
}

// ListSuggestions returns the current ranked suggestions of an event.
func (s *SchedulingService) ListSuggestions(ctx context.Context, eventID string) ([]Suggestion, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	suggestions, err := s.store.ListSuggestions(ctx, eventID)
	if err != nil {
		s.loggerWith(ctx, "ListSuggestions", "event_id", eventID).
			ErrorContext(ctx, "failed to list suggestions", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return withEndTimes(suggestions, event), nil
}

// ChooseSuggestion commits one of the event's current suggestions. The
// suggestion must belong to the event; unknown ids fail with ErrNotFound and
// leave the event untouched.
func (s *SchedulingService) ChooseSuggestion(ctx context.Context, params ChooseSuggestionParams) (event Event, err error) {
	logger := s.loggerWith(ctx, "ChooseSuggestion",
		"event_id", params.EventID,
		"suggestion_id", params.SuggestionID,
		"user_id", params.Principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "suggestion choice failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("start_date", event.StartDate, "end_date", event.EndDate).InfoContext(ctx, "event scheduled")
	}()

	if !params.Principal.IsOrganizer() {
		return Event{}, ErrUnauthorized
	}

	err = s.retry.withRetry(ctx, func() error {
		return s.store.WithinEvent(ctx, params.EventID, func(ctx context.Context, tx EventTx) error {
			suggestions, err := tx.ListSuggestions(ctx)
			if err != nil {
				return err
			}

			var chosen *Suggestion
			for i := range suggestions {
				if suggestions[i].ID == params.SuggestionID {
					chosen = &suggestions[i]
					break
				}
			}
			if chosen == nil {
				return fmt.Errorf("suggestion %s: %w", params.SuggestionID, ErrNotFound)
			}

			updated := tx.Event()
			start := chosen.StartTime.UTC()
			end := start.Add(updated.Duration())
			updated.StartDate = &start
			updated.EndDate = &end
			updated.IsAutoScheduled = false

			if err := tx.UpdateEvent(ctx, updated); err != nil {
				return err
			}
			if err := tx.ReplaceSuggestions(ctx, nil); err != nil {
				return err
			}
			event = tx.Event()
			return nil
		})
	})
	if err != nil {
		return Event{}, err
	}
	return event, nil
}

// RecomputeSuggestions reruns the coverage calculator on demand. It is the
// only way suggestions appear under the manual trigger policy.
func (s *SchedulingService) RecomputeSuggestions(ctx context.Context, eventID string, principal Principal) (suggestions []Suggestion, err error) {
	logger := s.loggerWith(ctx, "RecomputeSuggestions", "event_id", eventID, "user_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "suggestion recompute failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("suggestion_count", len(suggestions)).InfoContext(ctx, "suggestions recomputed")
	}()

	if !principal.IsOrganizer() {
		return nil, ErrUnauthorized
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	memberIDs, err := s.memberIDs(ctx, event.GroupID)
	if err != nil {
		return nil, err
	}

	err = s.retry.withRetry(ctx, func() error {
		return s.store.WithinEvent(ctx, eventID, func(ctx context.Context, tx EventTx) error {
			current := tx.Event()
			if current.Scheduled() {
				return ErrAlreadyScheduled
			}
			all, err := s.ranges.AllMembersSubmitted(ctx, tx, memberIDs)
			if err != nil {
				return err
			}
			if !all {
				vErr := &ValidationError{}
				vErr.add("availability", "every member must submit availability first")
				return vErr
			}
			computed, err := s.engine.recompute(ctx, tx)
			if err != nil {
				return err
			}
			suggestions = withEndTimes(computed, tx.Event())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return suggestions, nil
}

// GetSchedule summarises the scheduling state of an event.
func (s *SchedulingService) GetSchedule(ctx context.Context, eventID string) (ScheduleView, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return ScheduleView{}, err
	}
	memberIDs, err := s.memberIDs(ctx, event.GroupID)
	if err != nil {
		return ScheduleView{}, err
	}
	ranges, err := s.store.ListRanges(ctx, eventID)
	if err != nil {
		return ScheduleView{}, err
	}
	suggestions, err := s.store.ListSuggestions(ctx, eventID)
	if err != nil {
		return ScheduleView{}, err
	}

	byUser := groupByUser(ranges)
	return ScheduleView{
		Event:           event,
		Status:          DeriveStatus(event, allSubmitted(byUser, memberIDs), len(suggestions)),
		MemberCount:     len(memberIDs),
		SubmittedCount:  countSubmitted(byUser, memberIDs),
		SuggestionCount: len(suggestions),
	}, nil
}

// ScheduledEvent returns the event when it has been finalized.
func (s *SchedulingService) ScheduledEvent(ctx context.Context, eventID string) (Event, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return Event{}, err
	}
	if !event.Scheduled() {
		return Event{}, ErrNotScheduled
	}
	return event, nil
}

func (s *SchedulingService) listMembers(ctx context.Context, groupID string) ([]GroupMember, error) {
	if members, ok := s.cache.Get(groupID); ok {
		return members, nil
	}
	if s.members == nil {
		return nil, fmt.Errorf("member directory not configured")
	}
	members, err := s.members.ListMembers(ctx, groupID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list members of %s: %w", groupID, err)
	}
	s.cache.Store(groupID, members)
	return members, nil
}

func (s *SchedulingService) memberIDs(ctx context.Context, groupID string) ([]string, error) {
	members, err := s.listMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

func withEndTimes(suggestions []Suggestion, event Event) []Suggestion {
	out := make([]Suggestion, len(suggestions))
	for i, sg := range suggestions {
		sg.EndTime = sg.StartTime.Add(event.Duration())
		out[i] = sg
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
