package application

import (
	"context"
	"fmt"
	"time"

	"github.com/example/availability-scheduler/internal/scheduler"
)

// DefaultSuggestionLimit is the number of ranked candidates kept per event.
const DefaultSuggestionLimit = 10

// suggestionEngine runs the coverage calculator over an event's ranges and
// replaces its suggestion set.
type suggestionEngine struct {
	ranges      *AvailabilityStore
	limit       int
	idGenerator func() string
	now         func() time.Time
}

// recompute must run inside the event transaction.
func (e *suggestionEngine) recompute(ctx context.Context, tx EventTx) ([]Suggestion, error) {
	event := tx.Event()

	byUser, err := e.ranges.RangesFor(ctx, tx)
	if err != nil {
		return nil, err
	}

	candidates := scheduler.Compute(byUser, event.Duration(), e.limit)
	computedAt := e.now().UTC()

	suggestions := make([]Suggestion, 0, len(candidates))
	for i, c := range candidates {
		suggestions = append(suggestions, Suggestion{
			ID:        e.idGenerator(),
			EventID:   event.ID,
			StartTime: c.Start,
			EndTime:   c.End,
			Score:     c.Coverage,
			Rank:      i + 1,
			CreatedAt: computedAt,
		})
	}

	if err := tx.ReplaceSuggestions(ctx, suggestions); err != nil {
		return nil, fmt.Errorf("replace suggestions: %w", err)
	}

	event.SuggestionsComputedAt = &computedAt
	if err := tx.UpdateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("mark suggestions computed: %w", err)
	}
	return suggestions, nil
}

// withdraw drops the suggestion set of an event that is no longer complete.
// It reports whether anything was cleared. Must run inside the event transaction.
func (e *suggestionEngine) withdraw(ctx context.Context, tx EventTx) (bool, error) {
	event := tx.Event()

	existing, err := tx.ListSuggestions(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) == 0 && event.SuggestionsComputedAt == nil {
		return false, nil
	}

	if err := tx.ReplaceSuggestions(ctx, nil); err != nil {
		return false, fmt.Errorf("clear suggestions: %w", err)
	}
	event.SuggestionsComputedAt = nil
	if err := tx.UpdateEvent(ctx, event); err != nil {
		return false, fmt.Errorf("mark suggestions withdrawn: %w", err)
	}
	return true, nil
}
