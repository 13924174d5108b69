package application

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/example/availability-scheduler/internal/scheduler"
)

// maxRangesPerSubmission bounds a single batch; the overlap check is quadratic.
const maxRangesPerSubmission = 200

// AvailabilityStore owns the per-member range lists of an event. Every method
// runs inside the caller's event transaction.
type AvailabilityStore struct {
	idGenerator func() string
	now         func() time.Time
}

// NewAvailabilityStore wires the identifier and clock sources.
func NewAvailabilityStore(idGenerator func() string, now func() time.Time) *AvailabilityStore {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AvailabilityStore{idGenerator: idGenerator, now: now}
}

// SubmitOutcome describes the effect of a submission.
type SubmitOutcome struct {
	Ranges    []AvailabilityRange
	Unchanged bool
}

// Submit validates the batch and replaces every stored range of the user. A
// batch identical to the previous one leaves storage untouched.
func (a *AvailabilityStore) Submit(ctx context.Context, tx EventTx, userID string, ranges []scheduler.Interval) (SubmitOutcome, error) {
	event := tx.Event()

	normalized, vErr := validateRanges(event, ranges)
	if vErr.HasErrors() {
		return SubmitOutcome{}, vErr
	}

	fingerprint := fingerprintRanges(normalized)

	previous, err := tx.GetSubmission(ctx, userID)
	switch {
	case err == nil && previous.Fingerprint == fingerprint:
		stored, err := a.rangesOf(ctx, tx, userID)
		if err != nil {
			return SubmitOutcome{}, err
		}
		return SubmitOutcome{Ranges: stored, Unchanged: true}, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return SubmitOutcome{}, fmt.Errorf("load submission: %w", err)
	}

	records := make([]AvailabilityRange, 0, len(normalized))
	for _, iv := range normalized {
		records = append(records, AvailabilityRange{
			ID:            a.idGenerator(),
			EventID:       event.ID,
			UserID:        userID,
			AvailableFrom: iv.From,
			AvailableTo:   iv.To,
		})
	}

	if err := tx.ReplaceRanges(ctx, userID, records); err != nil {
		return SubmitOutcome{}, fmt.Errorf("replace ranges: %w", err)
	}
	if err := tx.UpsertSubmission(ctx, Submission{
		EventID:     event.ID,
		UserID:      userID,
		Fingerprint: fingerprint,
		SubmittedAt: a.now().UTC(),
	}); err != nil {
		return SubmitOutcome{}, fmt.Errorf("record submission: %w", err)
	}

	return SubmitOutcome{Ranges: records}, nil
}

// AllMembersSubmitted reports whether every member holds at least one stored
// range. A group without members never counts as complete.
func (a *AvailabilityStore) AllMembersSubmitted(ctx context.Context, tx EventTx, memberIDs []string) (bool, error) {
	byUser, err := a.RangesFor(ctx, tx)
	if err != nil {
		return false, err
	}
	return allSubmitted(byUser, memberIDs), nil
}

// RangesFor groups the stored ranges of the event by user.
func (a *AvailabilityStore) RangesFor(ctx context.Context, tx EventTx) (map[string][]scheduler.Interval, error) {
	ranges, err := tx.ListRanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ranges: %w", err)
	}
	return groupByUser(ranges), nil
}

func (a *AvailabilityStore) rangesOf(ctx context.Context, tx EventTx, userID string) ([]AvailabilityRange, error) {
	ranges, err := tx.ListRanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ranges: %w", err)
	}
	return filterByUser(ranges, userID), nil
}

// validateRanges converts the batch to UTC and checks validity, pairwise
// overlap and, for auto-scheduled events, the search bound.
func validateRanges(event Event, ranges []scheduler.Interval) ([]scheduler.Interval, *ValidationError) {
	vErr := &ValidationError{}

	if len(ranges) > maxRangesPerSubmission {
		vErr.add("ranges", fmt.Sprintf("at most %d ranges may be submitted at once", maxRangesPerSubmission))
		return nil, vErr
	}

	var bound *scheduler.Interval
	if event.IsAutoScheduled {
		bound = event.Bound()
	}

	normalized := make([]scheduler.Interval, 0, len(ranges))
	for i, iv := range ranges {
		field := fmt.Sprintf("ranges[%d]", i)
		iv = iv.UTC()
		if !iv.Valid() {
			vErr.add(field, "available_from must be before available_to")
			continue
		}
		if !scheduler.ClampedWithin(iv, bound) {
			vErr.add(field, "range must lie within the event's search window")
			continue
		}
		normalized = append(normalized, iv)
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	if i, j, overlap := scheduler.FirstOverlap(normalized); overlap {
		vErr.add(fmt.Sprintf("ranges[%d]", j), fmt.Sprintf("overlaps ranges[%d]", i))
		return nil, vErr
	}

	sort.Slice(normalized, func(i, j int) bool { return normalized[i].From.Before(normalized[j].From) })
	return normalized, vErr
}

// fingerprintRanges digests a sorted UTC batch.
func fingerprintRanges(ranges []scheduler.Interval) string {
	buf := make([]byte, 0, len(ranges)*64)
	for _, iv := range ranges {
		buf = iv.From.AppendFormat(buf, time.RFC3339Nano)
		buf = append(buf, '/')
		buf = iv.To.AppendFormat(buf, time.RFC3339Nano)
		buf = append(buf, '\n')
	}
	sum := blake2b.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

func groupByUser(ranges []AvailabilityRange) map[string][]scheduler.Interval {
	byUser := make(map[string][]scheduler.Interval)
	for _, r := range ranges {
		byUser[r.UserID] = append(byUser[r.UserID], r.Interval())
	}
	return byUser
}

func filterByUser(ranges []AvailabilityRange, userID string) []AvailabilityRange {
	out := make([]AvailabilityRange, 0)
	for _, r := range ranges {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

func allSubmitted(byUser map[string][]scheduler.Interval, memberIDs []string) bool {
	return len(memberIDs) > 0 && countSubmitted(byUser, memberIDs) == len(memberIDs)
}

func countSubmitted(byUser map[string][]scheduler.Interval, memberIDs []string) int {
	count := 0
	for _, id := range memberIDs {
		if len(byUser[id]) > 0 {
			count++
		}
	}
	return count
}
