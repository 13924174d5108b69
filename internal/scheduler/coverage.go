package scheduler

import (
	"sort"
	"time"
)

// Candidate is a ranked meeting start produced by Compute.
type Candidate struct {
	// Start is the earliest instant of the qualifying span.
	Start time.Time
	// End is Start plus the requested duration.
	End time.Time
	// Coverage is the number of intervals covering every instant of [Start, End).
	Coverage int
	// SpanEnd is where the qualifying span stops; SpanEnd-Start >= duration.
	SpanEnd time.Time
}

// boundary is a single sweep event.
type boundary struct {
	at    time.Time
	delta int
}

// segment is a maximal stretch of constant coverage.
type segment struct {
	start    time.Time
	end      time.Time
	coverage int
}

// Compute sweeps all intervals of all users and returns up to topN candidate
// starts ordered by coverage descending, then start ascending. A topN of zero
// or less returns every candidate.
//
// Ranges of a single user are expected not to overlap; the submission path
// guarantees it, so coverage equals the number of distinct users available.
// Invalid intervals are ignored and a non-positive duration yields no
// candidates. The result is independent of map iteration order.
func Compute(rangesByUser map[string][]Interval, duration time.Duration, topN int) []Candidate {
	if duration <= 0 || len(rangesByUser) == 0 {
		return nil
	}

	segments := mergeSegments(sweep(flatten(rangesByUser)))
	if len(segments) == 0 {
		return nil
	}

	candidates := collectCandidates(segments, duration)
	rank(candidates)

	if topN > 0 && len(candidates) > topN {
		candidates = candidates[:topN]
	}
	return candidates
}

func flatten(rangesByUser map[string][]Interval) []boundary {
	events := make([]boundary, 0)
	for _, ranges := range rangesByUser {
		for _, iv := range ranges {
			if !iv.Valid() {
				continue
			}
			events = append(events,
				boundary{at: iv.From.UTC(), delta: +1},
				boundary{at: iv.To.UTC(), delta: -1},
			)
		}
	}

	// Closing boundaries sort before opening ones at the same instant so that
	// back-to-back intervals never count as simultaneous.
	sort.Slice(events, func(i, j int) bool {
		if events[i].at.Equal(events[j].at) {
			return events[i].delta < events[j].delta
		}
		return events[i].at.Before(events[j].at)
	})
	return events
}

func sweep(events []boundary) []segment {
	if len(events) == 0 {
		return nil
	}

	segments := make([]segment, 0, len(events))
	coverage := 0
	prev := events[0].at

	for _, ev := range events {
		if ev.at.After(prev) {
			segments = append(segments, segment{start: prev, end: ev.at, coverage: coverage})
			prev = ev.at
		}
		coverage += ev.delta
	}
	return segments
}

func mergeSegments(segments []segment) []segment {
	if len(segments) == 0 {
		return nil
	}

	merged := []segment{segments[0]}
	for _, seg := range segments[1:] {
		last := &merged[len(merged)-1]
		if seg.coverage == last.coverage && seg.start.Equal(last.end) {
			last.end = seg.end
			continue
		}
		merged = append(merged, seg)
	}
	return merged
}

// collectCandidates finds, for every coverage level, the maximal spans whose
// coverage never drops below that level and keeps those long enough to host
// the meeting. A start reached at several levels keeps the highest one, which
// is the minimum coverage over [start, start+duration).
func collectCandidates(segments []segment, duration time.Duration) []Candidate {
	maxCoverage := 0
	for _, seg := range segments {
		if seg.coverage > maxCoverage {
			maxCoverage = seg.coverage
		}
	}

	best := make(map[int64]Candidate)
	order := make([]int64, 0)

	record := func(start, end time.Time, level int) {
		if end.Sub(start) < duration {
			return
		}
		key := start.UnixNano()
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
		}
		if !ok || level > existing.Coverage {
			best[key] = Candidate{
				Start:    start,
				End:      start.Add(duration),
				Coverage: level,
				SpanEnd:  end,
			}
		}
	}

	for level := 1; level <= maxCoverage; level++ {
		var spanStart, spanEnd time.Time
		open := false

		for _, seg := range segments {
			if seg.coverage >= level && (!open || seg.start.Equal(spanEnd)) {
				if !open {
					spanStart = seg.start
					open = true
				}
				spanEnd = seg.end
				continue
			}
			if open {
				record(spanStart, spanEnd, level)
				open = false
			}
			if seg.coverage >= level {
				spanStart, spanEnd, open = seg.start, seg.end, true
			}
		}
		if open {
			record(spanStart, spanEnd, level)
		}
	}

	candidates := make([]Candidate, 0, len(order))
	for _, key := range order {
		candidates = append(candidates, best[key])
	}
	return candidates
}

func rank(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Coverage != candidates[j].Coverage {
			return candidates[i].Coverage > candidates[j].Coverage
		}
		return candidates[i].Start.Before(candidates[j].Start)
	})
}
