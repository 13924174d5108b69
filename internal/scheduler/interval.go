// Package scheduler holds the pure time arithmetic behind availability based
// scheduling: half-open intervals and the coverage sweep that ranks candidate
// meeting starts.
package scheduler

import "time"

// Interval is a half-open span [From, To) of instants.
type Interval struct {
	From time.Time
	To   time.Time
}

// Valid reports whether the interval is non-empty. Zero-length, inverted and
// unset intervals are invalid.
func (iv Interval) Valid() bool {
	if iv.From.IsZero() || iv.To.IsZero() {
		return false
	}
	return iv.From.Before(iv.To)
}

// Duration returns the length of the interval, or zero when it is invalid.
func (iv Interval) Duration() time.Duration {
	if !iv.Valid() {
		return 0
	}
	return iv.To.Sub(iv.From)
}

// UTC returns a copy with both endpoints converted to UTC.
func (iv Interval) UTC() Interval {
	return Interval{From: iv.From.UTC(), To: iv.To.UTC()}
}

// Overlaps reports whether the two half-open intervals share any instant.
// Intervals that merely touch (a.To == b.From) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.From.Before(b.To) && b.From.Before(a.To)
}

// ClampedWithin reports whether iv lies inside bound. A nil bound accepts
// every interval.
func ClampedWithin(iv Interval, bound *Interval) bool {
	if bound == nil {
		return true
	}
	return !iv.From.Before(bound.From) && !iv.To.After(bound.To)
}

// FirstOverlap returns the indexes of the first pair of intervals that
// overlap. Every pair is compared, so the answer does not depend on the input
// being sorted.
func FirstOverlap(intervals []Interval) (int, int, bool) {
	for i := 0; i < len(intervals); i++ {
		for j := i + 1; j < len(intervals); j++ {
			if Overlaps(intervals[i], intervals[j]) {
				return i, j, true
			}
		}
	}
	return -1, -1, false
}
