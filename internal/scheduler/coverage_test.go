package scheduler

import (
	"reflect"
	"testing"
	"time"
)

func TestCompute(t *testing.T) {
	t.Parallel()

	t.Run("two members sharing one hour", func(t *testing.T) {
		t.Parallel()

		got := Compute(map[string][]Interval{
			"alice": {span(10, 0, 12, 0)},
			"bob":   {span(11, 0, 13, 0)},
		}, time.Hour, 10)

		if len(got) == 0 {
			t.Fatalf("expected candidates")
		}
		if !got[0].Start.Equal(at(11, 0)) || got[0].Coverage != 2 {
			t.Fatalf("unexpected top candidate: %+v", got[0])
		}
		if !got[0].End.Equal(at(12, 0)) {
			t.Fatalf("expected end 12:00, got %s", got[0].End)
		}
		for _, c := range got[1:] {
			if c.Coverage >= 2 {
				t.Fatalf("only one full-coverage window expected, got %+v", got)
			}
		}
	})

	t.Run("one candidate per coverage level at the span start", func(t *testing.T) {
		t.Parallel()

		got := Compute(map[string][]Interval{
			"alice": {span(10, 0, 12, 0)},
			"bob":   {span(11, 0, 13, 0)},
		}, time.Hour, 0)

		type slot struct {
			start    string
			coverage int
		}
		gotSlots := make([]slot, 0, len(got))
		for _, c := range got {
			gotSlots = append(gotSlots, slot{start: c.Start.Format("15:04"), coverage: c.Coverage})
		}
		// The single-coverage tail run from 12:00 is part of the 10:00-13:00
		// span, so it does not yield a separate (12:00, 1) candidate.
		want := []slot{{start: "11:00", coverage: 2}, {start: "10:00", coverage: 1}}
		if !reflect.DeepEqual(gotSlots, want) {
			t.Fatalf("expected %+v, got %+v", want, gotSlots)
		}
	})

	t.Run("longer meeting falls back to single coverage", func(t *testing.T) {
		t.Parallel()

		got := Compute(map[string][]Interval{
			"alice": {span(10, 0, 12, 0)},
			"bob":   {span(11, 0, 13, 0)},
		}, 90*time.Minute, 10)

		if len(got) != 1 {
			t.Fatalf("expected exactly one candidate, got %+v", got)
		}
		if !got[0].Start.Equal(at(10, 0)) || got[0].Coverage != 1 {
			t.Fatalf("unexpected candidate: %+v", got[0])
		}
	})

	t.Run("no run long enough", func(t *testing.T) {
		t.Parallel()

		got := Compute(map[string][]Interval{
			"alice": {span(10, 0, 10, 30)},
			"bob":   {span(11, 0, 11, 30)},
		}, time.Hour, 10)
		if len(got) != 0 {
			t.Fatalf("expected no candidates, got %+v", got)
		}
	})

	t.Run("back to back ranges are not simultaneous", func(t *testing.T) {
		t.Parallel()

		got := Compute(map[string][]Interval{
			"alice": {span(9, 0, 10, 0)},
			"bob":   {span(10, 0, 11, 0)},
		}, time.Hour, 10)

		for _, c := range got {
			if c.Coverage > 1 {
				t.Fatalf("touching ranges must not be counted together: %+v", c)
			}
		}
		if len(got) != 1 || !got[0].Start.Equal(at(9, 0)) {
			t.Fatalf("expected a single candidate at 09:00 spanning both, got %+v", got)
		}
		if !got[0].SpanEnd.Equal(at(11, 0)) {
			t.Fatalf("expected span end 11:00, got %s", got[0].SpanEnd)
		}
	})

	t.Run("ranking prefers coverage then earlier start", func(t *testing.T) {
		t.Parallel()

		got := Compute(map[string][]Interval{
			"alice": {span(8, 0, 9, 0), span(13, 0, 15, 0)},
			"bob":   {span(13, 30, 15, 0)},
			"carol": {span(14, 0, 16, 0), span(18, 0, 19, 0)},
		}, time.Hour, 0)

		if len(got) == 0 {
			t.Fatalf("expected candidates")
		}
		if got[0].Coverage != 3 || !got[0].Start.Equal(at(14, 0)) {
			t.Fatalf("unexpected top candidate: %+v", got[0])
		}
		for i := 1; i < len(got); i++ {
			prev, cur := got[i-1], got[i]
			if prev.Coverage < cur.Coverage {
				t.Fatalf("coverage not descending at %d: %+v", i, got)
			}
			if prev.Coverage == cur.Coverage && !prev.Start.Before(cur.Start) {
				t.Fatalf("start not ascending among equal coverage at %d: %+v", i, got)
			}
		}
	})

	t.Run("top n truncates", func(t *testing.T) {
		t.Parallel()

		got := Compute(map[string][]Interval{
			"alice": {span(8, 0, 9, 0), span(10, 0, 11, 0), span(12, 0, 13, 0)},
		}, time.Hour, 2)
		if len(got) != 2 {
			t.Fatalf("expected 2 candidates, got %d", len(got))
		}
		if !got[0].Start.Equal(at(8, 0)) || !got[1].Start.Equal(at(10, 0)) {
			t.Fatalf("unexpected order: %+v", got)
		}
	})

	t.Run("invalid input never fails", func(t *testing.T) {
		t.Parallel()

		if got := Compute(nil, time.Hour, 5); got != nil {
			t.Fatalf("expected nil for empty input, got %+v", got)
		}
		if got := Compute(map[string][]Interval{"alice": {span(9, 0, 10, 0)}}, 0, 5); got != nil {
			t.Fatalf("expected nil for zero duration, got %+v", got)
		}
		got := Compute(map[string][]Interval{"alice": {span(10, 0, 9, 0)}}, time.Minute, 5)
		if len(got) != 0 {
			t.Fatalf("expected invalid intervals to be ignored, got %+v", got)
		}
	})

	t.Run("deterministic across input order", func(t *testing.T) {
		t.Parallel()

		first := map[string][]Interval{
			"alice": {span(9, 0, 12, 0), span(14, 0, 17, 0)},
			"bob":   {span(10, 0, 15, 0)},
			"carol": {span(11, 0, 16, 0)},
			"dave":  {span(9, 30, 10, 30)},
		}
		second := map[string][]Interval{
			"dave":  {span(9, 30, 10, 30)},
			"carol": {span(11, 0, 16, 0)},
			"bob":   {span(10, 0, 15, 0)},
			"alice": {span(14, 0, 17, 0), span(9, 0, 12, 0)},
		}

		want := Compute(first, 45*time.Minute, 0)
		for i := 0; i < 20; i++ {
			if got := Compute(second, 45*time.Minute, 0); !reflect.DeepEqual(got, want) {
				t.Fatalf("result differs between runs:\n got %+v\nwant %+v", got, want)
			}
		}
	})
}

func TestMergeSegments(t *testing.T) {
	t.Parallel()

	merged := mergeSegments([]segment{
		{start: at(9, 0), end: at(10, 0), coverage: 1},
		{start: at(10, 0), end: at(11, 0), coverage: 1},
		{start: at(11, 0), end: at(12, 0), coverage: 2},
	})
	if len(merged) != 2 {
		t.Fatalf("expected 2 runs, got %+v", merged)
	}
	if !merged[0].end.Equal(at(11, 0)) || merged[0].coverage != 1 {
		t.Fatalf("unexpected first run: %+v", merged[0])
	}
}
