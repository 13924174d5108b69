package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/availability-scheduler/internal/application"
	"github.com/example/availability-scheduler/internal/calendar"
	"github.com/example/availability-scheduler/internal/testfixtures"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, opts ...application.SchedulingOption) http.Handler {
	t.Helper()

	factory := testfixtures.NewServiceFactory(
		testfixtures.WithClock(testfixtures.NewClock(testfixtures.ReferenceTime())),
	)
	svc := factory.NewSchedulingService(testfixtures.SchedulingServiceDeps{
		Options: opts,
		Logger:  discardLogger(),
	})
	stamp := testfixtures.ReferenceTime()
	return NewRouter(RouterConfig{
		Events: NewEventHandler(svc, discardLogger(), calendar.WithClock(func() time.Time { return stamp })),
		Groups: NewGroupHandler(svc, discardLogger()),
		Logger: discardLogger(),
	})
}

func do(t *testing.T, handler http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, want, rec.Body.String())
	}
}

func seedGroup(t *testing.T, router http.Handler, eventID string) {
	t.Helper()

	rec := do(t, router, http.MethodPut, "/groups/group-1/members", "", map[string]any{
		"members": []map[string]string{
			{"user_id": "alice", "role": "organizer"},
			{"user_id": "bob", "role": "member"},
		},
	})
	expectStatus(t, rec, http.StatusNoContent)

	rec = do(t, router, http.MethodPost, "/events", "", map[string]any{
		"id":               eventID,
		"group_id":         "group-1",
		"duration_minutes": 60,
	})
	expectStatus(t, rec, http.StatusCreated)
	if loc := rec.Header().Get("Location"); loc != "/events/"+eventID {
		t.Fatalf("Location = %q", loc)
	}
}

func ranges(windows ...[2]string) map[string]any {
	out := make([]map[string]string, 0, len(windows))
	for _, w := range windows {
		out = append(out, map[string]string{"available_from": w[0], "available_to": w[1]})
	}
	return map[string]any{"ranges": out}
}

func TestSchedulingFlow(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	seedGroup(t, router, "evt")

	rec := do(t, router, http.MethodPut, "/events/evt/availability", "alice",
		ranges([2]string{"2024-06-03T09:00:00Z", "2024-06-03T12:00:00Z"}))
	expectStatus(t, rec, http.StatusOK)
	first := decode[submissionResponse](t, rec)
	if first.Status != string(application.StatusAwaitingAvailability) || first.Recomputed {
		t.Fatalf("first submission = %+v", first)
	}

	rec = do(t, router, http.MethodPut, "/events/evt/availability", "bob",
		ranges([2]string{"2024-06-03T12:00:00+02:00", "2024-06-03T13:00:00Z"}))
	expectStatus(t, rec, http.StatusOK)
	second := decode[submissionResponse](t, rec)
	if !second.Recomputed || second.Status != string(application.StatusSuggested) {
		t.Fatalf("second submission = %+v", second)
	}
	if got := second.Ranges[0].AvailableFrom; !got.Equal(testfixtures.At(10, 0)) || got.Location() != time.UTC {
		t.Fatalf("stored range start = %v, want 10:00 UTC", got)
	}

	rec = do(t, router, http.MethodGet, "/events/evt/suggestions", "", nil)
	expectStatus(t, rec, http.StatusOK)
	listed := decode[listSuggestionsResponse](t, rec)
	if len(listed.Suggestions) == 0 {
		t.Fatalf("expected suggestions")
	}
	top := listed.Suggestions[0]
	if top.Rank != 1 || top.Score != 2 || !top.StartTime.Equal(testfixtures.At(10, 0)) {
		t.Fatalf("top suggestion = %+v", top)
	}
	if !top.EndTime.Equal(testfixtures.At(11, 0)) {
		t.Fatalf("top suggestion end = %v", top.EndTime)
	}

	rec = do(t, router, http.MethodGet, "/events/evt/calendar.ics", "", nil)
	expectStatus(t, rec, http.StatusConflict)

	rec = do(t, router, http.MethodPost, "/events/evt/suggestions/"+top.ID+"/choose", "bob", nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = do(t, router, http.MethodPost, "/events/evt/suggestions/"+top.ID+"/choose", "alice", nil)
	expectStatus(t, rec, http.StatusOK)
	chosen := decode[eventDTO](t, rec)
	if chosen.StartDate == nil || !chosen.StartDate.Equal(testfixtures.At(10, 0)) {
		t.Fatalf("start_date = %v", chosen.StartDate)
	}
	if chosen.EndDate == nil || chosen.EndDate.Sub(*chosen.StartDate) != time.Hour {
		t.Fatalf("end_date = %v", chosen.EndDate)
	}

	rec = do(t, router, http.MethodGet, "/events/evt/suggestions", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if cleared := decode[listSuggestionsResponse](t, rec); len(cleared.Suggestions) != 0 {
		t.Fatalf("suggestions after choose = %+v", cleared.Suggestions)
	}

	rec = do(t, router, http.MethodGet, "/events/evt/schedule", "", nil)
	expectStatus(t, rec, http.StatusOK)
	view := decode[scheduleResponse](t, rec)
	if view.Status != string(application.StatusScheduled) || view.MemberCount != 2 || view.SubmittedCount != 2 {
		t.Fatalf("schedule = %+v", view)
	}

	rec = do(t, router, http.MethodGet, "/events/evt/calendar.ics", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "DTSTART:20240603T100000Z") {
		t.Fatalf("calendar body missing DTSTART:\n%s", rec.Body.String())
	}

	rec = do(t, router, http.MethodGet, "/events/evt/availability", "bob", nil)
	expectStatus(t, rec, http.StatusOK)
	if own := decode[listRangesResponse](t, rec); len(own.Ranges) != 1 {
		t.Fatalf("bob ranges = %+v", own.Ranges)
	}
}

func TestManualPolicyRecompute(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, application.WithTriggerPolicy(application.TriggerManual))
	seedGroup(t, router, "evt")

	for _, user := range []string{"alice", "bob"} {
		rec := do(t, router, http.MethodPut, "/events/evt/availability", user,
			ranges([2]string{"2024-06-03T09:00:00Z", "2024-06-03T11:00:00Z"}))
		expectStatus(t, rec, http.StatusOK)
		if resp := decode[submissionResponse](t, rec); resp.Recomputed {
			t.Fatalf("manual policy recomputed on submit")
		}
	}

	rec := do(t, router, http.MethodPost, "/events/evt/suggestions/recompute", "bob", nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = do(t, router, http.MethodPost, "/events/evt/suggestions/recompute", "alice", nil)
	expectStatus(t, rec, http.StatusOK)
	resp := decode[listSuggestionsResponse](t, rec)
	if len(resp.Suggestions) == 0 || !resp.Suggestions[0].StartTime.Equal(testfixtures.At(9, 0)) {
		t.Fatalf("recomputed suggestions = %+v", resp.Suggestions)
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	seedGroup(t, router, "evt")

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		want   int
	}{
		{name: "missing identity", method: http.MethodPut, path: "/events/evt/availability", body: ranges(), want: http.StatusUnauthorized},
		{name: "non member", method: http.MethodPut, path: "/events/evt/availability", user: "mallory", body: ranges(), want: http.StatusForbidden},
		{name: "unknown event", method: http.MethodGet, path: "/events/nope/schedule", want: http.StatusNotFound},
		{name: "unknown event submit", method: http.MethodPut, path: "/events/nope/availability", user: "alice", body: ranges(), want: http.StatusNotFound},
		{name: "malformed body", method: http.MethodPut, path: "/events/evt/availability", user: "alice", body: "{", want: http.StatusBadRequest},
		{
			name: "inverted range", method: http.MethodPut, path: "/events/evt/availability", user: "alice",
			body: ranges([2]string{"2024-06-03T12:00:00Z", "2024-06-03T09:00:00Z"}),
			want: http.StatusUnprocessableEntity,
		},
		{name: "unknown suggestion", method: http.MethodPost, path: "/events/evt/suggestions/missing/choose", user: "alice", want: http.StatusNotFound},
		{name: "recompute before submissions", method: http.MethodPost, path: "/events/evt/suggestions/recompute", user: "alice", want: http.StatusUnprocessableEntity},
		{
			name: "duplicate event", method: http.MethodPost, path: "/events",
			body: map[string]any{"id": "evt", "group_id": "group-1", "duration_minutes": 30},
			want: http.StatusConflict,
		},
		{
			name: "invalid event", method: http.MethodPost, path: "/events",
			body: map[string]any{"group_id": "group-1", "duration_minutes": 0},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "invalid role", method: http.MethodPut, path: "/groups/group-2/members",
			body: map[string]any{"members": []map[string]string{{"user_id": "x", "role": "owner"}}},
			want: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.user, tt.body)
			expectStatus(t, rec, tt.want)
			resp := decode[errorResponse](t, rec)
			if resp.Message == "" {
				t.Fatalf("error response without message: %s", rec.Body.String())
			}
			if tt.want == http.StatusUnprocessableEntity && len(resp.Errors) == 0 {
				t.Fatalf("validation response without field errors: %s", rec.Body.String())
			}
		})
	}
}

type failingEventService struct {
	eventService
	err error
}

func (f failingEventService) GetSchedule(ctx context.Context, eventID string) (application.ScheduleView, error) {
	return application.ScheduleView{}, f.err
}

func TestServiceErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "conflict", err: application.ErrConcurrencyConflict, want: http.StatusServiceUnavailable},
		{name: "timeout", err: context.DeadlineExceeded, want: http.StatusServiceUnavailable},
		{name: "scheduled", err: application.ErrAlreadyScheduled, want: http.StatusConflict},
		{name: "unexpected", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			router := NewRouter(RouterConfig{
				Events: NewEventHandler(failingEventService{err: tt.err}, discardLogger()),
				Logger: discardLogger(),
			})
			rec := do(t, router, http.MethodGet, "/events/evt/schedule", "", nil)
			expectStatus(t, rec, tt.want)
			if tt.err == application.ErrConcurrencyConflict && rec.Header().Get("Retry-After") == "" {
				t.Fatalf("missing Retry-After header")
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	healthy := NewRouter(RouterConfig{Logger: discardLogger()})
	expectStatus(t, do(t, healthy, http.MethodGet, "/healthz", "", nil), http.StatusOK)

	down := NewRouter(RouterConfig{
		Logger: discardLogger(),
		Health: func(context.Context) error { return errors.New("database unavailable") },
	})
	rec := do(t, down, http.MethodGet, "/healthz", "", nil)
	expectStatus(t, rec, http.StatusServiceUnavailable)
	if resp := decode[errorResponse](t, rec); resp.Message != "database unavailable" {
		t.Fatalf("message = %q", resp.Message)
	}
}
