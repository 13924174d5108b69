package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/availability-scheduler/internal/application"
	"github.com/example/availability-scheduler/internal/calendar"
	"github.com/example/availability-scheduler/internal/scheduler"
)

type eventService interface {
	RegisterEvent(ctx context.Context, params application.RegisterEventParams) (application.Event, error)
	ResolvePrincipal(ctx context.Context, eventID, userID string) (application.Principal, error)
	SubmitAvailability(ctx context.Context, params application.SubmitAvailabilityParams) (application.SubmissionResult, error)
	ListMemberAvailability(ctx context.Context, eventID string, principal application.Principal) ([]application.AvailabilityRange, error)
	ListSuggestions(ctx context.Context, eventID string) ([]application.Suggestion, error)
	RecomputeSuggestions(ctx context.Context, eventID string, principal application.Principal) ([]application.Suggestion, error)
	ChooseSuggestion(ctx context.Context, params application.ChooseSuggestionParams) (application.Event, error)
	GetSchedule(ctx context.Context, eventID string) (application.ScheduleView, error)
	ScheduledEvent(ctx context.Context, eventID string) (application.Event, error)
}

// EventHandler serves the per-event scheduling endpoints listed in doc.go.
type EventHandler struct {
	service      eventService
	logger       *slog.Logger
	responder    responder
	calendarOpts []calendar.Option
}

// NewEventHandler wires the scheduling service; calendarOpts tune the iCalendar export.
func NewEventHandler(service eventService, logger *slog.Logger, calendarOpts ...calendar.Option) *EventHandler {
	logger = defaultLogger(logger)
	return &EventHandler{
		service:      service,
		logger:       logger,
		responder:    newResponder(logger),
		calendarOpts: calendarOpts,
	}
}

func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := h.scope(r, "Register")

	var req registerEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	event, err := h.service.RegisterEvent(ctx, req.toParams())
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	w.Header().Set("Location", "/events/"+event.ID)
	h.responder.writeJSON(ctx, w, http.StatusCreated, toEventDTO(event))
}

func (h *EventHandler) SubmitAvailability(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := h.scope(r, "SubmitAvailability")

	eventID := pathParam(r, "eventID")
	if eventID == "" {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	var req submitAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, ok := h.principal(ctx, w, eventID)
	if !ok {
		return
	}

	result, err := h.service.SubmitAvailability(ctx, application.SubmitAvailabilityParams{
		EventID:   eventID,
		Principal: principal,
		Ranges:    req.intervals(),
	})
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	h.responder.writeJSON(ctx, w, http.StatusOK, submissionResponse{
		Event:       toEventDTO(result.Event),
		Ranges:      toRangeDTOs(result.Ranges),
		Unchanged:   result.Unchanged,
		Recomputed:  result.Recomputed,
		Withdrawn:   result.Withdrawn,
		Status:      string(result.Status),
		Suggestions: toSuggestionDTOs(result.Suggestions),
	})
}

func (h *EventHandler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := h.scope(r, "ListAvailability")

	eventID := pathParam(r, "eventID")
	principal, ok := h.principal(ctx, w, eventID)
	if !ok {
		return
	}

	ranges, err := h.service.ListMemberAvailability(ctx, eventID, principal)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, listRangesResponse{Ranges: toRangeDTOs(ranges)})
}

func (h *EventHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := h.scope(r, "GetSchedule")

	view, err := h.service.GetSchedule(ctx, pathParam(r, "eventID"))
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, scheduleResponse{
		Event:           toEventDTO(view.Event),
		Status:          string(view.Status),
		MemberCount:     view.MemberCount,
		SubmittedCount:  view.SubmittedCount,
		SuggestionCount: view.SuggestionCount,
	})
}

func (h *EventHandler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := h.scope(r, "ListSuggestions")

	suggestions, err := h.service.ListSuggestions(ctx, pathParam(r, "eventID"))
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, listSuggestionsResponse{Suggestions: toSuggestionDTOs(suggestions)})
}

func (h *EventHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := h.scope(r, "Recompute")

	eventID := pathParam(r, "eventID")
	principal, ok := h.principal(ctx, w, eventID)
	if !ok {
		return
	}

	suggestions, err := h.service.RecomputeSuggestions(ctx, eventID, principal)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, listSuggestionsResponse{Suggestions: toSuggestionDTOs(suggestions)})
}

func (h *EventHandler) Choose(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := h.scope(r, "Choose")

	eventID := pathParam(r, "eventID")
	suggestionID := pathParam(r, "suggestionID")
	if suggestionID == "" {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidSuggestID)
		return
	}
	principal, ok := h.principal(ctx, w, eventID)
	if !ok {
		return
	}

	event, err := h.service.ChooseSuggestion(ctx, application.ChooseSuggestionParams{
		EventID:      eventID,
		SuggestionID: suggestionID,
		Principal:    principal,
	})
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toEventDTO(event))
}

func (h *EventHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := h.scope(r, "Calendar")

	event, err := h.service.ScheduledEvent(ctx, pathParam(r, "eventID"))
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	body, err := calendar.Export(event, h.calendarOpts...)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", event.ID+".ics"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.responder.loggerFor(ctx).ErrorContext(ctx, "failed to write calendar", "error", err)
	}
}

// scope attaches a handler logger to the request context.
func (h *EventHandler) scope(r *http.Request, operation string) context.Context {
	attrs := []any{}
	if id := pathParam(r, "eventID"); id != "" {
		attrs = append(attrs, "event_id", id)
	}
	logger := handlerLogger(r.Context(), h.logger, "EventHandler", operation, attrs...)
	return ContextWithLogger(r.Context(), logger)
}

// principal resolves the caller's role in the event's group. It writes the
// error response itself and reports false on failure.
func (h *EventHandler) principal(ctx context.Context, w http.ResponseWriter, eventID string) (application.Principal, bool) {
	if eventID == "" {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidEventID)
		return application.Principal{}, false
	}
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		h.responder.writeError(ctx, w, http.StatusUnauthorized, errMissingUserID)
		return application.Principal{}, false
	}
	principal, err := h.service.ResolvePrincipal(ctx, eventID, userID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return application.Principal{}, false
	}
	return principal, true
}

type registerEventRequest struct {
	ID              string     `json:"id"`
	GroupID         string     `json:"group_id"`
	DurationMinutes int        `json:"duration_minutes"`
	RangeStart      *time.Time `json:"range_start"`
	RangeEnd        *time.Time `json:"range_end"`
	IsAutoScheduled bool       `json:"is_auto_scheduled"`
}

func (r registerEventRequest) toParams() application.RegisterEventParams {
	return application.RegisterEventParams{
		ID:              r.ID,
		GroupID:         r.GroupID,
		DurationMinutes: r.DurationMinutes,
		RangeStart:      r.RangeStart,
		RangeEnd:        r.RangeEnd,
		IsAutoScheduled: r.IsAutoScheduled,
	}
}

type rangeRequest struct {
	AvailableFrom time.Time `json:"available_from"`
	AvailableTo   time.Time `json:"available_to"`
}

type submitAvailabilityRequest struct {
	Ranges []rangeRequest `json:"ranges"`
}

func (r submitAvailabilityRequest) intervals() []scheduler.Interval {
	out := make([]scheduler.Interval, 0, len(r.Ranges))
	for _, rr := range r.Ranges {
		out = append(out, scheduler.Interval{From: rr.AvailableFrom, To: rr.AvailableTo})
	}
	return out
}

type eventDTO struct {
	ID                    string     `json:"id"`
	GroupID               string     `json:"group_id"`
	DurationMinutes       int        `json:"duration_minutes"`
	RangeStart            *time.Time `json:"range_start"`
	RangeEnd              *time.Time `json:"range_end"`
	IsAutoScheduled       bool       `json:"is_auto_scheduled"`
	StartDate             *time.Time `json:"start_date"`
	EndDate               *time.Time `json:"end_date"`
	SuggestionsComputedAt *time.Time `json:"suggestions_computed_at,omitempty"`
}

func toEventDTO(e application.Event) eventDTO {
	return eventDTO{
		ID:                    e.ID,
		GroupID:               e.GroupID,
		DurationMinutes:       e.DurationMinutes,
		RangeStart:            utc(e.RangeStart),
		RangeEnd:              utc(e.RangeEnd),
		IsAutoScheduled:       e.IsAutoScheduled,
		StartDate:             utc(e.StartDate),
		EndDate:               utc(e.EndDate),
		SuggestionsComputedAt: utc(e.SuggestionsComputedAt),
	}
}

type rangeDTO struct {
	ID            string    `json:"id"`
	AvailableFrom time.Time `json:"available_from"`
	AvailableTo   time.Time `json:"available_to"`
}

func toRangeDTOs(ranges []application.AvailabilityRange) []rangeDTO {
	out := make([]rangeDTO, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, rangeDTO{ID: r.ID, AvailableFrom: r.AvailableFrom.UTC(), AvailableTo: r.AvailableTo.UTC()})
	}
	return out
}

type suggestionDTO struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Score     int       `json:"score"`
	Rank      int       `json:"rank"`
}

func toSuggestionDTOs(suggestions []application.Suggestion) []suggestionDTO {
	out := make([]suggestionDTO, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, suggestionDTO{
			ID:        s.ID,
			StartTime: s.StartTime.UTC(),
			EndTime:   s.EndTime.UTC(),
			Score:     s.Score,
			Rank:      s.Rank,
		})
	}
	return out
}

type submissionResponse struct {
	Event       eventDTO        `json:"event"`
	Ranges      []rangeDTO      `json:"ranges"`
	Unchanged   bool            `json:"unchanged"`
	Recomputed  bool            `json:"recomputed"`
	Withdrawn   bool            `json:"withdrawn"`
	Status      string          `json:"status"`
	Suggestions []suggestionDTO `json:"suggestions"`
}

type listRangesResponse struct {
	Ranges []rangeDTO `json:"ranges"`
}

type listSuggestionsResponse struct {
	Suggestions []suggestionDTO `json:"suggestions"`
}

type scheduleResponse struct {
	Event           eventDTO `json:"event"`
	Status          string   `json:"status"`
	MemberCount     int      `json:"member_count"`
	SubmittedCount  int      `json:"submitted_count"`
	SuggestionCount int      `json:"suggestion_count"`
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
