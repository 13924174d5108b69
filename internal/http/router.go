package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker func(ctx context.Context) error

// RouterConfig collects the handlers and middleware settings for NewRouter.
type RouterConfig struct {
	Events         *EventHandler
	Groups         *GroupHandler
	Health         HealthChecker
	Logger         *slog.Logger
	AllowedOrigins []string
	RequestTimeout time.Duration
	Middleware     []func(http.Handler) http.Handler
}

// NewRouter builds the chi router serving the scheduling API.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	responder := newResponder(logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS(cfg.AllowedOrigins))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(req.Context()); err != nil {
				responder.writeError(req.Context(), w, http.StatusServiceUnavailable, err)
				return
			}
		}
		responder.writeJSON(req.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.Groups != nil {
		r.Put("/groups/{groupID}/members", cfg.Groups.SyncMembers)
	}

	if cfg.Events != nil {
		r.Post("/events", cfg.Events.Register)
		r.Route("/events/{eventID}", func(r chi.Router) {
			r.Get("/schedule", cfg.Events.GetSchedule)
			r.Get("/suggestions", cfg.Events.ListSuggestions)
			r.Get("/calendar.ics", cfg.Events.Calendar)

			r.Group(func(r chi.Router) {
				r.Use(RequireUser(logger))
				r.Put("/availability", cfg.Events.SubmitAvailability)
				r.Get("/availability", cfg.Events.ListAvailability)
				r.Post("/suggestions/recompute", cfg.Events.Recompute)
				r.Post("/suggestions/{suggestionID}/choose", cfg.Events.Choose)
			})
		})
	}

	return r
}
