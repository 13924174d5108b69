package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/availability-scheduler/internal/application"
	"github.com/example/availability-scheduler/internal/config"
)

func testConfig(store, sqlitePath string) config.Config {
	return config.Config{
		HTTPPort:        8080,
		Store:           store,
		SQLiteDSN:       sqlitePath,
		SuggestionLimit: 10,
		TriggerPolicy:   application.TriggerImmediate,
		ConflictRetries: 3,
		MemberCacheTTL:  time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
		AllowedOrigins:  []string{"*"},
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: time.Second,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenBackend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(config.StoreSQLite, filepath.Join(t.TempDir(), "scheduler.db"))
		store, err := openBackend(ctx, cfg, discardLogger())
		if err != nil {
			t.Fatalf("openBackend() error = %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	})

	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		store, err := openBackend(ctx, testConfig(config.StoreMemory, ""), discardLogger())
		if err != nil {
			t.Fatalf("openBackend() error = %v", err)
		}
		_ = store.Close()
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()
		if _, err := openBackend(ctx, testConfig("mongo", ""), discardLogger()); err == nil {
			t.Fatalf("expected error for unknown store")
		}
	})
}

func TestHandlerServesAPI(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(config.StoreSQLite, filepath.Join(t.TempDir(), "scheduler.db"))
	store, err := openBackend(ctx, cfg, discardLogger())
	if err != nil {
		t.Fatalf("openBackend() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	server := httptest.NewServer(newHandler(cfg, store, discardLogger()))
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	body := `{"group_id":"group-1","duration_minutes":45}`
	resp, err = http.Post(server.URL+"/events", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /events: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	location := resp.Header.Get("Location")
	if !strings.HasPrefix(location, "/events/") || len(location) <= len("/events/") {
		t.Fatalf("Location = %q", location)
	}

	resp, err = http.Get(server.URL + location + "/schedule")
	if err != nil {
		t.Fatalf("GET schedule: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("schedule status = %d", resp.StatusCode)
	}
	var view struct {
		Status      string `json:"status"`
		MemberCount int    `json:"member_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode schedule: %v", err)
	}
	if view.Status != string(application.StatusAwaitingAvailability) || view.MemberCount != 0 {
		t.Fatalf("schedule = %+v", view)
	}
}
