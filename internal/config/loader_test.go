package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/availability-scheduler/internal/application"
)

var allKeys = []string{
	"HTTP_PORT", "STORE", "SQLITE_DSN", "POSTGRES_DSN", "SUGGESTION_LIMIT",
	"TRIGGER_POLICY", "CONFLICT_RETRIES", "MEMBER_CACHE_TTL", "LOG_LEVEL",
	"LOG_FORMAT", "ALLOWED_ORIGINS", "REQUEST_TIMEOUT", "SHUTDOWN_TIMEOUT", "CONFIG_FILE",
}

// clearEnv blanks every recognised variable; viper treats empty values as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(EnvPrefix+"_"+key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load(WithEnvFile(""))
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.Store != StoreSQLite || cfg.SQLiteDSN != "data/scheduler.db" {
			t.Fatalf("unexpected store defaults: %q %q", cfg.Store, cfg.SQLiteDSN)
		}
		if cfg.SuggestionLimit != 10 || cfg.ConflictRetries != 3 {
			t.Fatalf("unexpected limits: %d %d", cfg.SuggestionLimit, cfg.ConflictRetries)
		}
		if cfg.TriggerPolicy != application.TriggerImmediate {
			t.Fatalf("unexpected trigger policy %q", cfg.TriggerPolicy)
		}
		if cfg.MemberCacheTTL != 30*time.Second || cfg.RequestTimeout != 15*time.Second {
			t.Fatalf("unexpected durations: %s %s", cfg.MemberCacheTTL, cfg.RequestTimeout)
		}
		if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
			t.Fatalf("unexpected logging: %q %q", cfg.LogLevel, cfg.LogFormat)
		}
		if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
			t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SCHEDULER_HTTP_PORT", "9090")
		t.Setenv("SCHEDULER_STORE", "Memory")
		t.Setenv("SCHEDULER_TRIGGER_POLICY", "manual")
		t.Setenv("SCHEDULER_CONFLICT_RETRIES", "0")
		t.Setenv("SCHEDULER_MEMBER_CACHE_TTL", "1m")
		t.Setenv("SCHEDULER_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

		cfg, err := Load(WithEnvFile(""))
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 {
			t.Fatalf("expected HTTP port 9090, got %d", cfg.HTTPPort)
		}
		if cfg.Store != StoreMemory {
			t.Fatalf("expected memory store, got %q", cfg.Store)
		}
		if cfg.TriggerPolicy != application.TriggerManual {
			t.Fatalf("expected manual policy, got %q", cfg.TriggerPolicy)
		}
		if cfg.ConflictRetries != 0 {
			t.Fatalf("expected zero retries, got %d", cfg.ConflictRetries)
		}
		if cfg.MemberCacheTTL != time.Minute {
			t.Fatalf("expected member cache TTL 1m, got %s", cfg.MemberCacheTTL)
		}
		if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
			t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
		}
	})

	t.Run("aggregates missing and invalid values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SCHEDULER_HTTP_PORT", "eighty")
		t.Setenv("SCHEDULER_LOG_LEVEL", "loud")
		t.Setenv("SCHEDULER_STORE", "postgres")

		_, err := Load(WithEnvFile(""))
		if err == nil {
			t.Fatalf("expected error")
		}
		msg := err.Error()
		if !strings.Contains(msg, "missing required configuration: SCHEDULER_POSTGRES_DSN") {
			t.Fatalf("unexpected error message: %q", msg)
		}
		if !strings.Contains(msg, "invalid configuration values: SCHEDULER_HTTP_PORT, SCHEDULER_LOG_LEVEL") {
			t.Fatalf("unexpected error message: %q", msg)
		}
	})

	t.Run("rejects unknown store and policy", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SCHEDULER_STORE", "mongo")
		t.Setenv("SCHEDULER_TRIGGER_POLICY", "nightly")

		_, err := Load(WithEnvFile(""))
		if err == nil || !strings.Contains(err.Error(), "SCHEDULER_TRIGGER_POLICY, SCHEDULER_STORE") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("environment overrides dotenv file", func(t *testing.T) {
		clearEnv(t)
		envFile := writeFile(t, ".env", "SCHEDULER_HTTP_PORT=7070\nSCHEDULER_SUGGESTION_LIMIT=5\nOTHER_SERVICE_PORT=1\n")
		t.Setenv("SCHEDULER_SUGGESTION_LIMIT", "3")

		cfg, err := Load(WithEnvFile(envFile))
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTPPort != 7070 {
			t.Fatalf("expected port from .env, got %d", cfg.HTTPPort)
		}
		if cfg.SuggestionLimit != 3 {
			t.Fatalf("expected environment to win, got %d", cfg.SuggestionLimit)
		}
	})

	t.Run("missing dotenv file is ignored", func(t *testing.T) {
		clearEnv(t)
		if _, err := Load(WithEnvFile(filepath.Join(t.TempDir(), "absent.env"))); err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
	})

	t.Run("reads config file", func(t *testing.T) {
		clearEnv(t)
		path := writeFile(t, "scheduler.yaml", "store: memory\nsuggestion_limit: 4\nrequest_timeout: 2s\n")
		t.Setenv("SCHEDULER_CONFIG_FILE", path)

		cfg, err := Load(WithEnvFile(""))
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.Store != StoreMemory || cfg.SuggestionLimit != 4 || cfg.RequestTimeout != 2*time.Second {
			t.Fatalf("config file values not applied: %+v", cfg)
		}
	})

	t.Run("unreadable config file fails", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(WithEnvFile(""), WithConfigFile(filepath.Join(t.TempDir(), "missing.toml")))
		if err == nil {
			t.Fatalf("expected error for missing config file")
		}
	})
}
