package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/availability-scheduler/internal/adapters"
	"github.com/example/availability-scheduler/internal/application"
	"github.com/example/availability-scheduler/internal/config"
	httptransport "github.com/example/availability-scheduler/internal/http"
	"github.com/example/availability-scheduler/internal/logging"
	"github.com/example/availability-scheduler/internal/persistence"
	"github.com/example/availability-scheduler/internal/persistence/memory"
	"github.com/example/availability-scheduler/internal/persistence/postgres"
	"github.com/example/availability-scheduler/internal/persistence/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, syncLogs, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}
	defer func() { _ = syncLogs() }()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("scheduler stopped with error", "error", err)
		_ = syncLogs()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           newHandler(cfg, store, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("scheduler API listening", "addr", server.Addr, "store", cfg.Store, "trigger_policy", cfg.TriggerPolicy)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// backend is a storage engine able to serve every port of the service.
type backend interface {
	persistence.SchedulingStore
	persistence.MemberRepository
	Close() error
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), nil
	case config.StorePostgres:
		storage, err := postgres.Open(ctx, postgres.DefaultConfig(cfg.PostgresDSN), logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		return storage, nil
	case config.StoreSQLite, "":
		storage, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLiteDSN), logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func newHandler(cfg config.Config, store backend, logger *slog.Logger) http.Handler {
	members := adapters.NewMemberDirectory(store)

	retry := application.DefaultRetryConfig()
	retry.MaxRetries = cfg.ConflictRetries

	service := application.NewSchedulingService(
		adapters.NewSchedulingStore(store),
		members,
		uuid.NewString,
		time.Now,
		application.WithMemberRegistry(members),
		application.WithTriggerPolicy(cfg.TriggerPolicy),
		application.WithSuggestionLimit(cfg.SuggestionLimit),
		application.WithRetryConfig(retry),
		application.WithMemberCacheTTL(cfg.MemberCacheTTL),
		application.WithLogger(logger),
	)

	var health httptransport.HealthChecker
	if pinger, ok := store.(interface{ Ping(context.Context) error }); ok {
		health = pinger.Ping
	}

	return httptransport.NewRouter(httptransport.RouterConfig{
		Events:         httptransport.NewEventHandler(service, logger),
		Groups:         httptransport.NewGroupHandler(service, logger),
		Health:         health,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	})
}
