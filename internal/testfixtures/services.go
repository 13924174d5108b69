package testfixtures

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/example/availability-scheduler/internal/adapters"
	"github.com/example/availability-scheduler/internal/application"
	"github.com/example/availability-scheduler/internal/persistence"
	"github.com/example/availability-scheduler/internal/persistence/memory"
)

// ServiceFactory assists tests with constructing scheduling services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// SchedulingBackend is a store that can back a SchedulingService end to end.
type SchedulingBackend interface {
	persistence.SchedulingStore
	persistence.MemberRepository
}

// SchedulingServiceDeps captures dependencies for constructing a scheduling service.
type SchedulingServiceDeps struct {
	// Backend defaults to a fresh memory store.
	Backend SchedulingBackend
	Options []application.SchedulingOption
	Logger  *slog.Logger
}

// NewSchedulingService builds a scheduling service over deps.Backend with the
// factory clock and identifiers. Conflict retries do not sleep.
func (f *ServiceFactory) NewSchedulingService(deps SchedulingServiceDeps) *application.SchedulingService {
	backend := deps.Backend
	if backend == nil {
		backend = memory.New()
	}
	directory := adapters.NewMemberDirectory(backend)

	opts := []application.SchedulingOption{
		application.WithMemberRegistry(directory),
		application.WithRetryConfig(application.RetryConfig{MaxRetries: 5, BackoffFactor: 1}),
	}
	if deps.Logger != nil {
		opts = append(opts, application.WithLogger(deps.Logger))
	}
	opts = append(opts, deps.Options...)

	return application.NewSchedulingService(
		adapters.NewSchedulingStore(backend),
		directory,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		opts...,
	)
}

// SeedEvent registers event and its group members through svc.
func SeedEvent(tb testing.TB, svc *application.SchedulingService, event EventFixture, members ...application.GroupMember) application.Event {
	tb.Helper()

	ctx := context.Background()
	if len(members) > 0 {
		if err := svc.SyncGroupMembers(ctx, event.GroupID, members); err != nil {
			tb.Fatalf("failed to sync members: %v", err)
		}
	}
	registered, err := svc.RegisterEvent(ctx, event.RegisterParams())
	if err != nil {
		tb.Fatalf("failed to register event: %v", err)
	}
	return registered
}
