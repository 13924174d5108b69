package logging

import (
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Options selects the zap encoder and minimum level.
type Options struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string
	// Format is json or console. Empty means json.
	Format string
}

// New builds a slog logger backed by a zap core. The returned sync function
// flushes buffered entries and should be deferred by the caller.
func New(opts Options) (*slog.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(opts.Level))
	if opts.Level == "" {
		level, err = zapcore.InfoLevel, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("logging: %w", err)
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	zl, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("logging: build zap logger: %w", err)
	}
	return slog.New(zapslog.NewHandler(zl.Core())), zl.Sync, nil
}

// NewWithCore wraps an existing zap core, mainly for tests using zaptest/observer.
func NewWithCore(core zapcore.Core) *slog.Logger {
	return slog.New(zapslog.NewHandler(core))
}
