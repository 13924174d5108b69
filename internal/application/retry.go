package application

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig configures how event transactions are retried after a
// concurrency conflict.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns a retry configuration with sensible defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  25 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

type retryHelper struct {
	config RetryConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

func newRetryHelper(config RetryConfig) *retryHelper {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = 1
	}
	return &retryHelper{config: config, sleep: sleepContext}
}

// withRetry runs fn again while it fails with ErrConcurrencyConflict. Any
// other error is returned immediately.
func (r *retryHelper) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := r.config.InitialDelay

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, delay); err != nil {
				return err
			}
			delay = time.Duration(float64(delay) * r.config.BackoffFactor)
			if r.config.MaxDelay > 0 && delay > r.config.MaxDelay {
				delay = r.config.MaxDelay
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("operation failed after %d retries: %w", r.config.MaxRetries, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
