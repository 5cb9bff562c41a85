package resilience

import (
	"context"
	"errors"
	"time"

	apperrors "spx-engine/internal/errors"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  150 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}
}

// Retryable reports whether an error is worth another attempt. Open circuits,
// cancellations, rejected requests and payload decode failures are final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, apperrors.ErrCircuitOpen) || errors.Is(err, apperrors.ErrInvalidInput) {
		return false
	}
	var decodeErr *apperrors.DecodeError
	return !errors.As(err, &decodeErr)
}

// RetryWithResult executes fn with exponential backoff. It stops early on
// non-retryable errors and when ctx is done.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.InitialDelay

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !Retryable(err) || attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return zero, lastErr
}

// Call is the full resilient-call wrapper: retries around a breaker-guarded call.
func Call[T any](ctx context.Context, cb *CircuitBreaker, retry RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	return RetryWithResult(ctx, retry, func(ctx context.Context) (T, error) {
		return ExecuteWithResult(cb, ctx, fn)
	})
}
