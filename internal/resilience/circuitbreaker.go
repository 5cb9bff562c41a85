// Package resilience provides the resilient-call wrapper used for outbound
// provider requests: circuit breaking, bounded retries and call timeouts.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	apperrors "spx-engine/internal/errors"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	// ConsecutiveFailures opens the circuit after this many failures in a row.
	ConsecutiveFailures uint32 `mapstructure:"consecutive_failures"`
	// FailureRatio opens the circuit once MinRequests have been seen in an interval.
	FailureRatio float64 `mapstructure:"failure_ratio"`
	MinRequests  uint32  `mapstructure:"min_requests"`
	// HalfOpenRequests is the number of probe requests allowed while half-open.
	HalfOpenRequests uint32 `mapstructure:"half_open_requests"`
	// Interval is the cyclic period for clearing counts while closed.
	Interval time.Duration `mapstructure:"interval"`
	// Timeout is how long to wait before transitioning from open to half-open.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		ConsecutiveFailures: 3,
		FailureRatio:        0.5,
		MinRequests:         20,
		HalfOpenRequests:    1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
	}
}

// CircuitBreaker guards calls to one external collaborator.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger zerolog.Logger) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.HalfOpenRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if config.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= config.ConsecutiveFailures {
				return true
			}
			if counts.Requests < config.MinRequests || counts.Requests == 0 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > config.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
		// The caller walking away is not a provider failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Name returns the breaker name.
func (c *CircuitBreaker) Name() string {
	return c.cb.Name()
}

// State returns the current state.
func (c *CircuitBreaker) State() CircuitState {
	switch c.cb.State() {
	case gobreaker.StateOpen:
		return CircuitOpen
	case gobreaker.StateHalfOpen:
		return CircuitHalfOpen
	default:
		return CircuitClosed
	}
}

// Execute runs fn with circuit breaker protection.
func (c *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := ExecuteWithResult(c, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteWithResult runs a function that returns a result with circuit breaker protection.
func ExecuteWithResult[T any](c *CircuitBreaker, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	out, err := c.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, apperrors.Wrapf(apperrors.ErrCircuitOpen, "%s", c.cb.Name())
		}
		return zero, err
	}
	value, _ := out.(T)
	return value, nil
}
