package resilience

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	MaxAttempts int

	// InitialBackoff is the starting backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each attempt.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64

	// RetryableFunc optionally overrides the default retryability check.
	RetryableFunc func(error) bool

	// Logger, when set, records every failed attempt with the error
	// class, attempt number and operation name. "It failed" alone is
	// not acceptable telemetry here.
	Logger *slog.Logger

	// Operation names what is being retried, for telemetry.
	Operation string
}

// DefaultRetry is the standard retry configuration.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry disables retries. Non-idempotent operations always run with it.
var NoRetry = RetryConfig{
	MaxAttempts: 1,
}

// RetryResult contains the result of a retry operation.
type RetryResult[T any] struct {
	// Value is the result if successful.
	Value T

	// Err is the final error if all attempts failed.
	Err error

	// Attempts is the number of attempts made.
	Attempts int

	// Duration is the total time spent including backoff.
	Duration time.Duration
}

// WithRetry executes fn with retries, respecting context cancellation.
// Only errors categorized as transient are retried unless RetryableFunc
// overrides the check.
func WithRetry[T any](
	ctx context.Context,
	cfg RetryConfig,
	fn func(ctx context.Context, attempt int) (T, error),
) RetryResult[T] {
	start := time.Now()
	backoff := cfg.InitialBackoff
	var lastErr error

	isRetryable := cfg.RetryableFunc
	if isRetryable == nil {
		isRetryable = func(err error) bool {
			return Categorize(err) == CategoryTransient
		}
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return RetryResult[T]{
				Err:      NewCategorized(err, CategoryPermanent, "context done before attempt"),
				Attempts: attempt - 1,
				Duration: time.Since(start),
			}
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return RetryResult[T]{
				Value:    result,
				Attempts: attempt,
				Duration: time.Since(start),
			}
		}

		lastErr = err
		logAttempt(cfg, attempt, err)

		if !isRetryable(err) {
			return RetryResult[T]{
				Err: &CategorizedError{
					Err:      err,
					Category: Categorize(err),
					Attempts: attempt,
					Context:  cfg.Operation,
				},
				Attempts: attempt,
				Duration: time.Since(start),
			}
		}

		// No sleep after the last attempt.
		if attempt < cfg.MaxAttempts {
			sleep := addJitter(backoff, cfg.Jitter)
			select {
			case <-ctx.Done():
				return RetryResult[T]{
					Err:      NewCategorized(ctx.Err(), CategoryPermanent, "context done during backoff"),
					Attempts: attempt,
					Duration: time.Since(start),
				}
			case <-time.After(sleep):
			}

			backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
			if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}

	return RetryResult[T]{
		Err: &CategorizedError{
			Err:      lastErr,
			Category: Categorize(lastErr),
			Attempts: cfg.MaxAttempts,
			Context:  "max retries exceeded",
		},
		Attempts: cfg.MaxAttempts,
		Duration: time.Since(start),
	}
}

func logAttempt(cfg RetryConfig, attempt int, err error) {
	if cfg.Logger == nil {
		return
	}
	cfg.Logger.Warn("attempt failed",
		slog.String("operation", cfg.Operation),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", cfg.MaxAttempts),
		slog.String("error_class", Categorize(err).String()),
		slog.String("error", err.Error()),
	)
}

// addJitter returns the backoff duration with jitter applied.
func addJitter(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}
	jitterAmount := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + jitterAmount)
}
