package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meridianlabs-io/convoy/pkg/convoy/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetry
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func TestWithRetry_SucceedsFirstAttempt(t *testing.T) {
	result := resilience.WithRetry(context.Background(), fastRetry(),
		func(ctx context.Context, attempt int) (string, error) {
			return "ok", nil
		})

	require.NoError(t, result.Err)
	assert.Equal(t, "ok", result.Value)
	assert.Equal(t, 1, result.Attempts)
}

func TestWithRetry_RetriesTransient(t *testing.T) {
	calls := 0
	result := resilience.WithRetry(context.Background(), fastRetry(),
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			assert.Equal(t, calls, attempt)
			if calls < 3 {
				return "", resilience.Transient(errors.New("connection reset"), "test")
			}
			return "recovered", nil
		})

	require.NoError(t, result.Err)
	assert.Equal(t, "recovered", result.Value)
	assert.Equal(t, 3, result.Attempts)
}

func TestWithRetry_StopsOnPermanent(t *testing.T) {
	calls := 0
	result := resilience.WithRetry(context.Background(), fastRetry(),
		func(ctx context.Context, attempt int) (int, error) {
			calls++
			return 0, resilience.Permanent(errors.New("bad request"), "test")
		})

	require.Error(t, result.Err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, resilience.CategoryPermanent, resilience.Categorize(result.Err))
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	result := resilience.WithRetry(context.Background(), fastRetry(),
		func(ctx context.Context, attempt int) (int, error) {
			calls++
			return 0, resilience.Transient(errors.New("timeout"), "test")
		})

	require.Error(t, result.Err)
	assert.Equal(t, resilience.DefaultRetry.MaxAttempts, calls)

	var cerr *resilience.CategorizedError
	require.ErrorAs(t, result.Err, &cerr)
	assert.Equal(t, resilience.DefaultRetry.MaxAttempts, cerr.Attempts)
}

func TestWithRetry_NoRetryConfig(t *testing.T) {
	calls := 0
	result := resilience.WithRetry(context.Background(), resilience.NoRetry,
		func(ctx context.Context, attempt int) (int, error) {
			calls++
			return 0, resilience.Transient(errors.New("timeout"), "test")
		})

	require.Error(t, result.Err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	result := resilience.WithRetry(ctx, fastRetry(),
		func(ctx context.Context, attempt int) (int, error) {
			calls++
			return 0, nil
		})

	require.Error(t, result.Err)
	assert.Zero(t, calls)
}

func TestWithRetry_CancelDuringBackoff(t *testing.T) {
	cfg := fastRetry()
	cfg.InitialBackoff = time.Second
	cfg.MaxBackoff = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	result := resilience.WithRetry(ctx, cfg,
		func(ctx context.Context, attempt int) (int, error) {
			return 0, resilience.Transient(errors.New("flaky"), "test")
		})

	require.Error(t, result.Err)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "backoff must abort on cancellation")
}

func TestWithRetry_RetryableFuncOverride(t *testing.T) {
	cfg := fastRetry()
	cfg.RetryableFunc = func(err error) bool { return true }

	calls := 0
	result := resilience.WithRetry(context.Background(), cfg,
		func(ctx context.Context, attempt int) (int, error) {
			calls++
			return 0, resilience.Permanent(errors.New("normally fatal"), "test")
		})

	require.Error(t, result.Err)
	assert.Equal(t, cfg.MaxAttempts, calls)
}
