package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestExecutor returns an executor with instant sleeps, deterministic
// jitter and a controllable clock.
func newTestExecutor(optFns ...func(o *Options)) (*Executor, *time.Time, *[]time.Duration) {
	e := NewExecutor(optFns...)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &now
	e.SetNowFunc(func() time.Time { return *clock })

	var sleeps []time.Duration
	e.SetSleepFunc(func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	})
	e.SetRandFunc(func() float64 { return 0.5 }) // jitter factor exactly 1.0

	return e, clock, &sleeps
}

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	e, _, sleeps := newTestExecutor()

	result, err := e.Execute(context.Background(), "peer-a", func(ctx context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Empty(t, *sleeps)
}

func TestExecuteRetriesWithExponentialBackoff(t *testing.T) {
	e, _, sleeps := newTestExecutor(func(o *Options) {
		o.MaxRetries = 3
		o.BaseDelay = 100 * time.Millisecond
	})

	attempts := 0
	result, err := e.Execute(context.Background(), "peer-a", func(ctx context.Context) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("flaky")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)

	// baseDelay * 2^0, then * 2^1; rand pinned to 0.5 means no jitter skew.
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *sleeps)
}

func TestExecuteBackoffCappedAtMaxDelay(t *testing.T) {
	e, _, sleeps := newTestExecutor(func(o *Options) {
		o.MaxRetries = 4
		o.BaseDelay = time.Second
		o.MaxDelay = 2 * time.Second
	})

	_, err := e.Execute(context.Background(), "peer-a", func(ctx context.Context) (any, error) {
		return nil, errors.New("down")
	})
	require.Error(t, err)

	require.Len(t, *sleeps, 4)
	assert.Equal(t, time.Second, (*sleeps)[0])
	assert.Equal(t, 2*time.Second, (*sleeps)[1])
	assert.Equal(t, 2*time.Second, (*sleeps)[2]) // capped
	assert.Equal(t, 2*time.Second, (*sleeps)[3]) // capped
}

func TestExecuteRetryExhausted(t *testing.T) {
	e, _, _ := newTestExecutor(func(o *Options) {
		o.MaxRetries = 2
	})

	attempts := 0
	_, err := e.Execute(context.Background(), "peer-a", func(ctx context.Context) (any, error) {
		attempts++
		return nil, errors.New("down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "peer-a", exhausted.Target)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorContains(t, exhausted, "down")
}

func TestCircuitOpensAfterThreshold(t *testing.T) {
	e, _, _ := newTestExecutor(func(o *Options) {
		o.MaxRetries = 0
		o.BreakerThreshold = 5
		o.RecoveryWindow = time.Minute
	})

	calls := 0
	failing := func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("unreachable")
	}

	for i := 0; i < 5; i++ {
		_, err := e.Execute(context.Background(), "peer-b", failing)
		require.Error(t, err)
	}
	assert.Equal(t, 5, calls)

	failures, open := e.BreakerSnapshot("peer-b")
	assert.Equal(t, 5, failures)
	assert.True(t, open)

	// Sixth attempt fails fast: no network call, near-zero elapsed.
	start := time.Now()
	_, err := e.Execute(context.Background(), "peer-b", failing)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 5, calls)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestCircuitHalfOpensAfterRecoveryWindow(t *testing.T) {
	e, clock, _ := newTestExecutor(func(o *Options) {
		o.MaxRetries = 0
		o.BreakerThreshold = 2
		o.RecoveryWindow = time.Minute
	})

	failing := func(ctx context.Context) (any, error) { return nil, errors.New("unreachable") }
	for i := 0; i < 2; i++ {
		_, _ = e.Execute(context.Background(), "peer-c", failing)
	}
	_, err := e.Execute(context.Background(), "peer-c", failing)
	require.ErrorIs(t, err, ErrCircuitOpen)

	// Advance past the recovery window: one probe call is let through.
	*clock = clock.Add(61 * time.Second)
	probeCalled := false
	result, err := e.Execute(context.Background(), "peer-c", func(ctx context.Context) (any, error) {
		probeCalled = true
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.True(t, probeCalled)
	assert.Equal(t, "recovered", result)

	// Success closed the breaker.
	failures, open := e.BreakerSnapshot("peer-c")
	assert.Zero(t, failures)
	assert.False(t, open)
}

func TestCircuitReopensOnFailedProbe(t *testing.T) {
	e, clock, _ := newTestExecutor(func(o *Options) {
		o.MaxRetries = 0
		o.BreakerThreshold = 2
		o.RecoveryWindow = time.Minute
	})

	failing := func(ctx context.Context) (any, error) { return nil, errors.New("unreachable") }
	for i := 0; i < 2; i++ {
		_, _ = e.Execute(context.Background(), "peer-d", failing)
	}

	*clock = clock.Add(61 * time.Second)
	_, err := e.Execute(context.Background(), "peer-d", failing)
	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)

	_, err = e.Execute(context.Background(), "peer-d", failing)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestExecuteWithFallback(t *testing.T) {
	e, _, _ := newTestExecutor(func(o *Options) {
		o.MaxRetries = 1
	})

	primaryCalls := 0
	result, err := e.ExecuteWithFallback(context.Background(), "peer-e",
		func(ctx context.Context) (any, error) {
			primaryCalls++
			return nil, errors.New("down")
		},
		func(ctx context.Context) (any, error) {
			return "fallback answer", nil
		})
	require.NoError(t, err)
	assert.Equal(t, 2, primaryCalls) // fallback only after primary exhausted
	assert.Equal(t, "fallback answer", result)
}

func TestExecuteWithFallbackSkippedOnSuccess(t *testing.T) {
	e, _, _ := newTestExecutor()

	fallbackCalled := false
	result, err := e.ExecuteWithFallback(context.Background(), "peer-f",
		func(ctx context.Context) (any, error) { return "primary", nil },
		func(ctx context.Context) (any, error) {
			fallbackCalled = true
			return "fallback", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "primary", result)
	assert.False(t, fallbackCalled)
}

func TestExecuteContextCancelledDuringBackoff(t *testing.T) {
	e := NewExecutor(func(o *Options) {
		o.MaxRetries = 2
		o.BaseDelay = 10 * time.Second
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, "peer-g", func(ctx context.Context) (any, error) {
		return nil, errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
