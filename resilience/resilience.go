// Package resilience provides a generic retry-with-backoff + circuit breaker
// wrapper reused by every remote call in NeuroFlow (peer delegation, remote
// capability servers). Per-target breaker state is the only mutable state and
// is guarded by a mutex; time, sleep and randomness are injectable for tests.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/lamwimham/neuroflow/logging"
)

// ErrCircuitOpen is returned without attempting the call when a target's
// breaker is open.
var ErrCircuitOpen = errors.New("circuit open")

// RetryExhaustedError wraps the last attempt error after all retries failed.
// Raising it increments the target's failure count and may open the breaker.
type RetryExhaustedError struct {
	Target   string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted for %s after %d attempts: %v", e.Target, e.Attempts, e.Err)
}

// Unwrap exposes the final attempt error.
func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// Operation is a single remote call attempt.
type Operation func(ctx context.Context) (any, error)

// Options configure an Executor.
type Options struct {
	// MaxRetries is the number of re-attempts after the first failure.
	MaxRetries int
	// BaseDelay is the initial backoff delay; attempt n waits BaseDelay * 2^n.
	BaseDelay time.Duration
	// MaxDelay caps the multiplicative backoff growth.
	MaxDelay time.Duration
	// BreakerThreshold is the consecutive-failure count that opens a breaker.
	BreakerThreshold int
	// RecoveryWindow is how long an open breaker fails fast before letting
	// one probe call through.
	RecoveryWindow time.Duration
	// Logger receives structured retry / breaker events. Defaults to NoOpLogger.
	Logger logging.Logger
}

// breakerState is the per-target record: consecutive failures and the time of
// the last one. It moves monotonically within one open/closed cycle.
type breakerState struct {
	failures    int
	lastFailure time.Time
}

// Executor runs operations against named targets with retry, backoff, jitter
// and per-target circuit breaking. Safe for concurrent use.
type Executor struct {
	opts Options

	mu       sync.Mutex
	breakers map[string]*breakerState

	// nowFunc is used for testing; defaults to time.Now.
	nowFunc func() time.Time
	// sleepFunc is used for testing; defaults to a context-aware sleep.
	sleepFunc func(ctx context.Context, d time.Duration) error
	// randFunc returns a random float64 in [0,1); used for jitter. Defaults to rand.Float64.
	randFunc func() float64
}

// NewExecutor constructs an Executor with defaults: 3 retries, 1s base delay,
// 30s delay cap, breaker threshold 5, 60s recovery window.
func NewExecutor(optFns ...func(o *Options)) *Executor {
	opts := Options{
		MaxRetries:       3,
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
		BreakerThreshold: 5,
		RecoveryWindow:   60 * time.Second,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{
		opts:      opts,
		breakers:  make(map[string]*breakerState),
		nowFunc:   time.Now,
		sleepFunc: contextSleep,
		randFunc:  rand.Float64,
	}
}

// SetNowFunc overrides the time source (for testing).
func (e *Executor) SetNowFunc(fn func() time.Time) { e.nowFunc = fn }

// SetSleepFunc overrides the sleep function (for testing).
func (e *Executor) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	e.sleepFunc = fn
}

// SetRandFunc overrides the random number generator (for testing).
func (e *Executor) SetRandFunc(fn func() float64) { e.randFunc = fn }

// contextSleep sleeps for d or until ctx is cancelled.
func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute runs op against targetID. An open breaker fails fast with
// ErrCircuitOpen and no attempt. Success resets the target's failure count;
// exhausting all retries records one failure and may open the breaker.
func (e *Executor) Execute(ctx context.Context, targetID string, op Operation) (any, error) {
	if e.circuitOpen(targetID) {
		e.opts.Logger.Warn("resilience.circuit.rejected", "target", targetID)
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, targetID)
	}

	var lastErr error
	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			e.recordSuccess(targetID)
			return result, nil
		}
		lastErr = err

		if attempt >= e.opts.MaxRetries {
			break
		}

		backoff := e.jitter(e.backoffDelay(attempt))
		e.opts.Logger.Debug(
			"resilience.retry",
			"target", targetID,
			"attempt", attempt+1,
			"backoff_ms", backoff.Milliseconds(),
			"error", err.Error(),
		)
		if sleepErr := e.sleepFunc(ctx, backoff); sleepErr != nil {
			return nil, sleepErr
		}
	}

	e.recordFailure(targetID)
	return nil, &RetryExhaustedError{
		Target:   targetID,
		Attempts: e.opts.MaxRetries + 1,
		Err:      lastErr,
	}
}

// ExecuteWithFallback runs fallback only after the primary path is fully
// exhausted, including an open breaker.
func (e *Executor) ExecuteWithFallback(ctx context.Context, targetID string, op, fallback Operation) (any, error) {
	result, err := e.Execute(ctx, targetID, op)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	e.opts.Logger.Info("resilience.fallback", "target", targetID, "error", err.Error())
	return fallback(ctx)
}

// BreakerSnapshot reports the target's consecutive failure count and whether
// its breaker is currently open.
func (e *Executor) BreakerSnapshot(targetID string) (failures int, open bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.breakers[targetID]
	if !ok {
		return 0, false
	}
	return st.failures, e.openLocked(st)
}

// backoffDelay computes BaseDelay * 2^attempt capped at MaxDelay.
func (e *Executor) backoffDelay(attempt int) time.Duration {
	d := e.opts.BaseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if e.opts.MaxDelay > 0 && d > e.opts.MaxDelay {
		d = e.opts.MaxDelay
	}
	return d
}

// jitter applies ±25% random jitter to a duration.
func (e *Executor) jitter(d time.Duration) time.Duration {
	factor := 0.75 + e.randFunc()*0.5
	return time.Duration(float64(d) * factor)
}

func (e *Executor) circuitOpen(targetID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.breakers[targetID]
	if !ok {
		return false
	}
	return e.openLocked(st)
}

// openLocked: open while failures >= threshold and the recovery window since
// the last failure has not elapsed. After the window one probe call is let
// through; its outcome closes or re-opens the breaker.
func (e *Executor) openLocked(st *breakerState) bool {
	if st.failures < e.opts.BreakerThreshold {
		return false
	}
	return e.nowFunc().Sub(st.lastFailure) < e.opts.RecoveryWindow
}

func (e *Executor) recordSuccess(targetID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.breakers[targetID]; ok && st.failures > 0 {
		e.opts.Logger.Info("resilience.circuit.closed", "target", targetID)
	}
	delete(e.breakers, targetID)
}

func (e *Executor) recordFailure(targetID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.breakers[targetID]
	if !ok {
		st = &breakerState{}
		e.breakers[targetID] = st
	}
	st.failures++
	st.lastFailure = e.nowFunc()
	if st.failures == e.opts.BreakerThreshold {
		e.opts.Logger.Warn("resilience.circuit.opened", "target", targetID, "failures", st.failures)
	}
}
