// Package retry wraps remote operations with bounded attempts and
// exponential backoff, isolating transient failures from callers.
package retry

import (
	"context"
	"math"
	"time"

	"gradeflow/internal/core"
)

// Policy describes the attempt schedule. Delay is a pure function of the
// attempt index so the schedule can be tested without real time passing.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// BackoffFactor multiplies the wait after each failed attempt.
	BackoffFactor float64

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration
}

// DefaultPolicy mirrors the pipeline's historical behavior: three attempts,
// 1s/2s waits.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		BackoffFactor:  2.0,
		MaxBackoff:     30 * time.Second,
	}
}

// Delay returns the wait before attempt number `attempt` (1-based; attempt 1
// has no wait).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffFactor, float64(attempt-2))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	return time.Duration(backoff)
}

// SleepFunc waits for the given duration. Production code passes a
// context-aware sleep; tests pass a recorder.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d or until the context is canceled.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do invokes op up to p.MaxAttempts times. A success on any attempt
// short-circuits. Non-retryable errors (invalid input, authentication) fail
// fast without consuming the retry budget. Once the budget is spent, the
// last error is wrapped in a retries_exhausted GraderError.
func Do[T any](ctx context.Context, p Policy, sleep SleepFunc, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if sleep == nil {
		sleep = Sleep
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if d := p.Delay(attempt); d > 0 {
			if err := sleep(ctx, d); err != nil {
				return zero, err
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !core.IsRetryable(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, core.NewExhaustedError(maxAttempts, lastErr)
}
