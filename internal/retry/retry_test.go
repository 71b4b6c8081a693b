package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradeflow/internal/core"
)

// recordingSleep collects requested delays without actually sleeping.
func recordingSleep(delays *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{
		MaxAttempts:    5,
		InitialBackoff: 1 * time.Second,
		BackoffFactor:  2.0,
		MaxBackoff:     5 * time.Second,
	}

	assert.Equal(t, time.Duration(0), p.Delay(1))
	assert.Equal(t, 1*time.Second, p.Delay(2))
	assert.Equal(t, 2*time.Second, p.Delay(3))
	assert.Equal(t, 4*time.Second, p.Delay(4))
	assert.Equal(t, 5*time.Second, p.Delay(5), "delay should be capped at MaxBackoff")
}

func TestDoRetryBound(t *testing.T) {
	var delays []time.Duration
	calls := 0

	_, err := Do(context.Background(), DefaultPolicy(), recordingSleep(&delays),
		func(ctx context.Context) (string, error) {
			calls++
			return "", core.NewUpstreamError(503, "unavailable", nil)
		})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "an always-failing call must be invoked exactly MaxAttempts times")
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, delays)

	var ge *core.GraderError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, core.ErrorTypeExhausted, ge.Type)
}

func TestDoSuccessShortCircuits(t *testing.T) {
	var delays []time.Duration
	calls := 0

	result, err := Do(context.Background(), DefaultPolicy(), recordingSleep(&delays),
		func(ctx context.Context) (int, error) {
			calls++
			if calls < 2 {
				return 0, errors.New("connection reset")
			}
			return 42, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 2, calls)
	assert.Len(t, delays, 1)
}

func TestDoFailsFastOnNonRetryable(t *testing.T) {
	calls := 0

	_, err := Do(context.Background(), DefaultPolicy(), recordingSleep(&[]time.Duration{}),
		func(ctx context.Context) (string, error) {
			calls++
			return "", core.NewInvalidInputError("empty answer", nil)
		})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-retryable errors must not consume the retry budget")

	var ge *core.GraderError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, core.ErrorTypeInvalidInput, ge.Type)
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	_, err := Do(ctx, DefaultPolicy(),
		func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
		func(ctx context.Context) (string, error) {
			return "", core.NewUpstreamError(502, "bad gateway", nil)
		})

	require.ErrorIs(t, err, context.Canceled)
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), Policy{}, recordingSleep(&[]time.Duration{}),
		func(ctx context.Context) (string, error) {
			calls++
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}
