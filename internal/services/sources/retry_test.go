package sources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

func newTestRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestNewRetryPolicy_Defaults(t *testing.T) {
	policy := NewRetryPolicy(&common.FetchConfig{})

	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, policy.InitialBackoff)
	assert.Equal(t, 30*time.Second, policy.MaxBackoff)
}

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	policy := newTestRetryPolicy()

	attempts := 0
	err := policy.Execute(context.Background(), arbor.NewLogger(), "test", func() error {
		attempts++
		if attempts < 3 {
			return &models.TransientFetchError{Source: "test", Err: assert.AnError}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicy_PermanentFailsImmediately(t *testing.T) {
	policy := newTestRetryPolicy()

	attempts := 0
	err := policy.Execute(context.Background(), arbor.NewLogger(), "test", func() error {
		attempts++
		return &models.PermanentFetchError{Source: "test", Reason: "bad credentials"}
	})

	require.Error(t, err)
	assert.True(t, models.IsPermanent(err))
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	policy := newTestRetryPolicy()

	attempts := 0
	err := policy.Execute(context.Background(), arbor.NewLogger(), "test", func() error {
		attempts++
		return &models.TransientFetchError{Source: "test", Err: assert.AnError}
	})

	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicy_RetryAfterOverridesBackoff(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:       2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	started := time.Now()
	attempts := 0
	err := policy.Execute(context.Background(), arbor.NewLogger(), "test", func() error {
		attempts++
		if attempts == 1 {
			return &models.TransientFetchError{
				Source:     "test",
				RetryAfter: 60 * time.Millisecond,
				Err:        assert.AnError,
			}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.GreaterOrEqual(t, time.Since(started), 50*time.Millisecond)
}

func TestRetryPolicy_ContextCancelledDuringBackoff(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:       5,
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 1.0,
	}

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := policy.Execute(ctx, arbor.NewLogger(), "test", func() error {
		attempts++
		return &models.TransientFetchError{Source: "test", Err: assert.AnError}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicy_CalculateBackoffBounds(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}

	for attempt := 0; attempt < 8; attempt++ {
		backoff := policy.CalculateBackoff(attempt)

		// Exponential value with ±25% jitter, capped at MaxBackoff
		assert.Greater(t, backoff, time.Duration(0), "attempt %d", attempt)
		assert.LessOrEqual(t, backoff, time.Duration(float64(policy.MaxBackoff)*1.25), "attempt %d", attempt)
	}
}
