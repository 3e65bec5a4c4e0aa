package sources

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// RetryPolicy defines retry behavior for transient fetch failures
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// NewRetryPolicy builds the retry policy from the fetch config
func NewRetryPolicy(cfg *common.FetchConfig) *RetryPolicy {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	initialBackoff := cfg.BackoffBase
	if initialBackoff <= 0 {
		initialBackoff = 500 * time.Millisecond
	}

	return &RetryPolicy{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    initialBackoff,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Execute runs fn until it succeeds, fails permanently, or attempts run out.
// Only transient errors retry. A server-prescribed Retry-After overrides the
// computed backoff when it is longer.
func (p *RetryPolicy) Execute(ctx context.Context, logger arbor.ILogger, source string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !models.IsTransient(lastErr) {
			return lastErr
		}

		if attempt == p.MaxAttempts-1 {
			break
		}

		backoff := p.CalculateBackoff(attempt)
		var transient *models.TransientFetchError
		if errors.As(lastErr, &transient) && transient.RetryAfter > backoff {
			backoff = transient.RetryAfter
		}

		logger.Debug().
			Str("source", source).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(lastErr).
			Msg("Retrying after backoff")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	logger.Warn().
		Str("source", source).
		Int("max_attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("All retry attempts exhausted")

	return lastErr
}

// CalculateBackoff computes the exponential backoff for an attempt with
// ±25% jitter, capped at MaxBackoff
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	backoff += jitter

	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	return time.Duration(backoff)
}
