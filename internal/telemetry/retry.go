package telemetry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/quocanhngo/guardian/internal/service"
	"go.uber.org/zap"
)

// RetryPolicy defines how persistence failures are retried
type RetryPolicy struct {
	MaxRetries     int           // 0 = no retries
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

// withRetry runs fn until it succeeds, fails with a non-retryable error or
// runs out of attempts. It returns the last error and the number of attempts.
func withRetry(ctx context.Context, policy RetryPolicy, logger *zap.Logger, fn func() error) (int, error) {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				logger.Info("Succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return attempt + 1, nil
		}
		lastErr = err

		if !service.IsRetryable(err) {
			return attempt + 1, err
		}
		if attempt >= policy.MaxRetries {
			logger.Warn("Max retries exceeded", zap.Int("attempts", attempt+1), zap.Error(err))
			return attempt + 1, err
		}

		backoff := policy.backoff(attempt)
		logger.Warn("Persistence failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", policy.MaxRetries+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return attempt + 1, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return policy.MaxRetries + 1, lastErr
}

// backoff is initial * factor^attempt, capped, with ±25% jitter
func (p RetryPolicy) backoff(attempt int) time.Duration {
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	backoff := float64(p.InitialBackoff) * math.Pow(factor, float64(attempt))
	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(backoff + jitter)
}
