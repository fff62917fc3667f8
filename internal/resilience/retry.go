package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig holds configuration for retry behavior
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Jitter spreads each delay by up to 10% either way
	Jitter bool
	// Retryable decides whether an error is worth another attempt. Nil retries every error.
	Retryable func(error) bool
}

// DefaultRetryConfig suits short local operations such as store writes
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   4,
		InitialDelay:  20 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. The last error from fn is returned.
func Retry(ctx context.Context, config RetryConfig, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempts := config.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn(ctx)
		if err != nil && config.Retryable != nil && !config.Retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(config.backOff()),
		backoff.WithMaxTries(uint(attempts)),
	)

	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

// backOff grows InitialDelay by BackoffFactor per attempt, capped at MaxDelay
func (c RetryConfig) backOff() *backoff.ExponentialBackOff {
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	maxDelay := c.MaxDelay
	if maxDelay < c.InitialDelay {
		maxDelay = c.InitialDelay
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval: c.InitialDelay,
		Multiplier:      factor,
		MaxInterval:     maxDelay,
	}
	if c.Jitter {
		b.RandomizationFactor = 0.1
	}
	b.Reset()
	return b
}
