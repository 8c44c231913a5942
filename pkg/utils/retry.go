package utils

import (
	"context"
	"math"
	"time"
)

// BackoffFunc returns the wait before retry n (n starts at 1).
type BackoffFunc func(n int) time.Duration

// LinearBackoff waits base, 2*base, 3*base...
func LinearBackoff(base time.Duration) BackoffFunc {
	return func(n int) time.Duration { return time.Duration(n) * base }
}

// ExponentialBackoff waits initial, initial*factor... up to max.
func ExponentialBackoff(initial, max time.Duration, factor float64) BackoffFunc {
	return func(n int) time.Duration {
		d := float64(initial) * math.Pow(factor, float64(n-1))
		if d > float64(max) {
			return max
		}
		return time.Duration(d)
	}
}

// RetryConfig controls RetryWithResult.
type RetryConfig struct {
	MaxAttempts int // including the first call; below 1 means 1
	Backoff     BackoffFunc
	ShouldRetry func(error) bool // nil retries everything
	OnRetry     func(n int, delay time.Duration, err error)
}

// Retry is RetryWithResult for functions without a result.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// RetryWithResult calls fn until it succeeds, returns an error ShouldRetry
// rejects, or runs out of attempts. A cancelled ctx stops the wait and
// returns the last error from fn.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	attempts := max(cfg.MaxAttempts, 1)
	for n := 1; ; n++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if n >= attempts || (cfg.ShouldRetry != nil && !cfg.ShouldRetry(err)) {
			return v, err
		}
		var delay time.Duration
		if cfg.Backoff != nil {
			delay = cfg.Backoff(n)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(n, delay, err)
		}
		if Sleep(ctx, delay) != nil {
			return v, err
		}
	}
}

// Sleep waits d, returning early with ctx's error when it is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
