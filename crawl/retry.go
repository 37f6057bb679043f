package crawl

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/ragkb"
)

// FetchFunc is the signature for a fetch function.
type FetchFunc func(ctx context.Context, url string) (string, error)

// DefaultRetryDelays returns the backoff delays for page fetch retries: 1s, 2s, 4s.
func DefaultRetryDelays() []time.Duration {
	return []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
}

// Backoff returns attempts-1 exponential delays starting at base and growing
// by factor: base, base×factor, base×factor², and so on. attempts counts the
// initial try, so Backoff(60s, 5, 3) is [60s, 300s].
func Backoff(base time.Duration, factor, attempts int) []time.Duration {
	if attempts <= 1 {
		return nil
	}
	delays := make([]time.Duration, attempts-1)
	d := base
	for i := range delays {
		delays[i] = d
		d *= time.Duration(factor)
	}
	return delays
}

// Retry calls op until it succeeds, fails permanently or the delays run out.
// One delay is waited before each retry, so there are len(delays)+1 attempts.
// Errors that ragkb.IsTemporary rejects are returned at once. The logger may
// be nil.
func Retry[T any](ctx context.Context, delays []time.Duration, logger *slog.Logger, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	maxAttempts := len(delays) + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := op(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !ragkb.IsTemporary(err) || attempt == maxAttempts {
			break
		}

		if logger != nil {
			logger.Warn("temporary failure, retrying",
				"attempt", attempt,
				"maxAttempts", maxAttempts,
				"delay", delays[attempt-1],
				"err", err,
			)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delays[attempt-1]):
		}
	}

	return zero, lastErr
}

// FetchWithRetryDelays fetches url, retrying temporary failures after each
// of delays.
func FetchWithRetryDelays(ctx context.Context, url string, fetch FetchFunc, logger *slog.Logger, delays []time.Duration) (string, error) {
	return Retry(ctx, delays, logger, func(ctx context.Context, _ int) (string, error) {
		return fetch(ctx, url)
	})
}
