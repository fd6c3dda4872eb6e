package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

const minDelay = 10 * time.Millisecond

// Jitter returns an exponential delay with full jitter.
//
//	delay = max(minDelay, rand(0, min(cap, base * 2^attempt)))
func Jitter(attempt int, base, cap time.Duration) time.Duration {
	exp := float64(base) * math.Pow(2, float64(attempt))
	if exp > float64(cap) || exp <= 0 { // overflow guard
		exp = float64(cap)
	}
	if exp < 1 {
		return minDelay
	}
	jitter := time.Duration(rand.Int64N(int64(exp)))
	if jitter < minDelay {
		jitter = minDelay
	}
	return jitter
}

// Retry runs fn until it succeeds, returns an error retryable rejects, or
// retries attempts are used up. It waits Jitter(attempt, base, cap) between
// calls and stops early when ctx is done.
func Retry(ctx context.Context, retries int, base, cap time.Duration, retryable func(error) bool, fn func(attempt int) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt >= retries || !retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Jitter(attempt, base, cap)):
		}
	}
}
