package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJitter_ExponentialGrowth(t *testing.T) {
	base := 1 * time.Second
	cap := 32 * time.Second

	for _, tc := range []struct {
		attempt int
		maxCap  time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
		{10, 32 * time.Second}, // capped
	} {
		for range 1000 {
			d := Jitter(tc.attempt, base, cap)
			if d > tc.maxCap {
				t.Errorf("Jitter(%d) = %v, exceeds expected cap %v", tc.attempt, d, tc.maxCap)
			}
		}
	}
}

func TestJitter_MinimumFloor(t *testing.T) {
	for range 1000 {
		if d := Jitter(0, time.Millisecond, time.Second); d < minDelay {
			t.Fatalf("got %v, want >= %v", d, minDelay)
		}
	}
	if d := Jitter(0, 0, 0); d != minDelay {
		t.Fatalf("zero base: got %v, want %v", d, minDelay)
	}
}

var errConflict = errors.New("conflict")

func TestRetry_SucceedsAfterConflicts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, 2*time.Millisecond,
		func(err error) bool { return errors.Is(err, errConflict) },
		func(attempt int) error {
			if attempt != calls {
				t.Errorf("attempt = %d, want %d", attempt, calls)
			}
			calls++
			if calls < 3 {
				return errConflict
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Retry() = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, time.Millisecond,
		func(err error) bool { return errors.Is(err, errConflict) },
		func(int) error { calls++; return permanent })
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("Retry() = %v after %d calls, want permanent after 1", err, calls)
	}
}

func TestRetry_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, time.Millisecond, time.Millisecond,
		func(error) bool { return true },
		func(int) error { calls++; return errConflict })
	if !errors.Is(err, errConflict) || calls != 3 {
		t.Fatalf("Retry() = %v after %d calls, want conflict after 3", err, calls)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 5, time.Second, time.Second,
		func(error) bool { return true },
		func(int) error { return errConflict })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry() = %v, want context.Canceled", err)
	}
}
