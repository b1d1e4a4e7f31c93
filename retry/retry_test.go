package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsOnLastAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 4 {
			return errors.New("flaky")
		}
		return nil
	}, Options{MaxAttempts: 4, Delay: time.Millisecond})
	if err != nil {
		t.Fatalf("Do returned %v, want success", err)
	}
	if calls != 4 {
		t.Errorf("op invoked %d times, want 4", calls)
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	permanent := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	}, Options{
		MaxAttempts: 5,
		Delay:       time.Millisecond,
		ShouldRetry: func(error) bool { return false },
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Do returned %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Errorf("op invoked %d times, want exactly 1", calls)
	}
}

func TestDoReturnsLastErrorAfterBudget(t *testing.T) {
	first := errors.New("first")
	last := errors.New("last")
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return first
		}
		return last
	}, Options{MaxAttempts: 3, Delay: time.Millisecond})
	if !errors.Is(err, last) {
		t.Fatalf("Do returned %v, want the last error", err)
	}
	if calls != 3 {
		t.Errorf("op invoked %d times, want 3", calls)
	}
}

func TestDoBacksOffBetweenAttempts(t *testing.T) {
	start := time.Now()
	_ = Do(context.Background(), func(context.Context) error {
		return errors.New("always")
	}, Options{MaxAttempts: 3, Delay: 10 * time.Millisecond, Backoff: 2})
	// 10ms + 20ms of waiting between the three attempts.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("elapsed %v, want at least 30ms of backoff", elapsed)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, func(context.Context) error {
		calls++
		return errors.New("always")
	}, Options{MaxAttempts: 10, Delay: time.Minute})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do returned %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("op invoked %d times, want 1 before cancellation", calls)
	}
}
