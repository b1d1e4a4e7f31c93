package sheets

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func testQueueConfig() QueueConfig {
	return QueueConfig{
		MaxRetries:         5,
		InitialDelay:       time.Millisecond,
		MaxDelay:           4 * time.Millisecond,
		RateLimitDelay:     10 * time.Millisecond,
		QuotaResetDelay:    20 * time.Millisecond,
		MinRequestInterval: time.Millisecond,
		TaskTimeout:        20 * time.Millisecond,
	}
}

func TestEnqueueDeduplicatesByID(t *testing.T) {
	q := NewQueue(testQueueConfig(), nil)
	var runs int32

	// Park the drain on a slow first task so the duplicates stay queued.
	block := make(chan struct{})
	go func() {
		_ = q.Enqueue(context.Background(), "slow", func(context.Context) error {
			<-block
			return nil
		})
	}()
	for q.Len() == 0 {
		time.Sleep(time.Millisecond)
	}

	task := func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}
	if err := q.Enqueue(context.Background(), "order-1", task); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := q.Enqueue(context.Background(), "order-1", task); err != nil {
		t.Fatalf("duplicate enqueue: %v", err)
	}
	if got := q.Len(); got != 2 {
		t.Errorf("queue length = %d, want 2 (slow + one order-1)", got)
	}

	close(block)
	waitFor(t, func() bool { return q.Len() == 0 })
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("order-1 ran %d times, want exactly 1", got)
	}
}

func TestDrainRetriesFiveTimesThenRejects(t *testing.T) {
	q := NewQueue(testQueueConfig(), nil)
	cause := newError("500", "backend exploded")
	var runs int32

	err := q.Enqueue(context.Background(), "doomed", func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return cause
	})
	if err == nil {
		t.Fatal("Enqueue returned nil, want aggregate error")
	}
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("error type %T, want *sheets.Error", err)
	}
	if !errors.Is(err, cause) {
		t.Error("aggregate error should wrap the last underlying failure")
	}
	// Initial attempt plus the full retry budget.
	if got := atomic.LoadInt32(&runs); got != 6 {
		t.Errorf("task ran %d times, want 6 (1 + 5 retries)", got)
	}
	if q.Len() != 0 {
		t.Errorf("exhausted task still queued, len = %d", q.Len())
	}
}

func TestDrainTimesOutStuckTask(t *testing.T) {
	cfg := testQueueConfig()
	cfg.MaxRetries = 1
	q := NewQueue(cfg, nil)

	err := q.Enqueue(context.Background(), "stuck", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("error type %T, want *sheets.Error", err)
	}
	if se.Code != CodeTimeout {
		t.Errorf("code = %q, want %q", se.Code, CodeTimeout)
	}
}

func TestDrainRunsTasksInOrder(t *testing.T) {
	q := NewQueue(testQueueConfig(), nil)
	var order []string

	block := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Enqueue(context.Background(), "a", func(context.Context) error {
			<-block
			order = append(order, "a")
			return nil
		})
	}()
	for q.Len() == 0 {
		time.Sleep(time.Millisecond)
	}
	_ = q.Enqueue(context.Background(), "b", func(context.Context) error {
		order = append(order, "b")
		return nil
	})
	_ = q.Enqueue(context.Background(), "c", func(context.Context) error {
		order = append(order, "c")
		return nil
	})
	close(block)
	<-done
	waitFor(t, func() bool { return q.Len() == 0 })

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("ran %v, want %v", order, want)
		}
	}
}

func TestRetryDelayEscalation(t *testing.T) {
	cfg := testQueueConfig()
	cfg.InitialDelay = 2 * time.Second
	cfg.MaxDelay = 32 * time.Second
	cfg.RateLimitDelay = 60 * time.Second
	cfg.QuotaResetDelay = 100 * time.Second
	q := NewQueue(cfg, nil)

	tests := []struct {
		retryCount    int
		rateLimitHits int
		want          time.Duration
	}{
		{1, 0, 2 * time.Second},
		{2, 0, 4 * time.Second},
		{3, 0, 8 * time.Second},
		{4, 0, 16 * time.Second},
		{5, 0, 32 * time.Second},
		{6, 0, 32 * time.Second}, // capped
		{1, 1, 60 * time.Second},
		{2, 2, 100 * time.Second},
		{3, 2, 100 * time.Second},
	}
	for _, tt := range tests {
		got := q.retryDelay(&queueTask{retryCount: tt.retryCount, rateLimitHits: tt.rateLimitHits})
		if got != tt.want {
			t.Errorf("retryDelay(retries=%d, rateLimitHits=%d) = %v, want %v",
				tt.retryCount, tt.rateLimitHits, got, tt.want)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
