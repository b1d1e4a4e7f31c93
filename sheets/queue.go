package sheets

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// QueueConfig carries the drain timings. The zero value means defaults;
// tests compress everything to milliseconds.
type QueueConfig struct {
	MaxRetries         int
	InitialDelay       time.Duration // first retry delay, doubled each retry
	MaxDelay           time.Duration // cap for the doubling
	RateLimitDelay     time.Duration // first rate-limit hit on a task
	QuotaResetDelay    time.Duration // subsequent rate-limit hits
	MinRequestInterval time.Duration // spacing after the previous request
	TaskTimeout        time.Duration
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 2 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 32 * time.Second
	}
	if c.RateLimitDelay <= 0 {
		c.RateLimitDelay = 60 * time.Second
	}
	if c.QuotaResetDelay <= 0 {
		c.QuotaResetDelay = 100 * time.Second
	}
	if c.MinRequestInterval <= 0 {
		c.MinRequestInterval = time.Second
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 30 * time.Second
	}
	return c
}

type queueTask struct {
	id            string
	run           func(context.Context) error
	retryCount    int
	rateLimitHits int
	lastErr       error
}

// Queue serializes spreadsheet writes: the API enforces per-minute quotas,
// so tasks execute strictly one at a time with at least MinRequestInterval
// between completed requests. A failed task requeues at the tail until its
// retry budget runs out.
type Queue struct {
	cfg QueueConfig
	log *slog.Logger

	mu          sync.Mutex
	tasks       []*queueTask
	processing  bool
	lastRequest time.Time
}

func NewQueue(cfg QueueConfig, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{cfg: cfg.withDefaults(), log: log}
}

// Enqueue adds a task and, when no drain is in flight, drains the queue in
// the calling goroutine. A task whose id is already queued is dropped, so
// repeated syncs for the same order collapse into one. The only error a
// caller sees is a task exhausting its retry budget during this drain;
// fire-and-forget callers run Enqueue in a goroutine of their own.
func (q *Queue) Enqueue(ctx context.Context, id string, run func(context.Context) error) error {
	q.mu.Lock()
	for _, t := range q.tasks {
		if t.id == id {
			q.mu.Unlock()
			q.log.Debug("task already queued, skipping duplicate", "task", id)
			return nil
		}
	}
	q.tasks = append(q.tasks, &queueTask{id: id, run: run})
	if q.processing {
		q.mu.Unlock()
		return nil
	}
	q.processing = true
	q.mu.Unlock()

	return q.drain(ctx)
}

// Len reports how many tasks are queued, including one mid-execution.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *Queue) drain(ctx context.Context) error {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.processing = false
			q.mu.Unlock()
			return nil
		}
		task := q.tasks[0]
		wait := q.cfg.MinRequestInterval - time.Since(q.lastRequest)
		q.mu.Unlock()

		if wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return q.abort(err)
			}
		}

		err := q.runWithTimeout(ctx, task)
		if err == nil {
			q.mu.Lock()
			q.lastRequest = time.Now()
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			q.log.Debug("task completed", "task", task.id)
			continue
		}

		task.lastErr = err
		q.log.Warn("task failed", "task", task.id, "attempt", task.retryCount+1, "error", err)

		if task.retryCount >= q.cfg.MaxRetries {
			q.mu.Lock()
			q.tasks = q.tasks[1:]
			q.processing = false
			q.mu.Unlock()
			final := &Error{
				Message: "failed to process task " + task.id + " after retries: " + task.lastErr.Error(),
				Cause:   task.lastErr,
			}
			var se *Error
			if errors.As(task.lastErr, &se) {
				final.Code = se.Code
			}
			return final
		}

		task.retryCount++
		if isRateLimit(err) {
			task.rateLimitHits++
		}
		delay := q.retryDelay(task)

		// Requeue at the tail; later tasks get a chance first.
		q.mu.Lock()
		q.tasks = append(q.tasks[1:], task)
		q.mu.Unlock()

		if isRateLimit(err) {
			q.log.Info("rate limit hit, escalating delay", "task", task.id, "delay", delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return q.abort(err)
		}
	}
}

// retryDelay doubles from InitialDelay up to MaxDelay, except rate-limit
// failures which wait the long quota delays instead.
func (q *Queue) retryDelay(task *queueTask) time.Duration {
	if task.rateLimitHits > 0 {
		if task.rateLimitHits == 1 {
			return q.cfg.RateLimitDelay
		}
		return q.cfg.QuotaResetDelay
	}
	delay := q.cfg.InitialDelay
	for i := 1; i < task.retryCount; i++ {
		delay *= 2
		if delay >= q.cfg.MaxDelay {
			return q.cfg.MaxDelay
		}
	}
	if delay > q.cfg.MaxDelay {
		delay = q.cfg.MaxDelay
	}
	return delay
}

func (q *Queue) runWithTimeout(ctx context.Context, task *queueTask) error {
	taskCtx, cancel := context.WithTimeout(ctx, q.cfg.TaskTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- task.run(taskCtx) }()

	select {
	case err := <-done:
		return err
	case <-taskCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return newError(CodeTimeout, "operation timed out")
	}
}

// abort stops draining on caller cancellation, leaving queued tasks for
// the next Enqueue to pick up.
func (q *Queue) abort(err error) error {
	q.mu.Lock()
	q.processing = false
	q.mu.Unlock()
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
