package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/nestsync/internal/metrics"
	"go.uber.org/zap"
)

// ErrTimeout is returned when an operation does not settle within the
// connection timeout.
var ErrTimeout = errors.New("request timed out")

// Config controls concurrency, timeout and retry policy.
type Config struct {
	MaxConcurrent     int
	ConnectionTimeout time.Duration
	RetryDelay        time.Duration
	MaxRetries        int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     4,
		ConnectionTimeout: 8 * time.Second,
		RetryDelay:        time.Second,
		MaxRetries:        3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = d.ConnectionTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	return c
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Active int `json:"active"`
	Queued int `json:"queued"`
}

// Scheduler is a bounded-concurrency executor with a stable priority queue.
// Higher priorities start first; equal priorities start in submission order.
// A running task is never preempted.
type Scheduler struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	queue  taskQueue
	active int
	seq    uint64
}

// New creates a scheduler. Zero config fields take their defaults.
func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		metrics: m,
	}
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Stats returns the current number of running and queued tasks.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Active: s.active, Queued: s.queue.Len()}
}

// Submit queues run and blocks until it settles. If ctx ends while the task is
// still queued, the task is dropped without running.
func (s *Scheduler) Submit(ctx context.Context, kind string, priority int, run func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &task{
		kind:     kind,
		priority: priority,
		ctx:      ctx,
		run:      run,
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.seq++
	t.seq = s.seq
	heap.Push(&s.queue, t)
	s.mu.Unlock()

	s.dispatch()

	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		s.mu.Lock()
		if t.index >= 0 {
			heap.Remove(&s.queue, t.index)
			s.metrics.SetLoad(s.queue.Len(), s.active)
			s.mu.Unlock()
			return ctx.Err()
		}
		s.mu.Unlock()
		// Already running; its context is derived from ctx so it ends promptly.
		<-t.done
		return t.err
	}
}

// dispatch starts queued tasks while execution slots are free.
func (s *Scheduler) dispatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.active < s.cfg.MaxConcurrent && s.queue.Len() > 0 {
		t := heap.Pop(&s.queue).(*task)
		s.active++
		go s.execute(t)
	}
	s.metrics.SetLoad(s.queue.Len(), s.active)
}

func (s *Scheduler) execute(t *task) {
	start := time.Now()
	err := s.runWithTimeout(t)
	held := time.Since(start)

	s.mu.Lock()
	s.active--
	s.mu.Unlock()

	t.err = err
	close(t.done)

	s.metrics.ObserveTask(t.kind, outcome(err), held)
	if err != nil {
		s.logger.Debug("task failed", zap.String("kind", t.kind), zap.Int("priority", t.priority), zap.Duration("held", held), zap.Error(err))
	}
	s.dispatch()
}

// runWithTimeout releases the slot as soon as the deadline passes, even if the
// operation ignores cancellation.
func (s *Scheduler) runWithTimeout(t *task) error {
	ctx, cancel := context.WithTimeout(t.ctx, s.cfg.ConnectionTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- t.run(ctx) }()

	select {
	case err := <-result:
		if err != nil && t.ctx.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	case <-ctx.Done():
		if err := t.ctx.Err(); err != nil {
			return err
		}
		return ErrTimeout
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

// Enqueue runs op through the scheduler and returns its result.
func Enqueue[T any](ctx context.Context, s *Scheduler, kind string, priority int, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := s.Submit(ctx, kind, priority, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Retry enqueues op up to maxRetries times. Before attempt n+1 it waits
// RetryDelay*n. The last error is returned as is.
func Retry[T any](ctx context.Context, s *Scheduler, kind string, priority, maxRetries int, op func(context.Context) (T, error)) (T, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	for attempt := 1; ; attempt++ {
		v, err := Enqueue(ctx, s, kind, priority, op)
		if err == nil {
			return v, nil
		}
		if attempt >= maxRetries || ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return v, err
		}

		backoff := s.cfg.RetryDelay * time.Duration(attempt)
		s.logger.Warn("operation failed, retrying",
			zap.String("kind", kind),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		s.metrics.Retry(kind)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return v, err
		}
	}
}
