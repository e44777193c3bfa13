package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMaxConcurrency = 4
	defaultQueueSize      = 64
)

// Job is one backend fetch. Tag is opaque to the dispatcher and is copied
// onto the [Result] so the caller can match the response to the request it
// issued.
type Job[T any] struct {
	Tag   T
	Fetch func(ctx context.Context) (any, error)
}

// Result is the outcome of a [Job].
type Result[T any] struct {
	Tag        T
	Value      any
	Err        error
	Latency    time.Duration
	FinishedAt time.Time
}

// Dispatcher runs fetch jobs on a bounded worker pool and emits their
// results on a channel.
//
// The dispatcher never waits for a job to finish before accepting the next
// one, so overlapping fetches for the same feed are possible; results arrive
// in completion order. Callers resolve ordering with the tag.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Dispatcher[T any] struct {
	maxConcurrency int
	jobs           chan Job[T]
	results        chan Result[T]
	logger         *slog.Logger
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

// NewDispatcher creates a [Dispatcher] with maxConcurrency workers and a job
// queue of queueSize entries. Non-positive values fall back to defaults.
func NewDispatcher[T any](maxConcurrency, queueSize int, logger *slog.Logger) *Dispatcher[T] {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher[T]{
		maxConcurrency: maxConcurrency,
		jobs:           make(chan Job[T], queueSize),
		results:        make(chan Result[T], queueSize),
		logger:         logger,
	}
}

// Results returns the channel of job results. It is closed by
// [Dispatcher.Stop].
func (d *Dispatcher[T]) Results() <-chan Result[T] {
	return d.results
}

// Start launches the worker pool. It is idempotent, and a no-op after Stop.
func (d *Dispatcher[T]) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	var workCtx context.Context
	workCtx, d.cancel = context.WithCancel(ctx)

	for i := 0; i < d.maxConcurrency; i++ {
		d.wg.Add(1)
		go d.worker(workCtx)
	}
}

// Submit queues job without blocking. It returns false when the queue is
// full or the dispatcher has been stopped.
func (d *Dispatcher[T]) Submit(job Job[T]) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	select {
	case d.jobs <- job:
		return true
	default:
		return false
	}
}

// Stop cancels in-flight jobs, waits for the workers to exit, and closes
// the results channel. Stop is idempotent and safe before Start.
func (d *Dispatcher[T]) Stop() {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		if d.cancel != nil {
			d.cancel()
		}
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.closeOnce.Do(func() { close(d.results) })
}

func (d *Dispatcher[T]) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-d.jobs:
			res := d.run(ctx, job)
			select {
			case d.results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (d *Dispatcher[T]) run(ctx context.Context, job Job[T]) Result[T] {
	start := time.Now()
	value, err := d.safeFetch(ctx, job.Fetch)
	return Result[T]{
		Tag:        job.Tag,
		Value:      value,
		Err:        err,
		Latency:    time.Since(start),
		FinishedAt: time.Now(),
	}
}

// safeFetch calls fetch with panic recovery. A panic is logged with its
// stack under a correlation id and returned as an error carrying that id.
func (d *Dispatcher[T]) safeFetch(ctx context.Context, fetch func(context.Context) (any, error)) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			d.logger.Error("fetch panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			value = nil
			err = fmt.Errorf("fetch panic (correlation_id: %s)", correlationID)
		}
	}()
	if fetch == nil {
		return nil, errors.New("job has no fetch function")
	}
	return fetch(ctx)
}
