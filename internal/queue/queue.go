// Package queue admits crawl jobs against a fixed capacity and hands them
// to a runner. A single supervisor goroutine owns dispatch: submissions and
// job completions wake it, and it starts pending jobs whenever capacity is
// free. Capacity is only mutated under the queue mutex, so it can neither
// go negative nor exceed the configured limit.
package queue

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/apetros/sitemapper/internal/crawler"
	"github.com/apetros/sitemapper/internal/metrics"
)

// ErrShuttingDown is returned by Submit once Shutdown has begun.
var ErrShuttingDown = errors.New("queue is shutting down")

// State describes whether any job is currently executing.
type State string

const (
	StateRunning State = "RUNNING"
	StateIdle    State = "IDLE"
)

// Status is a point-in-time snapshot of the queue.
type Status struct {
	State    State `json:"state"`
	Pending  int   `json:"pending"`
	Running  int   `json:"running"`
	Capacity int   `json:"capacity"`
}

// Runner executes one crawl job to completion.
type Runner func(ctx context.Context, job crawler.Job) error

// Queue serializes job admission. Jobs wait in submission order and start
// as soon as the supervisor finds free capacity for them.
type Queue struct {
	runner   Runner
	logger   *zap.Logger
	capacity int

	mu        sync.Mutex
	pending   []crawler.Job
	available int
	closed    bool

	wake     chan struct{}
	stop     chan struct{}
	stopped  chan struct{}
	inflight sync.WaitGroup
}

// New builds a queue with the given capacity. Start must be called before
// submitted jobs run.
func New(runner Runner, capacity int, logger *zap.Logger) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		runner:    runner,
		logger:    logger,
		capacity:  capacity,
		available: capacity,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start launches the supervisor. Jobs run with the given context; canceling
// it cancels running jobs.
func (q *Queue) Start(ctx context.Context) {
	go q.supervise(ctx)
}

// Submit enqueues a job and returns its 1-based position among all jobs
// not yet finished, counting running ones.
func (q *Queue) Submit(job crawler.Job) (int, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, ErrShuttingDown
	}
	q.pending = append(q.pending, job)
	position := (q.capacity - q.available) + len(q.pending)
	q.publishLocked()
	q.mu.Unlock()

	q.signal()
	return position, nil
}

// Size returns the count of jobs not yet started.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Status reports the queue state without blocking on running jobs.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	running := q.capacity - q.available
	state := StateIdle
	if running > 0 {
		state = StateRunning
	}
	return Status{
		State:    state,
		Pending:  len(q.pending),
		Running:  running,
		Capacity: q.capacity,
	}
}

// Shutdown stops admission, drops pending jobs, and waits for in-flight
// jobs to finish or the context to end.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	alreadyClosed := q.closed
	if !alreadyClosed {
		q.closed = true
		dropped := len(q.pending)
		q.pending = nil
		q.publishLocked()
		if dropped > 0 {
			q.logger.Warn("dropping pending jobs on shutdown", zap.Int("count", dropped))
		}
	}
	q.mu.Unlock()

	if !alreadyClosed {
		close(q.stop)
	}
	<-q.stopped
	return q.waitInflight(ctx)
}

func (q *Queue) waitInflight(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) supervise(ctx context.Context) {
	defer close(q.stopped)
	for {
		q.dispatch(ctx)
		select {
		case <-q.wake:
		case <-q.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// dispatch starts as many pending jobs as free capacity allows.
func (q *Queue) dispatch(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.available > 0 && len(q.pending) > 0 {
		job := q.pending[0]
		q.pending = q.pending[1:]
		q.available--
		q.inflight.Add(1)
		go q.execute(ctx, job)
	}
	q.publishLocked()
}

func (q *Queue) execute(ctx context.Context, job crawler.Job) {
	defer q.inflight.Done()

	if err := q.runner(ctx, job); err != nil {
		q.logger.Error("job failed",
			zap.String("seed", job.Seed),
			zap.Error(err))
	}

	q.mu.Lock()
	q.available++
	q.publishLocked()
	q.mu.Unlock()

	q.signal()
}

// signal wakes the supervisor without blocking; one pending wakeup is
// enough because dispatch re-reads all shared state.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) publishLocked() {
	metrics.SetQueueState(len(q.pending), q.available)
}
