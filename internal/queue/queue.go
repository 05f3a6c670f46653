// Package queue provides a small in-process job queue with at-least-once
// execution, bounded automatic retries with backoff, per-attempt progress
// reporting and capped completed/failed history.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Job states.
const (
	StateWaiting   = "waiting"
	StateActive    = "active"
	StateDelayed   = "delayed"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Backoff strategies between retry attempts.
const (
	BackoffExponential = "exponential"
	BackoffFixed       = "fixed"
)

// Task is one unit of work. It receives a context that is cancelled when
// the queue shuts down and a callback for reporting progress percent.
type Task func(ctx context.Context, reportProgress func(int)) error

// Options control retry and history behavior for enqueued jobs.
type Options struct {
	Attempts         int
	Backoff          string
	Delay            time.Duration
	RemoveOnComplete int
	RemoveOnFail     int
}

type job struct {
	id   string
	task Task
	opts Options

	state        string
	progress     int
	attemptsMade int
	failedReason string
}

// JobStatus is a point-in-time copy of a job's externally visible state.
type JobStatus struct {
	ID           string
	State        string
	Progress     int
	AttemptsMade int
	FailedReason string
}

// Queue runs enqueued tasks on a fixed pool of workers.
type Queue struct {
	name     string
	workers  int
	defaults Options

	mu        sync.Mutex
	jobs      map[string]*job
	completed []string
	failed    []string

	pending chan *job
	group   *errgroup.Group
	log     *logrus.Entry
}

func New(name string, workers int, defaults Options) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if defaults.Attempts <= 0 {
		defaults.Attempts = 1
	}
	return &Queue{
		name:     name,
		workers:  workers,
		defaults: defaults,
		jobs:     make(map[string]*job),
		pending:  make(chan *job, 1024),
		log:      logrus.WithField("queue", name),
	}
}

// Start launches the worker pool. It returns immediately; workers run until
// the context is cancelled and the pending channel is drained.
func (q *Queue) Start(ctx context.Context) {
	group, ctx := errgroup.WithContext(ctx)
	q.group = group
	for i := 0; i < q.workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case j, ok := <-q.pending:
					if !ok {
						return nil
					}
					q.run(ctx, j)
				}
			}
		})
	}
}

// Wait blocks until every worker has exited.
func (q *Queue) Wait() error {
	if q.group == nil {
		return nil
	}
	return q.group.Wait()
}

// Enqueue registers a job under the given id and schedules it. A job id can
// only be active once; re-enqueueing a finished id resets its state.
func (q *Queue) Enqueue(id string, task Task, opts *Options) (JobStatus, error) {
	effective := q.defaults
	if opts != nil {
		effective = *opts
		if effective.Attempts <= 0 {
			effective.Attempts = q.defaults.Attempts
		}
		if effective.Backoff == "" {
			effective.Backoff = q.defaults.Backoff
		}
		if effective.Delay <= 0 {
			effective.Delay = q.defaults.Delay
		}
	}

	q.mu.Lock()
	if existing, ok := q.jobs[id]; ok &&
		(existing.state == StateWaiting || existing.state == StateActive || existing.state == StateDelayed) {
		q.mu.Unlock()
		return JobStatus{}, fmt.Errorf("job %s is already queued", id)
	}
	j := &job{id: id, task: task, opts: effective, state: StateWaiting}
	q.jobs[id] = j
	q.mu.Unlock()

	select {
	case q.pending <- j:
	default:
		q.mu.Lock()
		delete(q.jobs, id)
		q.mu.Unlock()
		return JobStatus{}, fmt.Errorf("queue %s is full", q.name)
	}
	return q.snapshot(j), nil
}

// GetJob returns the job's current status, or nil when the id is unknown or
// already trimmed from history.
func (q *Queue) GetJob(id string) *JobStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return nil
	}
	status := q.snapshotLocked(j)
	return &status
}

func (q *Queue) run(ctx context.Context, j *job) {
	report := func(pct int) {
		q.mu.Lock()
		if pct > j.progress {
			j.progress = pct
		}
		q.mu.Unlock()
	}

	for {
		q.mu.Lock()
		j.state = StateActive
		j.attemptsMade++
		attempt := j.attemptsMade
		q.mu.Unlock()

		err := j.task(ctx, report)
		if err == nil {
			q.finish(j, StateCompleted, "")
			return
		}

		q.log.WithError(err).WithFields(logrus.Fields{
			"job":     j.id,
			"attempt": attempt,
		}).Warn("job attempt failed")

		if attempt >= j.opts.Attempts || ctx.Err() != nil {
			q.finish(j, StateFailed, err.Error())
			return
		}

		q.mu.Lock()
		j.state = StateDelayed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			q.finish(j, StateFailed, ctx.Err().Error())
			return
		case <-time.After(q.backoff(j.opts, attempt)):
		}
	}
}

func (q *Queue) backoff(opts Options, attempt int) time.Duration {
	delay := opts.Delay
	if delay <= 0 {
		delay = time.Second
	}
	if opts.Backoff == BackoffExponential {
		for i := 1; i < attempt; i++ {
			delay *= 2
		}
	}
	return delay
}

// finish records the terminal state and trims retained history beyond the
// configured caps.
func (q *Queue) finish(j *job, state, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j.state = state
	j.failedReason = reason
	if state == StateCompleted {
		j.progress = 100
		q.completed = append(q.completed, j.id)
		q.trimLocked(&q.completed, j.opts.RemoveOnComplete)
	} else {
		q.failed = append(q.failed, j.id)
		q.trimLocked(&q.failed, j.opts.RemoveOnFail)
	}
}

func (q *Queue) trimLocked(history *[]string, limit int) {
	if limit <= 0 {
		return
	}
	for len(*history) > limit {
		oldest := (*history)[0]
		*history = (*history)[1:]
		delete(q.jobs, oldest)
	}
}

func (q *Queue) snapshot(j *job) JobStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked(j)
}

func (q *Queue) snapshotLocked(j *job) JobStatus {
	return JobStatus{
		ID:           j.id,
		State:        j.state,
		Progress:     j.progress,
		AttemptsMade: j.attemptsMade,
		FailedReason: j.failedReason,
	}
}
