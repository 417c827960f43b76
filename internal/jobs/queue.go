package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rowan/commitdeck/internal/logger"
)

// fallbackErrorMessage stands in for worker errors that carry no text.
const fallbackErrorMessage = "unknown error"

// Worker executes one job and signals success by returning a result or
// failure by returning an error. It is the sole execution path for every
// job regardless of type and branches internally on the payload.
type Worker func(ctx context.Context, job Job) (any, error)

// EventKind enumerates the small fixed set of lifecycle transitions.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// Event is one lifecycle notification.
type Event struct {
	Kind     EventKind
	JobID    string
	Type     Type
	Progress int    // meaningful for EventProgress
	Error    string // meaningful for EventFailed
}

// QueueConfig holds queue tuning knobs.
type QueueConfig struct {
	Retention     time.Duration // how long terminal jobs are kept
	SweepInterval time.Duration // GC cadence
	JobTimeout    time.Duration // per-job watchdog; 0 disables
}

// Queue is a single-consumer FIFO task scheduler. It admits typed jobs,
// guarantees one job executes at a time, exposes status and progress to
// pollers, and garbage-collects terminal jobs after a retention window.
// Queue state lives in process memory only; restarts drop it.
type Queue struct {
	mu         sync.Mutex
	jobs       map[string]*Job
	waiting    []string // FIFO wait-list of job ids
	processing bool     // guards against concurrent dispatch
	worker     Worker
	observers  []func(Event)

	retention     time.Duration
	sweepInterval time.Duration
	jobTimeout    time.Duration

	log      *logger.Logger
	stopOnce sync.Once
	stop     chan struct{}
}

// NewQueue creates a new queue.
// Parameters:
//   - cfg: retention, sweep, and timeout settings; nil uses defaults.
//   - log: logger; nil uses the default logger.
// Returns:
//   - *Queue: initialized queue; call StartSweeper to enable GC and Close
//     on shutdown.
func NewQueue(cfg *QueueConfig, log *logger.Logger) *Queue {
	if cfg == nil {
		cfg = &QueueConfig{}
	}
	if log == nil {
		log = logger.GetDefault()
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = time.Hour
	}
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	return &Queue{
		jobs:          make(map[string]*Job),
		retention:     retention,
		sweepInterval: sweepInterval,
		jobTimeout:    cfg.JobTimeout,
		log:           log,
		stop:          make(chan struct{}),
	}
}

// RegisterWorker sets the single worker function. Must be called before any
// job can run; jobs enqueued earlier stay pending until a worker exists.
// Parameters:
//   - fn: worker to execute every job.
// Returns: none.
func (q *Queue) RegisterWorker(fn Worker) {
	q.mu.Lock()
	q.worker = fn
	q.mu.Unlock()
	q.dispatch()
}

// Subscribe registers a lifecycle observer. Observers are invoked
// synchronously after each transition and must not block.
func (q *Queue) Subscribe(fn func(Event)) {
	q.mu.Lock()
	q.observers = append(q.observers, fn)
	q.mu.Unlock()
}

// Enqueue admits a job and returns its id immediately. The queue is
// unbounded; enqueue never blocks and never rejects.
// Parameters:
//   - payload: typed job input; the type tag is derived from it.
// Returns:
//   - string: generated job id.
func (q *Queue) Enqueue(payload Payload) string {
	t := payload.JobType()
	job := &Job{
		ID:        newJobID(t),
		Type:      t,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.waiting = append(q.waiting, job.ID)
	q.mu.Unlock()

	q.log.WithFields(logger.Fields{
		logger.FieldJobID:   job.ID,
		logger.FieldJobType: string(t),
	}).Info("Job enqueued")

	q.dispatch()
	return job.ID
}

// Get returns a copy of the job, or false when unknown.
func (q *Queue) Get(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns copies of all jobs in any state, unordered.
func (q *Queue) List() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, *job)
	}
	return out
}

// Stats holds counts by status.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Stats returns current counts by status.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{Total: len(q.jobs)}
	for _, job := range q.jobs {
		switch job.Status {
		case StatusPending:
			s.Pending++
		case StatusProcessing:
			s.Processing++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// UpdateProgress sets a job's progress percentage. No-op when the id is
// unknown; repeated and out-of-order calls are fine, last write wins.
// Parameters:
//   - id: job id.
//   - percent: progress value, clamped to 0-100.
// Returns: none.
func (q *Queue) UpdateProgress(id string, percent int) {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}

	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	job.Progress = &percent
	t := job.Type
	q.mu.Unlock()

	q.notify(Event{Kind: EventProgress, JobID: id, Type: t, Progress: percent})
}

// dispatch pops the head of the wait-list and runs it when the queue is
// idle. Called on enqueue, on worker registration, and on completion of any
// job; the processing flag makes execution strictly one at a time.
func (q *Queue) dispatch() {
	q.mu.Lock()
	if q.processing || q.worker == nil || len(q.waiting) == 0 {
		q.mu.Unlock()
		return
	}

	id := q.waiting[0]
	q.waiting = q.waiting[1:]
	job, ok := q.jobs[id]
	if !ok {
		// Swept or otherwise gone; try the next one.
		q.mu.Unlock()
		q.dispatch()
		return
	}

	now := time.Now()
	job.Status = StatusProcessing
	job.StartedAt = &now
	q.processing = true
	snapshot := *job
	worker := q.worker
	q.mu.Unlock()

	q.notify(Event{Kind: EventStarted, JobID: id, Type: snapshot.Type})
	go q.run(worker, snapshot)
}

// run executes one job and records its terminal outcome.
func (q *Queue) run(worker Worker, job Job) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if q.jobTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, q.jobTimeout)
		defer cancel()
	}
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldJobID:   job.ID,
		logger.FieldJobType: string(job.Type),
	})

	start := time.Now()
	result, err := q.invoke(ctx, worker, job)

	q.mu.Lock()
	stored, ok := q.jobs[job.ID]
	if ok {
		now := time.Now()
		stored.CompletedAt = &now
		if err != nil {
			stored.Status = StatusFailed
			stored.Error = errorMessage(err)
		} else {
			stored.Status = StatusCompleted
			stored.Result = result
		}
	}
	q.processing = false
	q.mu.Unlock()

	if err != nil {
		logger.With(logger.Fields{
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
		}).Error(ctx, "Job failed: %v", err)
		q.notify(Event{Kind: EventFailed, JobID: job.ID, Type: job.Type, Error: errorMessage(err)})
	} else {
		logger.With(logger.Fields{
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
		}).Info(ctx, "Job completed")
		q.notify(Event{Kind: EventCompleted, JobID: job.ID, Type: job.Type})
	}

	q.dispatch()
}

// invoke calls the worker with panic containment so a panicking job is
// recorded as failed instead of taking the process down.
func (q *Queue) invoke(ctx context.Context, worker Worker, job Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return worker(ctx, job)
}

func (q *Queue) notify(ev Event) {
	q.mu.Lock()
	observers := make([]func(Event), len(q.observers))
	copy(observers, q.observers)
	q.mu.Unlock()
	for _, fn := range observers {
		fn(ev)
	}
}

func errorMessage(err error) string {
	msg := err.Error()
	if msg == "" {
		return fallbackErrorMessage
	}
	return msg
}

// StartSweeper launches the periodic GC of terminal jobs. Stopped by Close.
func (q *Queue) StartSweeper() {
	go func() {
		ticker := time.NewTicker(q.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed := q.sweep(time.Now())
				if removed > 0 {
					q.log.WithField(logger.FieldCount, removed).Debug("Swept terminal jobs")
				}
			case <-q.stop:
				return
			}
		}
	}()
}

// sweep removes terminal jobs whose completion time is older than the
// retention window. Pending and processing jobs always survive.
func (q *Queue) sweep(now time.Time) int {
	cutoff := now.Add(-q.retention)

	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	for id, job := range q.jobs {
		if !job.Status.Terminal() {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
		}
	}
	return removed
}

// Close stops the sweeper. Pending jobs are not drained; queue state lives
// only in memory and restarts drop it.
func (q *Queue) Close() {
	q.stopOnce.Do(func() { close(q.stop) })
}
