// Package jobqueue runs import and dedup jobs on a bounded worker pool,
// the same shape as the teacher's pkg/workerpool: a fixed number of
// long-lived workers pulling directly from a buffered channel, with a
// clean, timeout-bounded Stop.
package jobqueue

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is one unit of background work: a dedup run, an overlap run, or
// an import parse. Execute receives a context cancelled at Stop or at
// its own per-job timeout, whichever comes first.
type Job struct {
	ID      string
	Execute func(ctx context.Context) error
	Created time.Time
}

// Config controls pool sizing and timeouts.
type Config struct {
	MaxWorkers      int           `yaml:"max_workers"`
	QueueSize       int           `yaml:"queue_size"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = runtime.NumCPU()
	}
	if c.QueueSize <= 0 {
		c.QueueSize = c.MaxWorkers * 10
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = 10 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return c
}

var (
	ErrQueueNotRunning = fmt.Errorf("job queue is not running")
	ErrQueueFull       = fmt.Errorf("job queue is full")
)

// Queue is a bounded worker pool for background jobs.
type Queue struct {
	cfg    Config
	logger *logrus.Logger

	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	isRunning bool

	completed int64
	failed    int64
}

// New builds a Queue. Start must be called before Submit accepts work.
func New(cfg Config, logger *logrus.Logger) *Queue {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan Job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start spins up the configured number of workers.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isRunning {
		return
	}
	q.logger.WithFields(logrus.Fields{"max_workers": q.cfg.MaxWorkers, "queue_size": q.cfg.QueueSize}).Info("starting job queue")
	for i := 0; i < q.cfg.MaxWorkers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.isRunning = true
}

// Stop cancels running jobs and waits up to ShutdownTimeout for workers
// to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return
	}
	q.isRunning = false
	q.mu.Unlock()

	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("job queue stopped gracefully")
	case <-time.After(q.cfg.ShutdownTimeout):
		q.logger.Warn("job queue shutdown timed out")
	}
}

// Submit enqueues a job. It never blocks: a full queue returns
// ErrQueueFull immediately so the caller can surface a 503 rather than
// hang a request goroutine.
func (q *Queue) Submit(job Job) error {
	q.mu.Lock()
	running := q.isRunning
	q.mu.Unlock()
	if !running {
		return ErrQueueNotRunning
	}

	job.Created = time.Now()
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stats reports a snapshot of completed/failed job counts.
type Stats struct {
	Queued    int
	Completed int64
	Failed    int64
}

func (q *Queue) Stats() Stats {
	return Stats{
		Queued:    len(q.jobs),
		Completed: atomic.LoadInt64(&q.completed),
		Failed:    atomic.LoadInt64(&q.failed),
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for {
		select {
		case job := <-q.jobs:
			q.run(id, job)
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(q.ctx, q.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	err := job.Execute(ctx)
	duration := time.Since(start)

	fields := logrus.Fields{"worker_id": workerID, "job_id": job.ID, "duration": duration}
	if err != nil {
		atomic.AddInt64(&q.failed, 1)
		q.logger.WithFields(fields).WithError(err).Error("job failed")
		return
	}
	atomic.AddInt64(&q.completed, 1)
	q.logger.WithFields(fields).Debug("job completed")
}
