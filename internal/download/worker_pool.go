package download

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kordia/kordia-go/internal/api"
)

// Job is one song acquisition
type Job struct {
	ID   string
	Song api.Song
}

// Result represents the result of a job execution
type Result struct {
	JobID  string
	SongID string
	Error  error
}

// Success reports whether the job finished without error
func (r *Result) Success() bool {
	return r.Error == nil
}

// JobHandler is a function that processes a job
type JobHandler func(ctx context.Context, job *Job) error

// WorkerPool runs jobs on a fixed number of goroutines
type WorkerPool struct {
	maxWorkers int
	jobs       chan *Job
	results    chan *Result
	active     atomic.Int32
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	handler    JobHandler
	logger     *zap.Logger
	mu         sync.RWMutex
	started    bool
}

// NewWorkerPool creates a new worker pool able to hold queueSize pending
// jobs and results without blocking.
func NewWorkerPool(maxWorkers, queueSize int, handler JobHandler, logger *zap.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if queueSize < maxWorkers {
		queueSize = maxWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerPool{
		maxWorkers: maxWorkers,
		jobs:       make(chan *Job, queueSize),
		results:    make(chan *Result, queueSize),
		handler:    handler,
		logger:     logger,
	}
}

// Start spawns worker goroutines and begins processing jobs
func (wp *WorkerPool) Start(ctx context.Context) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.started {
		return fmt.Errorf("worker pool already started")
	}

	if wp.handler == nil {
		return fmt.Errorf("job handler not set")
	}

	wp.ctx, wp.cancel = context.WithCancel(ctx)

	for i := 0; i < wp.maxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.started = true
	return nil
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug("Worker stopping", zap.Int("worker", id), zap.Error(wp.ctx.Err()))
			return

		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			wp.processJob(job)
		}
	}
}

func (wp *WorkerPool) processJob(job *Job) {
	wp.active.Add(1)
	defer wp.active.Add(-1)

	result := &Result{
		JobID:  job.ID,
		SongID: job.Song.ID,
		Error:  wp.run(job),
	}

	select {
	case wp.results <- result:
	case <-wp.ctx.Done():
	}
}

// run calls the handler, turning a panic into the job's error
func (wp *WorkerPool) run(job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error("Job panicked", zap.String("job", job.ID), zap.Any("panic", r))
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return wp.handler(wp.ctx, job)
}

// Submit queues a job
func (wp *WorkerPool) Submit(job *Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if !wp.started {
		return fmt.Errorf("worker pool not started")
	}

	select {
	case wp.jobs <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Stop cancels running jobs and waits for the workers to exit
func (wp *WorkerPool) Stop() {
	wp.mu.RLock()
	started := wp.started
	wp.mu.RUnlock()
	if !started {
		return
	}

	// Cancel first so a Submit blocked on a full queue lets go of the lock
	wp.cancel()

	wp.mu.Lock()
	if !wp.started {
		wp.mu.Unlock()
		return
	}
	wp.started = false
	close(wp.jobs)
	wp.mu.Unlock()

	wp.wg.Wait()
	close(wp.results)
}

// Results returns the results channel
func (wp *WorkerPool) Results() <-chan *Result {
	return wp.results
}

// Active returns the number of jobs being handled right now
func (wp *WorkerPool) Active() int {
	return int(wp.active.Load())
}
