package analyzer

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/anime-shed/vision-guard-go/internal/logger"
	"github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned when submitting to a closed pool
var ErrPoolClosed = errors.New("worker pool closed")

// PoolStats is a point-in-time view of pool activity
type PoolStats struct {
	TotalJobs     int64
	CompletedJobs int64
	ActiveWorkers int64
	QueuedJobs    int
}

// WorkerPool runs inference jobs on a fixed set of goroutines. A job, once queued,
// always runs to completion even if the submitter stops waiting for it.
type WorkerPool struct {
	workers  int
	jobQueue chan func()
	wg       sync.WaitGroup
	once     sync.Once

	mu     sync.RWMutex
	closed bool

	totalJobs     atomic.Int64
	completedJobs atomic.Int64
	activeWorkers atomic.Int64
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &WorkerPool{
		workers:  workers,
		jobQueue: make(chan func(), workers*2),
	}
}

// Start launches the workers. Calling it more than once is a no-op.
func (wp *WorkerPool) Start() {
	wp.once.Do(func() {
		for i := 0; i < wp.workers; i++ {
			go wp.worker()
		}
	})
}

func (wp *WorkerPool) worker() {
	for job := range wp.jobQueue {
		wp.execute(job)
	}
}

func (wp *WorkerPool) execute(job func()) {
	wp.activeWorkers.Add(1)
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{"panic": r}).Error("Worker pool job panicked")
		}
		wp.activeWorkers.Add(-1)
		wp.completedJobs.Add(1)
		wp.wg.Done()
	}()
	job()
}

// SubmitContext queues job, waiting for queue space until ctx is done
func (wp *WorkerPool) SubmitContext(ctx context.Context, job func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return ErrPoolClosed
	}

	wp.wg.Add(1)
	select {
	case wp.jobQueue <- job:
		wp.totalJobs.Add(1)
		return nil
	case <-ctx.Done():
		wp.wg.Done()
		return ctx.Err()
	}
}

// Submit queues job and reports whether it was accepted
func (wp *WorkerPool) Submit(job func()) bool {
	return wp.SubmitContext(context.Background(), job) == nil
}

// Run queues job and waits for it to finish or for ctx to be done, whichever is first.
// A nil return means the job has completed.
func (wp *WorkerPool) Run(ctx context.Context, job func()) error {
	done := make(chan struct{})
	if err := wp.SubmitContext(ctx, func() {
		defer close(done)
		job()
	}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every accepted job has completed
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// GetStats returns current counters
func (wp *WorkerPool) GetStats() PoolStats {
	return PoolStats{
		TotalJobs:     wp.totalJobs.Load(),
		CompletedJobs: wp.completedJobs.Load(),
		ActiveWorkers: wp.activeWorkers.Load(),
		QueuedJobs:    len(wp.jobQueue),
	}
}

// Close stops accepting jobs. Already queued jobs still run.
func (wp *WorkerPool) Close() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return
	}
	wp.closed = true
	close(wp.jobQueue)
}
