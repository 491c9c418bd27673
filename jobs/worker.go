package jobs

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrPoolStopped is returned by Submit after Stop
var ErrPoolStopped = errors.New("worker pool is shutting down")

// Job represents a unit of work.
// Execute receives a context that is cancelled when the pool stops.
type Job struct {
	ID      string
	Execute func(ctx context.Context) error
}

// WorkerPool manages a pool of workers for async job processing
type WorkerPool struct {
	workerCount int
	jobQueue    chan Job
	wg          sync.WaitGroup
	stopOnce    sync.Once
	done        chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workerCount int, logger *zap.Logger) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	pool := &WorkerPool{
		workerCount: workerCount,
		jobQueue:    make(chan Job, workerCount*2), // Buffer size = 2x workers
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.Named("jobs"),
	}

	for i := 0; i < workerCount; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	pool.logger.Info("worker pool started", zap.Int("workers", workerCount))
	return pool
}

// worker processes jobs from the queue
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobQueue:
			p.run(id, job)
		case <-p.done:
			p.logger.Debug("worker stopped", zap.Int("worker", id))
			return
		}
	}
}

func (p *WorkerPool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", zap.Int("worker", id), zap.String("job_id", job.ID), zap.Any("panic", r))
		}
	}()

	if err := job.Execute(p.ctx); err != nil {
		p.logger.Warn("job failed", zap.Int("worker", id), zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	p.logger.Debug("job completed", zap.Int("worker", id), zap.String("job_id", job.ID))
}

// Submit adds a job to the queue; it blocks while the queue is full
func (p *WorkerPool) Submit(job Job) error {
	select {
	case <-p.done:
		return ErrPoolStopped
	default:
	}

	select {
	case p.jobQueue <- job:
		return nil
	case <-p.done:
		return ErrPoolStopped
	}
}

// Stop cancels running jobs and waits for the workers to exit.
// Jobs still queued are dropped.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("stopping worker pool")
		p.cancel()
		close(p.done)
		p.wg.Wait()
		p.logger.Info("worker pool stopped")
	})
}

// QueueSize returns the current number of jobs in queue
func (p *WorkerPool) QueueSize() int {
	return len(p.jobQueue)
}

// Workers returns the configured worker count
func (p *WorkerPool) Workers() int {
	return p.workerCount
}
