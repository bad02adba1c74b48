// Package workerpool provides a bounded goroutine pool used by task runners
// to process tiles with a caller-chosen degree of parallelism.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Job is a unit of work executed by the pool.
type Job struct {
	ID      string
	Fn      func(context.Context) error
	Context context.Context
}

// Pool manages a bounded set of worker goroutines.
type Pool struct {
	name       string
	maxWorkers int
	queueSize  int
	jobs       chan Job
	logger     *zap.Logger
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopChan   chan struct{}

	activeWorkers int32
	submittedJobs uint64
	completedJobs uint64
	failedJobs    uint64
	rejectedJobs  uint64
}

// Config holds pool configuration.
type Config struct {
	Name       string
	MaxWorkers int
	QueueSize  int
	Logger     *zap.Logger
}

// New creates a pool and starts its workers.
func New(cfg *Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4 * cfg.MaxWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &Pool{
		name:       cfg.Name,
		maxWorkers: cfg.MaxWorkers,
		queueSize:  cfg.QueueSize,
		jobs:       make(chan Job, cfg.QueueSize),
		logger:     cfg.Logger,
		stopChan:   make(chan struct{}),
	}

	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.Debug("Worker pool started",
		zap.String("name", p.name),
		zap.Int("max_workers", p.maxWorkers),
		zap.Int("queue_size", p.queueSize))

	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case job := <-p.jobs:
			p.run(id, job)
		}
	}
}

func (p *Pool) run(workerID int, job Job) {
	atomic.AddInt32(&p.activeWorkers, 1)
	defer atomic.AddInt32(&p.activeWorkers, -1)

	start := time.Now()
	err := p.execute(job)
	duration := time.Since(start)

	if err != nil {
		atomic.AddUint64(&p.failedJobs, 1)
		p.logger.Error("Job failed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID),
			zap.Duration("duration", duration),
			zap.Error(err))
	} else {
		atomic.AddUint64(&p.completedJobs, 1)
		p.logger.Debug("Job completed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID),
			zap.Duration("duration", duration))
	}
}

// execute runs a job with panic recovery so one misbehaving tile cannot
// take down the pool.
func (p *Pool) execute(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			p.logger.Error("Job panic recovered",
				zap.String("pool", p.name),
				zap.String("job_id", job.ID),
				zap.Any("panic", r))
		}
	}()

	if job.Context == nil {
		job.Context = context.Background()
	}
	return job.Fn(job.Context)
}

// Submit enqueues a job without blocking. Returns an error if the queue is
// full or the pool is stopped.
func (p *Pool) Submit(job Job) error {
	select {
	case <-p.stopChan:
		atomic.AddUint64(&p.rejectedJobs, 1)
		return fmt.Errorf("worker pool %q is stopped", p.name)
	default:
	}

	select {
	case p.jobs <- job:
		atomic.AddUint64(&p.submittedJobs, 1)
		return nil
	default:
		atomic.AddUint64(&p.rejectedJobs, 1)
		return fmt.Errorf("worker pool %q queue is full", p.name)
	}
}

// SubmitWait enqueues a job, blocking until accepted, the context is
// canceled, or the pool stops.
func (p *Pool) SubmitWait(ctx context.Context, job Job) error {
	select {
	case <-p.stopChan:
		atomic.AddUint64(&p.rejectedJobs, 1)
		return fmt.Errorf("worker pool %q is stopped", p.name)
	case <-ctx.Done():
		atomic.AddUint64(&p.rejectedJobs, 1)
		return ctx.Err()
	case p.jobs <- job:
		atomic.AddUint64(&p.submittedJobs, 1)
		return nil
	}
}

// Stop shuts the pool down, waiting up to timeout for in-flight jobs.
func (p *Pool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		close(p.stopChan)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			p.logger.Debug("Worker pool stopped", zap.String("name", p.name))
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool %q stop timeout after %v", p.name, timeout)
		}
	})
	return err
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Name          string
	MaxWorkers    int
	ActiveWorkers int
	QueuedJobs    int
	SubmittedJobs uint64
	CompletedJobs uint64
	FailedJobs    uint64
	RejectedJobs  uint64
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Name:          p.name,
		MaxWorkers:    p.maxWorkers,
		ActiveWorkers: int(atomic.LoadInt32(&p.activeWorkers)),
		QueuedJobs:    len(p.jobs),
		SubmittedJobs: atomic.LoadUint64(&p.submittedJobs),
		CompletedJobs: atomic.LoadUint64(&p.completedJobs),
		FailedJobs:    atomic.LoadUint64(&p.failedJobs),
		RejectedJobs:  atomic.LoadUint64(&p.rejectedJobs),
	}
}
