// Package worker runs background jobs on a fixed number of goroutines fed
// by a bounded queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrQueueFull = errors.New("worker queue is full")
	ErrStopped   = errors.New("worker pool is stopped")
)

type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type Stats struct {
	Workers   int    `json:"workers"`
	Queued    int    `json:"queued"`
	Capacity  int    `json:"capacity"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

// Pool executes jobs detached from whoever enqueued them. Each job gets its
// own timeout derived from the pool's root context, which is cancelled only
// when Stop gives up waiting.
type Pool struct {
	workers    int
	jobTimeout time.Duration
	jobs       chan Job

	mu      sync.RWMutex
	started bool
	stopped bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	processed atomic.Uint64
	failed    atomic.Uint64
}

func NewPool(workers, queueSize int, jobTimeout time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers:    workers,
		jobTimeout: jobTimeout,
		jobs:       make(chan Job, queueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	log.Info().
		Int("workers", p.workers).
		Int("capacity", cap(p.jobs)).
		Dur("jobTimeout", p.jobTimeout).
		Msg("worker pool started")
}

// Enqueue never blocks. A full queue is reported to the caller.
func (p *Pool) Enqueue(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects new jobs and waits for queued ones to finish. If ctx ends
// first, running jobs are cancelled and ctx.Err() is returned.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	close(p.jobs)
	p.mu.Unlock()

	if !started {
		p.cancel()
		if n := len(p.jobs); n > 0 {
			log.Warn().Int("dropped", n).Msg("worker pool stopped before start, dropping queued jobs")
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		log.Info().
			Uint64("processed", p.processed.Load()).
			Uint64("failed", p.failed.Load()).
			Msg("worker pool drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		log.Warn().
			Int("remaining", len(p.jobs)).
			Msg("worker pool drain timed out, cancelling running jobs")
		return ctx.Err()
	}
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Queued:    len(p.jobs),
		Capacity:  cap(p.jobs),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(id, job)
	}
}

func (p *Pool) run(workerID int, job Job) {
	ctx := p.ctx
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(p.ctx, p.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := safeRun(ctx, job)
	elapsed := time.Since(start)

	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
		log.Error().
			Err(err).
			Str("job", job.Name).
			Int("worker", workerID).
			Dur("elapsed", elapsed).
			Msg("job failed")
		return
	}

	log.Debug().
		Str("job", job.Name).
		Int("worker", workerID).
		Dur("elapsed", elapsed).
		Msg("job completed")
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Run(ctx)
}
