package engine

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolStopped is returned when submitting to a stopped pool
var ErrPoolStopped = errors.New("worker pool stopped")

// WorkerPool manages a pool of workers for parallel decisions
type WorkerPool struct {
	workers int
	tasks   chan func()
	wg      sync.WaitGroup
	started bool
	mu      sync.RWMutex
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = 16
	}

	pool := &WorkerPool{
		workers: workers,
		tasks:   make(chan func(), workers*10), // Buffered channel
	}

	pool.start()
	return pool
}

// start initializes the worker goroutines
func (p *WorkerPool) start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.started = true
}

// worker processes tasks from the queue
func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit queues a task, blocking while the queue is full. It fails if the
// pool has been stopped or ctx is done first.
func (p *WorkerPool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started {
		return ErrPoolStopped
	}

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop waits for queued tasks to finish and stops the workers
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	close(p.tasks)
	p.started = false
	p.mu.Unlock()

	p.wg.Wait()
}

// Workers returns the number of workers
func (p *WorkerPool) Workers() int {
	return p.workers
}
