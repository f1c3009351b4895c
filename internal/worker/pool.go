// Package worker provides a fixed-size pool of goroutines that process
// submitted jobs until the queue is closed or the context is cancelled.
package worker

import (
	"context"
	"sync"
)

// ProcessFunc handles one job.
type ProcessFunc[T any] func(ctx context.Context, job T)

// Pool runs a fixed number of workers reading from a buffered queue.
type Pool[T any] struct {
	numWorkers int
	jobs       chan T
	processor  ProcessFunc[T]
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

// NewPool creates a pool. numWorkers below 1 is treated as 1.
func NewPool[T any](numWorkers, bufferSize int, processor ProcessFunc[T]) *Pool[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Pool[T]{
		numWorkers: numWorkers,
		jobs:       make(chan T, bufferSize),
		processor:  processor,
	}
}

// Start launches the workers. Workers exit when the queue is closed by Stop
// or when ctx is cancelled; jobs still queued at cancellation are dropped.
func (p *Pool[T]) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.processor(ctx, job)
		}
	}
}

// Submit queues a job, blocking while the buffer is full. It returns the
// context error if ctx is cancelled first.
func (p *Pool[T]) Submit(ctx context.Context, job T) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- job:
		return nil
	}
}

// Stop closes the queue and waits for the workers to drain it. Submit must
// not be called after Stop.
func (p *Pool[T]) Stop() {
	p.stopOnce.Do(func() { close(p.jobs) })
	p.wg.Wait()
}

// Run is a convenience that processes every job with a fresh pool and
// returns once all of them have been handled or ctx is cancelled.
func Run[T any](ctx context.Context, numWorkers int, jobs []T, processor ProcessFunc[T]) {
	pool := NewPool(numWorkers, len(jobs), processor)
	pool.Start(ctx)
	for _, job := range jobs {
		if err := pool.Submit(ctx, job); err != nil {
			break
		}
	}
	pool.Stop()
}
