// Package worker provides a small reusable goroutine pool. The scan loop
// uses it to evaluate symbols in parallel without spawning per-cycle
// goroutines.
package worker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool runs submitted tasks on a fixed set of workers.
type Pool struct {
	workers   int
	taskQueue chan func()
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	running   atomic.Bool
	done      atomic.Uint64
}

// NewPool creates a pool. workers <= 0 defaults to runtime.NumCPU().
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers:   workers,
		taskQueue: make(chan func(), workers*16),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the workers. Starting a running pool is a no-op.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			task()
			p.done.Add(1)
		}
	}
}

// Submit enqueues a task. It returns false when the pool is stopped or the
// queue is full; callers fall back to running the task inline.
func (p *Pool) Submit(task func()) bool {
	if !p.running.Load() {
		return false
	}
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Map runs fn over every item and blocks until all complete. Items the
// queue cannot absorb run on the calling goroutine.
func (p *Pool) Map(n int, fn func(i int)) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			fn(i)
		}
		if !p.Submit(task) {
			task()
		}
	}
	wg.Wait()
}

// Stop drains the pool and waits for the workers to exit.
func (p *Pool) Stop() {
	if !p.running.Swap(false) {
		return
	}
	p.cancel()
	close(p.taskQueue)
	p.wg.Wait()
}

// Completed returns the number of finished tasks.
func (p *Pool) Completed() uint64 {
	return p.done.Load()
}
