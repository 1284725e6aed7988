package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrPoolStopped is returned when submitting to a stopped pool
var ErrPoolStopped = errors.New("worker pool stopped")

// WorkerPool runs rule actions on a bounded set of goroutines so a slow
// action never stalls the clock step that triggered it.
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	wg         sync.WaitGroup
	mu         sync.RWMutex
	started    bool
	stopped    bool
	active     atomic.Int32
	onPanic    func(recovered any)
}

// NewWorkerPool creates a new worker pool with the specified max workers
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 10 // default
	}

	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), maxWorkers*2),
	}
}

// OnPanic installs a handler for panics raised by tasks. Without one a
// panicking task is recovered and dropped.
func (p *WorkerPool) OnPanic(fn func(recovered any)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPanic = fn
}

// Start starts the worker pool. A stopped pool cannot be restarted.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for task := range p.taskQueue {
		p.run(task)
	}
}

func (p *WorkerPool) run(task func()) {
	p.active.Add(1)
	defer p.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.mu.RLock()
			handler := p.onPanic
			p.mu.RUnlock()
			if handler != nil {
				handler(r)
			}
		}
	}()
	task()
}

// Submit queues a task, blocking while the queue is full. Before Start the
// task runs synchronously on the caller's goroutine.
func (p *WorkerPool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return ErrPoolStopped
	}
	if !p.started {
		p.mu.RUnlock()
		p.run(task)
		return nil
	}
	defer p.mu.RUnlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.taskQueue <- task:
		return nil
	}
}

// TrySubmit queues a task without blocking. It reports false when the queue
// is full, the pool is stopped, or the pool has not been started.
func (p *WorkerPool) TrySubmit(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started || p.stopped {
		return false
	}
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for queued and running tasks to finish
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	if p.started {
		close(p.taskQueue)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// QueueLength returns the current number of tasks in the queue
func (p *WorkerPool) QueueLength() int {
	return len(p.taskQueue)
}

// Active returns the number of tasks currently executing
func (p *WorkerPool) Active() int {
	return int(p.active.Load())
}

// MaxWorkers returns the maximum number of workers in the pool
func (p *WorkerPool) MaxWorkers() int {
	return p.maxWorkers
}
