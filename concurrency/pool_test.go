package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewWorkerPool(t *testing.T) {
	pool := NewWorkerPool(5)

	if pool.MaxWorkers() != 5 {
		t.Errorf("Expected max workers 5, got %d", pool.MaxWorkers())
	}

	pool2 := NewWorkerPool(0)
	if pool2.MaxWorkers() != 10 {
		t.Errorf("Expected default max workers 10, got %d", pool2.MaxWorkers())
	}
}

func TestWorkerPoolExecutesTasks(t *testing.T) {
	pool := NewWorkerPool(3)
	pool.Start()

	var counter int32
	numTasks := 10

	for i := 0; i < numTasks; i++ {
		if err := pool.Submit(context.Background(), func() {
			atomic.AddInt32(&counter, 1)
		}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	// Stop drains the queue
	pool.Stop()

	if atomic.LoadInt32(&counter) != int32(numTasks) {
		t.Errorf("Expected %d tasks executed, got %d", numTasks, atomic.LoadInt32(&counter))
	}
}

func TestWorkerPoolConcurrencyLimit(t *testing.T) {
	maxWorkers := 3
	pool := NewWorkerPool(maxWorkers)
	pool.Start()

	var currentConcurrent int32
	var maxConcurrent int32

	for i := 0; i < 10; i++ {
		pool.Submit(context.Background(), func() {
			current := atomic.AddInt32(&currentConcurrent, 1)
			for {
				max := atomic.LoadInt32(&maxConcurrent)
				if current <= max || atomic.CompareAndSwapInt32(&maxConcurrent, max, current) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&currentConcurrent, -1)
		})
	}
	pool.Stop()

	if maxObserved := atomic.LoadInt32(&maxConcurrent); maxObserved > int32(maxWorkers) {
		t.Errorf("Expected max concurrent workers %d, but observed %d", maxWorkers, maxObserved)
	}
}

func TestWorkerPoolSubmitBeforeStart(t *testing.T) {
	pool := NewWorkerPool(3)

	var executed bool
	if err := pool.Submit(context.Background(), func() { executed = true }); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if !executed {
		t.Error("Task should have been executed synchronously before pool start")
	}
}

func TestWorkerPoolSubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()
	pool.Stop()

	err := pool.Submit(context.Background(), func() {})
	if !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Expected ErrPoolStopped, got %v", err)
	}
	if pool.TrySubmit(func() {}) {
		t.Error("TrySubmit should fail on a stopped pool")
	}

	// Stop twice is a no-op
	pool.Stop()
}

func TestWorkerPoolTrySubmitFull(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()
	defer pool.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	pool.Submit(context.Background(), func() {
		close(started)
		<-block
	})
	<-started

	// queue capacity is 2 for a single worker
	if !pool.TrySubmit(func() {}) || !pool.TrySubmit(func() {}) {
		t.Fatal("Expected queue to accept two tasks")
	}
	if pool.TrySubmit(func() {}) {
		t.Error("TrySubmit should fail when the queue is full")
	}
	if got := pool.QueueLength(); got != 2 {
		t.Errorf("Expected queue length 2, got %d", got)
	}
	if got := pool.Active(); got != 1 {
		t.Errorf("Expected 1 active task, got %d", got)
	}

	close(block)
}

func TestWorkerPoolSubmitHonorsContext(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()
	defer pool.Stop()

	block := make(chan struct{})
	defer close(block)
	pool.Submit(context.Background(), func() { <-block })
	pool.Submit(context.Background(), func() {})
	pool.Submit(context.Background(), func() {})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// one slot may still be free if the worker has not dequeued yet
	var err error
	for i := 0; i < 2 && err == nil; i++ {
		err = pool.Submit(ctx, func() {})
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestWorkerPoolRecoversPanics(t *testing.T) {
	pool := NewWorkerPool(1)

	var recovered atomic.Value
	pool.OnPanic(func(r any) { recovered.Store(r) })
	pool.Start()

	pool.Submit(context.Background(), func() { panic("boom") })

	var ran int32
	pool.Submit(context.Background(), func() { atomic.AddInt32(&ran, 1) })
	pool.Stop()

	if recovered.Load() != "boom" {
		t.Errorf("Expected panic value boom, got %v", recovered.Load())
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Error("Worker should keep running after a panicking task")
	}
}
