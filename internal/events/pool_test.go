package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolRunsSubmittedTasks(t *testing.T) {
	pool := NewWorkerPool(4, 16, nil)
	var completed atomic.Int64
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)
		accepted := pool.Submit(func(ctx context.Context) error {
			defer wg.Done()
			completed.Add(1)
			return nil
		})
		if !accepted {
			t.Fatalf("expected task to be accepted")
		}
	}
	wg.Wait()
	pool.Shutdown()

	if completed.Load() != 10 {
		t.Fatalf("expected 10 completed tasks, got %d", completed.Load())
	}
}

func TestWorkerPoolDropsWhenQueueFull(t *testing.T) {
	pool := NewWorkerPool(1, 1, nil)
	release := make(chan struct{})

	// Occupy the single worker so further tasks pile up in the queue.
	pool.Submit(func(ctx context.Context) error {
		<-release
		return nil
	})
	// Give the worker a moment to pick up the blocking task.
	time.Sleep(10 * time.Millisecond)

	pool.Submit(func(ctx context.Context) error { return nil }) // fills the queue
	if pool.Submit(func(ctx context.Context) error { return nil }) {
		t.Fatalf("expected submission to be dropped when the queue is full")
	}

	close(release)
	pool.Shutdown()
}

func TestWorkerPoolRejectsAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(2, 4, nil)
	pool.Shutdown()
	if pool.Submit(func(ctx context.Context) error { return nil }) {
		t.Fatalf("expected submission after shutdown to be rejected")
	}
	// Shutdown must be idempotent.
	pool.Shutdown()
}
