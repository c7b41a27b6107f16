package events

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Task is one unit of background work.
type Task func(ctx context.Context) error

// WorkerPool runs tasks on a fixed number of workers with a bounded queue.
// When the queue is full, Submit drops the task rather than blocking the
// caller; delivery work tolerates drops, callers that do not should not use
// this pool.
type WorkerPool struct {
	tasks   chan Task
	wg      sync.WaitGroup
	closing atomic.Bool
	logger  *zap.Logger
}

// NewWorkerPool starts size workers with the given queue capacity.
func NewWorkerPool(size, queueSize int, logger *zap.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool := &WorkerPool{
		tasks:  make(chan Task, queueSize),
		logger: logger,
	}
	for range size {
		pool.wg.Add(1)
		go pool.work()
	}
	return pool
}

func (p *WorkerPool) work() {
	defer p.wg.Done()
	for task := range p.tasks {
		if err := task(context.Background()); err != nil {
			p.logger.Warn("worker task failed", zap.Error(err))
		}
	}
}

// Submit enqueues a task, dropping it when the pool is shutting down or the
// queue is full. It reports whether the task was accepted.
func (p *WorkerPool) Submit(task Task) bool {
	if p.closing.Load() {
		p.logger.Warn("task submitted during shutdown, dropping")
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		p.logger.Warn("task queue full, dropping task")
		return false
	}
}

// Shutdown stops accepting tasks and waits for in-flight work to finish.
func (p *WorkerPool) Shutdown() {
	if p.closing.Swap(true) {
		return
	}
	close(p.tasks)
	p.wg.Wait()
}
