package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Task is a function that represents a background job
type Task func(ctx context.Context) error

// WorkerPool runs fire-and-forget jobs (cache writes, notifications) off the
// request path. Tasks are dropped, not queued unboundedly, under pressure.
type WorkerPool struct {
	taskQueue chan Task
	wg        sync.WaitGroup
	isClosing atomic.Bool
}

func NewWorkerPool(size int) *WorkerPool {
	wp := &WorkerPool{
		taskQueue: make(chan Task, 1000), // Buffer for 1000 pending tasks
	}

	// Start the workers
	for i := 0; i < size; i++ {
		wp.wg.Add(1)
		go wp.startWorker()
	}

	return wp
}

func (wp *WorkerPool) startWorker() {
	defer wp.wg.Done()
	for task := range wp.taskQueue {
		ctx := context.Background()
		if err := task(ctx); err != nil {
			log.Warn().Err(err).Msg("Worker task failed")
		}
	}
}

func (wp *WorkerPool) Submit(t Task) {
	if wp.isClosing.Load() {
		log.Warn().Msg("task submitted during shutdown, dropping")
		return
	}
	select {
	case wp.taskQueue <- t: // send task to worker pool
	default:
		log.Warn().Msg("Task queue full, dropping task!")
	}
}

// Shutdown closes the queue and waits for workers to finish
func (wp *WorkerPool) Shutdown() {
	wp.isClosing.Store(true)
	close(wp.taskQueue) // Stop accepting new tasks
	wp.wg.Wait()        // Wait for all active workers to finish tasks
}
