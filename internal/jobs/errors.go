package jobs

import "errors"

// Common errors
var (
	ErrNoWorkerPool  = errors.New("worker pool not initialized")
	ErrQueueFull     = errors.New("task queue is full")
	ErrPoolStopped   = errors.New("worker pool is stopped")
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskCancelled = errors.New("task was cancelled")
)
