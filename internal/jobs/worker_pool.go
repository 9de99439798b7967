// Package jobs runs side work such as archiving off the request path
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Task statuses
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Task is one unit of background work
type Task struct {
	ID        string
	Kind      string
	Run       func(ctx context.Context) error
	Done      chan error // receives the final outcome once
	Timestamp time.Time

	mu       sync.Mutex
	status   string
	attempts int
}

// NewTask creates a queued task
func NewTask(kind string, run func(ctx context.Context) error) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		Run:       run,
		Done:      make(chan error, 1),
		Timestamp: time.Now(),
		status:    StatusQueued,
	}
}

// Status returns the task status and how many attempts were made
func (t *Task) Status() (string, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.attempts
}

func (t *Task) set(status string, attempt bool) {
	t.mu.Lock()
	t.status = status
	if attempt {
		t.attempts++
	}
	t.mu.Unlock()
}

// WorkerPool runs tasks on a fixed number of goroutines, retrying failed
// ones up to maxAttempts
type WorkerPool struct {
	tasks       chan *Task
	workers     int
	maxAttempts int
	retryDelay  time.Duration
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	active      map[string]*Task
	stopped     bool
	mu          sync.RWMutex
	onFinish    func(*Task, error)
}

// DefaultPool is the pool used by the application
var DefaultPool *WorkerPool

// InitializeWorkerPool creates and starts the default pool
func InitializeWorkerPool(workers, queueSize int) *WorkerPool {
	DefaultPool = NewWorkerPool(workers, queueSize, 3)
	return DefaultPool
}

// ShutdownWorkerPool stops the default pool
func ShutdownWorkerPool() {
	if DefaultPool != nil {
		DefaultPool.Stop()
	}
}

// NewWorkerPool creates and starts a pool
func NewWorkerPool(workers, queueSize, maxAttempts int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 10
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := &WorkerPool{
		tasks:       make(chan *Task, queueSize),
		workers:     workers,
		maxAttempts: maxAttempts,
		retryDelay:  200 * time.Millisecond,
		ctx:         ctx,
		cancel:      cancel,
		active:      make(map[string]*Task),
	}
	pool.start()
	return pool
}

// SetRetryDelay changes the pause before a failed task is retried; each
// further attempt waits one more delay
func (p *WorkerPool) SetRetryDelay(d time.Duration) {
	p.mu.Lock()
	p.retryDelay = d
	p.mu.Unlock()
}

// OnFinish registers a callback run after every task settles
func (p *WorkerPool) OnFinish(fn func(*Task, error)) {
	p.mu.Lock()
	p.onFinish = fn
	p.mu.Unlock()
}

func (p *WorkerPool) start() {
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker(i)
	}
	log.Info().Int("workers", p.workers).Msg("Started worker pool")
}

// Stop cancels running tasks and waits for the workers to exit. Tasks
// still queued are dropped.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	log.Info().Msg("Worker pool stopped")
}

// Submit queues a task without blocking
func (p *WorkerPool) Submit(task *Task) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	p.active[task.ID] = task
	p.mu.Unlock()

	select {
	case p.tasks <- task:
		return nil
	default:
		p.mu.Lock()
		delete(p.active, task.ID)
		p.mu.Unlock()
		return ErrQueueFull
	}
}

// GetTask returns a queued or running task
func (p *WorkerPool) GetTask(id string) (*Task, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	task, ok := p.active[id]
	return task, ok
}

// CancelTask stops a queued task from running. A running task is not
// interrupted.
func (p *WorkerPool) CancelTask(id string) error {
	p.mu.Lock()
	task, ok := p.active[id]
	if ok {
		delete(p.active, id)
	}
	p.mu.Unlock()

	if !ok {
		return ErrTaskNotFound
	}
	task.mu.Lock()
	if task.status == StatusQueued {
		task.status = StatusCancelled
	}
	task.mu.Unlock()
	return nil
}

// Stats returns the number of tracked tasks and the queue depth
func (p *WorkerPool) Stats() (active, queued int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.active), len(p.tasks)
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case task := <-p.tasks:
			p.run(id, task)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *WorkerPool) run(worker int, task *Task) {
	if status, _ := task.Status(); status == StatusCancelled {
		p.finish(task, ErrTaskCancelled)
		return
	}

	p.mu.RLock()
	delay := p.retryDelay
	p.mu.RUnlock()

	var err error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		task.set(StatusRunning, true)
		err = task.Run(p.ctx)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("worker", worker).Str("task", task.ID).Str("kind", task.Kind).
			Int("attempt", attempt).Msg("Task attempt failed")
		if attempt == p.maxAttempts || p.ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * delay):
		case <-p.ctx.Done():
		}
	}

	p.finish(task, err)
}

func (p *WorkerPool) finish(task *Task, err error) {
	p.mu.Lock()
	delete(p.active, task.ID)
	onFinish := p.onFinish
	p.mu.Unlock()

	switch {
	case err == ErrTaskCancelled:
	case err != nil:
		task.set(StatusFailed, false)
		log.Error().Err(err).Str("task", task.ID).Str("kind", task.Kind).Msg("Task failed")
	default:
		task.set(StatusDone, false)
		log.Debug().Str("task", task.ID).Str("kind", task.Kind).Msg("Task completed")
	}

	task.Done <- err
	if onFinish != nil {
		onFinish(task, err)
	}
}

// Submit queues a task on the default pool
func Submit(task *Task) error {
	if DefaultPool == nil {
		return ErrNoWorkerPool
	}
	return DefaultPool.Submit(task)
}
