package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/metrics"
)

var (
	ErrPoolStopped = errors.New("worker pool is stopped")
	ErrPoolFull    = errors.New("worker pool task queue is full")
)

type Task func()

type WorkerPool struct {
	tasks         chan namedTask
	wg            sync.WaitGroup
	activeWorkers atomic.Int32
	maxWorkers    int
	submitTimeout time.Duration
	logger        zerolog.Logger
	mu            sync.RWMutex // guards started, stopped and closing tasks
	started       bool
	stopped       bool
}

type namedTask struct {
	name string
	run  Task
}

// NewWorkerPool sizes the queue at queueSize, or ten slots per worker when queueSize is zero.
func NewWorkerPool(maxWorkers, queueSize int, logger zerolog.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = maxWorkers * 10
	}
	return &WorkerPool{
		tasks:         make(chan namedTask, queueSize),
		maxWorkers:    maxWorkers,
		submitTimeout: time.Second,
		logger:        logger,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.stopped {
		return ErrPoolStopped
	}
	if wp.started {
		return nil
	}
	wp.started = true

	wp.logger.Info().Int("max_workers", wp.maxWorkers).Msg("Starting worker pool")

	for i := 0; i < wp.maxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	return nil
}

// Stop drains queued tasks and waits for the workers to finish.
func (wp *WorkerPool) Stop() error {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return nil
	}
	wp.stopped = true
	close(wp.tasks)
	wp.mu.Unlock()

	wp.wg.Wait()

	wp.logger.Info().Msg("Worker pool stopped")
	return nil
}

// Submit queues a task, waiting up to a second for space.
func (wp *WorkerPool) Submit(name string, task Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrPoolStopped
	}

	t := namedTask{name: name, run: task}
	select {
	case wp.tasks <- t:
		return nil
	default:
	}

	wp.logger.Warn().Str("task", name).Msg("Worker pool task queue is full")
	timer := time.NewTimer(wp.submitTimeout)
	defer timer.Stop()
	select {
	case wp.tasks <- t:
		return nil
	case <-timer.C:
		wp.logger.Error().Str("task", name).Msg("Failed to submit task to worker pool (timeout)")
		return ErrPoolFull
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for task := range wp.tasks {
		wp.activeWorkers.Add(1)
		wp.run(id, task)
		wp.activeWorkers.Add(-1)
	}

	wp.logger.Debug().Int("worker_id", id).Msg("Worker stopped")
}

func (wp *WorkerPool) run(id int, task namedTask) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error().
				Int("worker_id", id).
				Str("task", task.name).
				Interface("panic", r).
				Msg("Worker recovered from panic")
		}
		metrics.ObserveTask(task.name, start)
	}()

	task.run()
}

func (wp *WorkerPool) GetActiveWorkers() int {
	return int(wp.activeWorkers.Load())
}

func (wp *WorkerPool) GetQueueLength() int {
	return len(wp.tasks)
}

func (wp *WorkerPool) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"active_workers": wp.GetActiveWorkers(),
		"max_workers":    wp.maxWorkers,
		"queue_length":   len(wp.tasks),
		"queue_capacity": cap(wp.tasks),
	}
}
