package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrQueueFull is returned when the task buffer has no free slot
var ErrQueueFull = errors.New("task queue is full")

// ErrPoolStopped is returned when enqueueing into a stopped pool
var ErrPoolStopped = errors.New("worker pool stopped")

// Task represents a unit of work
type Task interface {
	ID() string
	Process(ctx context.Context) error
}

// WorkerPool runs background tasks on a fixed number of workers
type WorkerPool struct {
	numWorkers     int
	taskChan       chan Task
	wg             sync.WaitGroup
	ctx            context.Context
	cancel         context.CancelFunc
	taskTimeout    time.Duration
	processedCount int64
	errorCount     int64
	mu             sync.RWMutex
	running        map[string]time.Time
	errors         []error
	maxErrors      int
	stopOnce       sync.Once
	stopped        atomic.Bool
}

// WorkerPoolOptions configures the worker pool
type WorkerPoolOptions struct {
	NumWorkers  int
	BufferSize  int
	MaxErrors   int
	TaskTimeout time.Duration
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(opts WorkerPoolOptions) *WorkerPool {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = runtime.NumCPU()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = opts.NumWorkers * 2
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		numWorkers:  opts.NumWorkers,
		taskChan:    make(chan Task, opts.BufferSize),
		ctx:         ctx,
		cancel:      cancel,
		taskTimeout: opts.TaskTimeout,
		running:     make(map[string]time.Time),
		errors:      make([]error, 0),
		maxErrors:   opts.MaxErrors,
	}
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	log.Info().Int("workers", wp.numWorkers).Msg("starting worker pool")

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// EnqueueTask adds a task to the queue without blocking
func (wp *WorkerPool) EnqueueTask(task Task) error {
	if wp.stopped.Load() {
		return ErrPoolStopped
	}

	select {
	case wp.taskChan <- task:
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue, lets queued tasks drain and waits for the workers.
// Tasks still running when ctx expires are cancelled.
func (wp *WorkerPool) Stop(ctx context.Context) {
	wp.stopOnce.Do(func() {
		wp.stopped.Store(true)
		close(wp.taskChan)
	})

	wp.WaitForCompletion(ctx)
	wp.cancel()

	log.Info().
		Int64("processed", atomic.LoadInt64(&wp.processedCount)).
		Int64("errors", atomic.LoadInt64(&wp.errorCount)).
		Msg("worker pool stopped")
}

// WaitForCompletion waits for all workers to exit or context to be cancelled
func (wp *WorkerPool) WaitForCompletion(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("all workers completed")
	case <-ctx.Done():
		log.Warn().Msg("worker pool cancelled")
		wp.cancel()
		<-done
	}
}

// GetStats returns processing statistics
func (wp *WorkerPool) GetStats() (processed int64, errors int64) {
	return atomic.LoadInt64(&wp.processedCount), atomic.LoadInt64(&wp.errorCount)
}

// GetErrors returns the recorded task errors, oldest first
func (wp *WorkerPool) GetErrors() []error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	errors := make([]error, len(wp.errors))
	copy(errors, wp.errors)
	return errors
}

// IsRunning reports whether a task with the given ID is being processed
func (wp *WorkerPool) IsRunning(taskID string) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	_, ok := wp.running[taskID]
	return ok
}

// Pending returns the number of queued tasks not yet picked up
func (wp *WorkerPool) Pending() int {
	return len(wp.taskChan)
}

func (wp *WorkerPool) worker(workerID int) {
	defer wp.wg.Done()

	log.Debug().Int("worker_id", workerID).Msg("worker started")

	for {
		select {
		case task, ok := <-wp.taskChan:
			if !ok {
				log.Debug().Int("worker_id", workerID).Msg("worker stopped - channel closed")
				return
			}

			wp.processTask(workerID, task)

		case <-wp.ctx.Done():
			log.Debug().Int("worker_id", workerID).Msg("worker stopped - context cancelled")
			return
		}
	}
}

func (wp *WorkerPool) processTask(workerID int, task Task) {
	start := time.Now()
	taskID := task.ID()

	wp.mu.Lock()
	wp.running[taskID] = start
	wp.mu.Unlock()

	defer func() {
		wp.mu.Lock()
		delete(wp.running, taskID)
		wp.mu.Unlock()
	}()

	log.Debug().
		Int("worker_id", workerID).
		Str("task_id", taskID).
		Msg("processing task")

	ctx := wp.ctx
	if wp.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wp.taskTimeout)
		defer cancel()
	}

	err := runTask(ctx, task)
	duration := time.Since(start)

	if err != nil {
		atomic.AddInt64(&wp.errorCount, 1)
		wp.recordError(fmt.Errorf("task %s failed: %w", taskID, err))

		log.Error().
			Err(err).
			Int("worker_id", workerID).
			Str("task_id", taskID).
			Dur("duration", duration).
			Msg("task failed")
	} else {
		log.Info().
			Int("worker_id", workerID).
			Str("task_id", taskID).
			Dur("duration", duration).
			Msg("task completed")
	}

	atomic.AddInt64(&wp.processedCount, 1)
}

// runTask keeps a panicking task from taking its worker down
func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Process(ctx)
}

func (wp *WorkerPool) recordError(err error) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if len(wp.errors) < wp.maxErrors {
		wp.errors = append(wp.errors, err)
	}
}

// AnalysisTask runs one brand analysis
type AnalysisTask struct {
	AnalysisID string
	Run        func(ctx context.Context, analysisID string) error
}

// AnalysisTaskID is the task ID under which an analysis runs
func AnalysisTaskID(analysisID string) string {
	return "analysis:" + analysisID
}

// ID returns the task ID
func (t *AnalysisTask) ID() string {
	return AnalysisTaskID(t.AnalysisID)
}

// Process runs the analysis
func (t *AnalysisTask) Process(ctx context.Context) error {
	if t.Run == nil {
		return fmt.Errorf("no run function provided")
	}
	return t.Run(ctx, t.AnalysisID)
}
