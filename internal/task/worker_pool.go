package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ProcessFunc handles one envelope taken from the queue.
type ProcessFunc func(ctx context.Context, env *Envelope, workerID int)

// WorkerPool manages a pool of worker goroutines that process envelopes
// from a task queue. Each worker holds at most one envelope at a time and is
// replaced by a fresh worker after MaxTasksPerWorker envelopes.
type WorkerPool struct {
	// taskQueue provides read access to the envelopes to be processed
	taskQueue TaskQueueReader

	// workerCount is the number of concurrent workers to keep running
	workerCount int

	// maxTasksPerWorker recycles a worker after this many envelopes; zero disables recycling
	maxTasksPerWorker int

	// process is invoked for every envelope
	process ProcessFunc

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx is used for cancellation and shutdown signaling
	ctx context.Context

	// cancel is the function to call to cancel the context
	cancel context.CancelFunc

	nextWorkerID atomic.Int64

	logger *slog.Logger

	// errorHandler is called when process panics
	// If nil, panics are only logged
	errorHandler func(env *Envelope, err error)
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int

	// MaxTasksPerWorker recycles a worker after it has handled this many envelopes
	MaxTasksPerWorker int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:       2,
		MaxTasksPerWorker: 50,
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(
	taskQueue TaskQueueReader,
	config WorkerPoolConfig,
	process ProcessFunc,
	logger *slog.Logger,
) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	maxTasks := config.MaxTasksPerWorker
	if maxTasks < 0 {
		maxTasks = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		taskQueue:         taskQueue,
		workerCount:       workerCount,
		maxTasksPerWorker: maxTasks,
		process:           process,
		ctx:               ctx,
		cancel:            cancel,
		logger:            logger,
	}
}

// SetErrorHandler sets the handler invoked when processing an envelope panics
func (p *WorkerPool) SetErrorHandler(handler func(env *Envelope, err error)) {
	p.errorHandler = handler
}

// Start launches the workers
func (p *WorkerPool) Start() {
	p.logger.Info("starting worker pool",
		"worker_count", p.workerCount,
		"max_tasks_per_worker", p.maxTasksPerWorker)

	for i := 0; i < p.workerCount; i++ {
		p.spawn()
	}
}

// Stop signals all workers to exit and waits for in-flight envelopes to finish
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Context is cancelled when the pool stops.
func (p *WorkerPool) Context() context.Context {
	return p.ctx
}

func (p *WorkerPool) spawn() {
	id := int(p.nextWorkerID.Add(1))
	p.wg.Add(1)
	go p.worker(id)
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)
	handled := 0

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return

		case env, ok := <-p.taskQueue.GetChannel():
			if !ok {
				p.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}

			p.processEnvelope(env, id)
			handled++

			if p.maxTasksPerWorker > 0 && handled >= p.maxTasksPerWorker {
				if p.ctx.Err() != nil {
					return
				}
				p.logger.Info("recycling worker",
					"worker_id", id,
					"tasks_handled", handled)
				p.spawn()
				return
			}
		}
	}
}

func (p *WorkerPool) processEnvelope(env *Envelope, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while processing task: %v", r)
			p.logger.Error("worker recovered from panic",
				"worker_id", workerID,
				"task_id", env.ID,
				"task_kind", env.Kind,
				"error", err)
			if p.errorHandler != nil {
				p.errorHandler(env, err)
			}
		}
	}()

	p.process(p.ctx, env, workerID)
}
