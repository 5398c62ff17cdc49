package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrUnknownKind is returned by Submit when no handler is registered for a kind.
var ErrUnknownKind = errors.New("no handler registered for task kind")

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// MaxTasksPerWorker recycles a worker after this many tasks
	MaxTasksPerWorker int

	// SoftTimeLimit cancels the handler's context; the attempt counts as a retryable failure
	SoftTimeLimit time.Duration

	// HardTimeLimit abandons the attempt and fails the task without retry
	HardTimeLimit time.Duration

	// Retry bounds attempts and the delay between them
	Retry RetryPolicy

	// ResultRetention is how long settled task IDs are remembered for deduplication
	ResultRetention time.Duration

	// StuckTaskAge defines how long a task can be in processing state
	// before it's considered stuck and redelivered
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            4,
		QueueSize:              100,
		MaxTasksPerWorker:      50,
		SoftTimeLimit:          300 * time.Second,
		HardTimeLimit:          600 * time.Second,
		Retry:                  DefaultRetryPolicy(),
		ResultRetention:        time.Hour,
		StuckTaskAge:           15 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// TaskRunner journals submitted tasks, delivers them to registered handlers
// through a worker pool, applies the retry policy and routes outcomes back
// to the submitters' handles.
type TaskRunner struct {
	store   TaskStore
	queue   *TaskQueue
	pool    *WorkerPool
	results *resultBackend

	mu       sync.RWMutex
	handlers map[string]Handler

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     TaskRunnerConfig
	logger     *slog.Logger
	errHandler func(env *Envelope, failure *Failure)
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(store TaskStore, config TaskRunnerConfig, logger *slog.Logger) *TaskRunner {
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}
	if config.ResultRetention == 0 {
		config.ResultRetention = time.Hour
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = DefaultRetryPolicy()
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &TaskRunner{
		store:      store,
		queue:      NewTaskQueue(config.QueueSize, logger),
		results:    newResultBackend(config.ResultRetention, logger),
		handlers:   make(map[string]Handler),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger,
		errHandler: func(env *Envelope, failure *Failure) {
			logger.Error("task failed",
				"task_id", env.ID,
				"task_kind", env.Kind,
				"failure_kind", failure.Kind,
				"attempts", failure.Attempts,
				"error", failure.Message)
		},
	}

	r.pool = NewWorkerPool(r.queue, WorkerPoolConfig{
		WorkerCount:       config.WorkerCount,
		MaxTasksPerWorker: config.MaxTasksPerWorker,
	}, r.process, logger)
	r.pool.SetErrorHandler(func(env *Envelope, err error) {
		r.retryOrFail(env, err, FailureTransient, r.logger.With("task_id", env.ID, "task_kind", env.Kind))
	})

	return r
}

// SetErrorHandler sets the function called when a task fails for good
func (r *TaskRunner) SetErrorHandler(handler func(env *Envelope, failure *Failure)) {
	r.errHandler = handler
}

// Register binds a handler to a task kind. Registering a kind twice replaces the handler.
func (r *TaskRunner) Register(kind string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
}

func (r *TaskRunner) handler(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Submit journals a new task and places it on the queue without waiting
// for it to run. The returned handle yields the task's outcome.
func (r *TaskRunner) Submit(ctx context.Context, kind string, payload []byte) (*Handle, error) {
	if _, ok := r.handler(kind); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	env := NewEnvelope(kind, payload)

	if err := r.store.SaveTask(ctx, env); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	results := r.results.register(env.ID)

	if err := r.queue.Enqueue(env); err != nil {
		r.results.forget(env.ID)
		if updateErr := r.store.UpdateTaskStatus(ctx, env.ID, TaskStatusFailed, 0, err.Error()); updateErr != nil {
			r.logger.Error("failed to mark unqueued task as failed",
				"task_id", env.ID,
				"error", updateErr)
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &Handle{id: env.ID, kind: kind, results: results}, nil
}

// Start recovers unfinished tasks and begins processing
func (r *TaskRunner) Start() error {
	if err := r.Recover(); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	r.pool.Start()

	r.wg.Add(1)
	go r.stuckTaskMonitor()

	return nil
}

// Stop gracefully shuts down the task runner. Tasks interrupted by the
// shutdown stay in the journal and are redelivered by the next Start.
func (r *TaskRunner) Stop() {
	r.pool.Stop()
	r.cancelFunc()
	r.wg.Wait()
	r.queue.Close()
}

// Recover re-queues tasks the journal still holds as pending or processing
func (r *TaskRunner) Recover() error {
	ctx := context.Background()

	pendingTasks, err := r.store.GetPendingTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}

	processingTasks, err := r.store.GetProcessingTasks(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing tasks: %w", err)
	}

	r.logger.Info("recovering unfinished tasks",
		"pending_count", len(pendingTasks),
		"processing_count", len(processingTasks))

	for _, env := range pendingTasks {
		r.redeliver(ctx, env, "")
	}

	for _, env := range processingTasks {
		r.redeliver(ctx, env, "Reset after recovery")
	}

	return nil
}

func (r *TaskRunner) redeliver(ctx context.Context, env *Envelope, reason string) {
	if reason != "" {
		if err := r.store.UpdateTaskStatus(ctx, env.ID, TaskStatusPending, env.Attempt, reason); err != nil {
			r.logger.Error("failed to reset task status",
				"task_id", env.ID,
				"task_kind", env.Kind,
				"error", err)
			return
		}
	}

	if err := r.queue.Enqueue(env); err != nil {
		r.logger.Error("failed to requeue task",
			"task_id", env.ID,
			"task_kind", env.Kind,
			"error", err)
	}
}

// process handles one delivery of an envelope
func (r *TaskRunner) process(ctx context.Context, env *Envelope, workerID int) {
	logger := r.logger.With(
		"task_id", env.ID,
		"task_kind", env.Kind,
		"worker_id", workerID,
	)

	if r.results.isSettled(env.ID) {
		logger.Info("skipping redelivered task that already settled")
		return
	}

	handler, ok := r.handler(env.Kind)
	if !ok {
		r.fail(env, FailurePermanent, ErrUnknownKind.Error()+": "+env.Kind, logger)
		return
	}

	env.Attempt++
	if err := r.store.UpdateTaskStatus(context.Background(), env.ID, TaskStatusProcessing, env.Attempt, ""); err != nil {
		logger.Error("failed to update task status to processing", "error", err)
	}

	logger.Info("processing task", "attempt", env.Attempt)
	start := time.Now()

	value, kind, err := r.execute(ctx, env, handler)

	if err != nil && ctx.Err() != nil {
		logger.Warn("task interrupted by shutdown, leaving it for redelivery", "error", err)
		return
	}

	if err == nil {
		logger.Info("task completed successfully", "duration_ms", time.Since(start).Milliseconds())
		if updateErr := r.store.UpdateTaskStatus(context.Background(), env.ID, TaskStatusCompleted, env.Attempt, ""); updateErr != nil {
			logger.Error("failed to update task status to completed", "error", updateErr)
		}
		r.results.publish(succeeded(env.ID, value))
		return
	}

	if kind == FailureHardTimeLimit {
		r.fail(env, kind, err.Error(), logger)
		return
	}

	if kind == "" {
		kind = FailureTransient
	}
	r.retryOrFail(env, err, kind, logger)
}

// execute runs the handler under the soft and hard time limits
func (r *TaskRunner) execute(parent context.Context, env *Envelope, handler Handler) ([]byte, FailureKind, error) {
	ctx := withInfo(parent, env)
	var cancel context.CancelFunc
	if r.config.SoftTimeLimit > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.config.SoftTimeLimit)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type result struct {
		value []byte
		err   error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("task panicked: %v", rec)}
			}
		}()
		value, err := handler(ctx, env.Payload)
		done <- result{value: value, err: err}
	}()

	var hardLimit <-chan time.Time
	if r.config.HardTimeLimit > 0 {
		timer := time.NewTimer(r.config.HardTimeLimit)
		defer timer.Stop()
		hardLimit = timer.C
	}

	select {
	case res := <-done:
		if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, FailureSoftTimeLimit, fmt.Errorf("soft time limit %s exceeded: %w", r.config.SoftTimeLimit, res.err)
		}
		return res.value, "", res.err
	case <-hardLimit:
		return nil, FailureHardTimeLimit, fmt.Errorf("hard time limit %s exceeded", r.config.HardTimeLimit)
	}
}

func (r *TaskRunner) retryOrFail(env *Envelope, err error, kind FailureKind, logger *slog.Logger) {
	if IsPermanent(err) {
		r.fail(env, FailurePermanent, err.Error(), logger)
		return
	}
	if !r.config.Retry.ShouldRetry(env.Attempt, err) {
		r.fail(env, kind, err.Error(), logger)
		return
	}

	delay := r.config.Retry.Delay(env.Attempt + 1)
	if updateErr := r.store.UpdateTaskStatus(context.Background(), env.ID, TaskStatusPending, env.Attempt, err.Error()); updateErr != nil {
		logger.Error("failed to update task status to pending", "error", updateErr)
	}

	logger.Warn("task attempt failed, scheduling retry",
		"attempt", env.Attempt,
		"max_attempts", r.config.Retry.MaxAttempts,
		"retry_in", delay,
		"error", err)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-r.ctx.Done():
			return
		case <-timer.C:
		}

		if enqErr := r.queue.Enqueue(env); enqErr != nil {
			r.fail(env, kind, fmt.Sprintf("%s (retry not queued: %v)", err, enqErr), logger)
		}
	}()
}

func (r *TaskRunner) fail(env *Envelope, kind FailureKind, msg string, logger *slog.Logger) {
	if err := r.store.UpdateTaskStatus(context.Background(), env.ID, TaskStatusFailed, env.Attempt, msg); err != nil {
		logger.Error("failed to update task status to failed", "error", err)
	}

	out := failed(env.ID, kind, msg, env.Attempt)
	if r.results.publish(out) {
		r.errHandler(env, out.Failure)
	}
}

// stuckTaskMonitor periodically redelivers tasks that have been in
// "processing" state for longer than StuckTaskAge
func (r *TaskRunner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()

			stuckTasks, err := r.store.GetProcessingTasks(ctx, r.config.StuckTaskAge)
			if err != nil {
				r.logger.Error("failed to check for stuck tasks", "error", err)
				continue
			}

			if len(stuckTasks) > 0 {
				r.logger.Info("found stuck tasks", "count", len(stuckTasks))
				for _, env := range stuckTasks {
					r.redeliver(ctx, env, "Reset after being stuck in processing state")
				}
			}
		}
	}
}
