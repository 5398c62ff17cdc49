package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// resultBackend routes the first outcome of each task to its waiter.
// Outcomes that arrive after a task has already settled are dropped.
type resultBackend struct {
	mu      sync.Mutex
	waiters map[uuid.UUID]chan Outcome
	settled *cache.Cache
	logger  *slog.Logger
}

func newResultBackend(retention time.Duration, logger *slog.Logger) *resultBackend {
	return &resultBackend{
		waiters: make(map[uuid.UUID]chan Outcome),
		settled: cache.New(retention, retention/2+time.Minute),
		logger:  logger,
	}
}

func (b *resultBackend) register(id uuid.UUID) <-chan Outcome {
	ch := make(chan Outcome, 1)
	b.mu.Lock()
	b.waiters[id] = ch
	b.mu.Unlock()
	return ch
}

func (b *resultBackend) forget(id uuid.UUID) {
	b.mu.Lock()
	delete(b.waiters, id)
	b.mu.Unlock()
}

// publish stores out if it is the first outcome for its task and reports
// whether it was accepted.
func (b *resultBackend) publish(out Outcome) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := out.TaskID.String()
	if _, found := b.settled.Get(key); found {
		b.logger.Warn("discarding late task result",
			"task_id", out.TaskID,
			"ok", out.OK())
		return false
	}
	b.settled.SetDefault(key, out.OK())

	ch, ok := b.waiters[out.TaskID]
	if !ok {
		b.logger.Debug("no waiter for task result", "task_id", out.TaskID)
		return true
	}
	delete(b.waiters, out.TaskID)
	ch <- out
	return true
}

func (b *resultBackend) isSettled(id uuid.UUID) bool {
	_, found := b.settled.Get(id.String())
	return found
}

// Handle is returned by Submit and lets the submitter wait for the outcome.
type Handle struct {
	id      uuid.UUID
	kind    string
	results <-chan Outcome
}

// ID returns the task ID.
func (h *Handle) ID() uuid.UUID { return h.id }

// Kind returns the task kind.
func (h *Handle) Kind() string { return h.kind }

// Await blocks until the task settles, timeout elapses or ctx ends.
// Giving up does not cancel the task; its eventual result is discarded.
func (h *Handle) Await(ctx context.Context, timeout time.Duration) Outcome {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case out := <-h.results:
		return out
	case <-timer:
		return failed(h.id, FailureTimeout, "no result within "+timeout.String(), 0)
	case <-ctx.Done():
		return failed(h.id, FailureCanceled, ctx.Err().Error(), 0)
	}
}
