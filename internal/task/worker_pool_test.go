package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTaskQueue implements TaskQueueReader for testing
type mockTaskQueue struct {
	ch chan *Envelope
}

func newMockTaskQueue() *mockTaskQueue {
	return &mockTaskQueue{
		ch: make(chan *Envelope, 10),
	}
}

func (m *mockTaskQueue) GetChannel() <-chan *Envelope {
	return m.ch
}

func TestNewWorkerPool(t *testing.T) {
	logger := setupTestLogger()
	queue := newMockTaskQueue()
	noop := func(context.Context, *Envelope, int) {}

	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 5, MaxTasksPerWorker: 3}, noop, logger)
	assert.Equal(t, 5, pool.workerCount)
	assert.Equal(t, 3, pool.maxTasksPerWorker)
	assert.Nil(t, pool.errorHandler)

	pool = NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 0}, noop, logger)
	assert.Equal(t, 1, pool.workerCount)

	pool = NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: -5, MaxTasksPerWorker: -1}, noop, logger)
	assert.Equal(t, 1, pool.workerCount)
	assert.Equal(t, 0, pool.maxTasksPerWorker)
}

func TestWorkerPool_ProcessesEnvelopes(t *testing.T) {
	logger := setupTestLogger()
	queue := newMockTaskQueue()

	seen := make(chan *Envelope, 3)
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 2}, func(_ context.Context, env *Envelope, _ int) {
		seen <- env
	}, logger)
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 3; i++ {
		queue.ch <- NewEnvelope("k", nil)
	}

	for i := 0; i < 3; i++ {
		select {
		case env := <-seen:
			assert.Equal(t, "k", env.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for envelope")
		}
	}
}

func TestWorkerPool_Panic(t *testing.T) {
	logger := setupTestLogger()
	queue := newMockTaskQueue()

	errorHandled := make(chan error, 1)
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 1}, func(context.Context, *Envelope, int) {
		panic("test panic")
	}, logger)
	pool.SetErrorHandler(func(_ *Envelope, err error) {
		errorHandled <- err
	})
	pool.Start()
	defer pool.Stop()

	queue.ch <- NewEnvelope("k", nil)

	select {
	case err := <-errorHandled:
		assert.Contains(t, err.Error(), "panic")
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for error handler after panic")
	}
}

func TestWorkerPool_RecyclesWorkers(t *testing.T) {
	logger := setupTestLogger()
	queue := newMockTaskQueue()

	var mu sync.Mutex
	workerIDs := make(map[int]int)
	done := make(chan struct{}, 4)

	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 1, MaxTasksPerWorker: 2}, func(_ context.Context, _ *Envelope, id int) {
		mu.Lock()
		workerIDs[id]++
		mu.Unlock()
		done <- struct{}{}
	}, logger)
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 4; i++ {
		queue.ch <- NewEnvelope("k", nil)
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for envelopes")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, workerIDs, 2, "a fresh worker should replace the first one after two tasks")
	for _, handled := range workerIDs {
		assert.Equal(t, 2, handled)
	}
}

func TestWorkerPool_StopCancelsContext(t *testing.T) {
	logger := setupTestLogger()
	queue := newMockTaskQueue()

	started := make(chan struct{})
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 1}, func(ctx context.Context, _ *Envelope, _ int) {
		close(started)
		<-ctx.Done()
	}, logger)
	pool.Start()

	queue.ch <- NewEnvelope("k", nil)
	<-started

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop")
	}
	assert.Error(t, pool.Context().Err())
}
