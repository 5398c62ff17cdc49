package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTaskStore is a process-local TaskStore. It gives redelivery within
// one process (retries, stuck tasks) but loses the journal on restart.
// SaveFn and UpdateStatusFn can be replaced in tests to inject failures.
type MemoryTaskStore struct {
	mutex          sync.RWMutex
	tasks          map[uuid.UUID]*Envelope
	SaveFn         func(ctx context.Context, env *Envelope) error
	UpdateStatusFn func(ctx context.Context, taskID uuid.UUID, status TaskStatus, attempt int, errorMsg string) error
}

// NewMemoryTaskStore creates an empty MemoryTaskStore
func NewMemoryTaskStore() *MemoryTaskStore {
	store := &MemoryTaskStore{
		tasks: make(map[uuid.UUID]*Envelope),
	}

	store.SaveFn = func(ctx context.Context, env *Envelope) error {
		store.mutex.Lock()
		defer store.mutex.Unlock()

		saved := *env
		saved.UpdatedAt = time.Now().UTC()
		store.tasks[env.ID] = &saved
		return nil
	}

	store.UpdateStatusFn = func(ctx context.Context, taskID uuid.UUID, status TaskStatus, attempt int, errorMsg string) error {
		store.mutex.Lock()
		defer store.mutex.Unlock()

		env, exists := store.tasks[taskID]
		if !exists {
			return fmt.Errorf("task %s not found", taskID)
		}

		env.Status = status
		env.Attempt = attempt
		env.UpdatedAt = time.Now().UTC()
		// Terminal entries are never redelivered; drop the payload.
		if status == TaskStatusCompleted || status == TaskStatusFailed {
			env.Payload = nil
		}
		return nil
	}

	return store
}

// SaveTask persists an envelope
func (s *MemoryTaskStore) SaveTask(ctx context.Context, env *Envelope) error {
	return s.SaveFn(ctx, env)
}

// UpdateTaskStatus updates the status and attempt count of a task
func (s *MemoryTaskStore) UpdateTaskStatus(
	ctx context.Context,
	taskID uuid.UUID,
	status TaskStatus,
	attempt int,
	errorMsg string,
) error {
	return s.UpdateStatusFn(ctx, taskID, status, attempt, errorMsg)
}

// GetPendingTasks retrieves copies of all envelopes with "pending" status
func (s *MemoryTaskStore) GetPendingTasks(ctx context.Context) ([]*Envelope, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var pending []*Envelope
	for _, env := range s.tasks {
		if env.Status == TaskStatusPending {
			c := *env
			pending = append(pending, &c)
		}
	}

	return pending, nil
}

// GetProcessingTasks retrieves copies of envelopes with "processing" status
func (s *MemoryTaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]*Envelope, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var processing []*Envelope
	now := time.Now().UTC()

	for _, env := range s.tasks {
		if env.Status != TaskStatusProcessing {
			continue
		}
		if olderThan == 0 || now.Sub(env.UpdatedAt) > olderThan {
			c := *env
			processing = append(processing, &c)
		}
	}

	return processing, nil
}

// Get returns a copy of the stored envelope.
func (s *MemoryTaskStore) Get(taskID uuid.UUID) (*Envelope, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	env, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}
	c := *env
	return &c, true
}
