package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task in the journal
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Envelope is the unit delivered to workers. It carries the serialized task
// arguments and the delivery bookkeeping needed for retries and recovery.
type Envelope struct {
	ID        uuid.UUID
	Kind      string
	Payload   []byte
	Attempt   int
	Status    TaskStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewEnvelope creates a pending envelope with a fresh ID.
func NewEnvelope(kind string, payload []byte) *Envelope {
	now := time.Now().UTC()
	return &Envelope{
		ID:        uuid.New(),
		Kind:      kind,
		Payload:   payload,
		Attempt:   0,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Handler executes one delivery of a task. It may run more than once for the
// same task ID, so it must be safe to re-execute. Returning an error wrapped
// with Permanent stops further retries.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TaskQueueReader provides read-only access to the task channel
// allowing workers to consume tasks without the ability to enqueue
type TaskQueueReader interface {
	// GetChannel returns a read-only channel for consuming envelopes
	GetChannel() <-chan *Envelope
}

// TaskQueueWriter provides write access to the task queue
type TaskQueueWriter interface {
	// Enqueue adds an envelope to the queue for processing
	// Returns an error if the queue is full or closed
	Enqueue(env *Envelope) error

	// Close closes the task queue, preventing further task submission
	Close()
}

// TaskStore is the durable journal behind the queue. Submit writes to it
// before enqueueing so that unfinished tasks survive a restart.
type TaskStore interface {
	// SaveTask persists a new envelope
	SaveTask(ctx context.Context, env *Envelope) error

	// UpdateTaskStatus records a status change together with the attempt count
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status TaskStatus, attempt int, errorMsg string) error

	// GetPendingTasks retrieves all envelopes with "pending" status
	GetPendingTasks(ctx context.Context) ([]*Envelope, error)

	// GetProcessingTasks retrieves envelopes with "processing" status.
	// If olderThan is non-zero, only returns envelopes that have been in this
	// state longer than the specified duration
	GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]*Envelope, error)
}

type infoKey struct{}

// Info describes the delivery a handler is currently executing.
type Info struct {
	ID      uuid.UUID
	Kind    string
	Attempt int
}

func withInfo(ctx context.Context, env *Envelope) context.Context {
	return context.WithValue(ctx, infoKey{}, Info{ID: env.ID, Kind: env.Kind, Attempt: env.Attempt})
}

// InfoFromContext returns the delivery info attached by the runner.
func InfoFromContext(ctx context.Context) (Info, bool) {
	info, ok := ctx.Value(infoKey{}).(Info)
	return info, ok
}
