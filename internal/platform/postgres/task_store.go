package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/isplitter/internal/platform/logger"
	"github.com/phrazzld/isplitter/internal/store"
	"github.com/phrazzld/isplitter/internal/task"
)

// TaskStore is the durable task journal.
type TaskStore struct {
	db store.DBTX
}

var _ task.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates a TaskStore on db.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{db: db}
}

// SaveTask inserts env. Saving the same id twice is a no-op so that a
// resubmitted envelope does not fail.
func (s *TaskStore) SaveTask(ctx context.Context, env *task.Envelope) error {
	const query = `
		INSERT INTO tasks (id, kind, payload, attempt, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		env.ID,
		env.Kind,
		env.Payload,
		env.Attempt,
		string(env.Status),
		env.CreatedAt,
		now,
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to save task",
			"task_id", env.ID,
			"kind", env.Kind,
			"error", err)
		return store.NewStoreError("task", "save", MapError(err))
	}
	return nil
}

// UpdateTaskStatus records status, attempt and error message for taskID.
// A missing row is logged and ignored.
func (s *TaskStore) UpdateTaskStatus(
	ctx context.Context,
	taskID uuid.UUID,
	status task.TaskStatus,
	attempt int,
	errorMsg string,
) error {
	const query = `
		UPDATE tasks
		SET status = $1, attempt = $2, error_message = NULLIF($3, ''), updated_at = $4
		WHERE id = $5
	`

	log := logger.FromContext(ctx)
	result, err := s.db.ExecContext(ctx, query, string(status), attempt, errorMsg, time.Now().UTC(), taskID)
	if err != nil {
		log.Error("failed to update task status",
			"task_id", taskID,
			"status", status,
			"error", err)
		return store.NewStoreError("task", "update", MapError(err))
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		log.Warn("no task found to update", "task_id", taskID, "status", status)
	}
	return nil
}

// GetPendingTasks returns pending envelopes, oldest first.
func (s *TaskStore) GetPendingTasks(ctx context.Context) ([]*task.Envelope, error) {
	return s.listByStatus(ctx, task.TaskStatusPending, 0)
}

// GetProcessingTasks returns processing envelopes not updated within olderThan.
func (s *TaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]*task.Envelope, error) {
	return s.listByStatus(ctx, task.TaskStatusProcessing, olderThan)
}

func (s *TaskStore) listByStatus(ctx context.Context, status task.TaskStatus, olderThan time.Duration) ([]*task.Envelope, error) {
	query := `
		SELECT id, kind, payload, attempt, status, created_at, updated_at
		FROM tasks
		WHERE status = $1`
	args := []any{string(status)}

	if olderThan > 0 {
		query += ` AND updated_at < $2`
		args = append(args, time.Now().UTC().Add(-olderThan))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("task", "list", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var envs []*task.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, store.NewStoreError("task", "list", err)
		}
		envs = append(envs, env)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("task", "list", fmt.Errorf("error iterating task rows: %w", err))
	}

	return envs, nil
}

func scanEnvelope(rows *sql.Rows) (*task.Envelope, error) {
	var (
		env    task.Envelope
		status string
	)
	if err := rows.Scan(&env.ID, &env.Kind, &env.Payload, &env.Attempt, &status, &env.CreatedAt, &env.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan task row: %w", err)
	}
	env.Status = task.TaskStatus(status)
	return &env, nil
}
