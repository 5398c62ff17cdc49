package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/isplitter/internal/store"
	"github.com/phrazzld/isplitter/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taskColumns = []string{"id", "kind", "payload", "attempt", "status", "created_at", "updated_at"}

func TestTaskStore_SaveTask(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	env := task.NewEnvelope("generate_image", []byte(`{"unit_id":"Top"}`))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tasks")).
		WithArgs(env.ID, "generate_image", env.Payload, 0, "pending", env.CreatedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewTaskStore(db)
	require.NoError(t, s.SaveTask(context.Background(), env))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStore_SaveTaskError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tasks")).WillReturnError(errors.New("connection reset"))

	err = NewTaskStore(db).SaveTask(context.Background(), task.NewEnvelope("upload_image", nil))
	var se *store.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "save", se.Operation)
}

func TestTaskStore_UpdateTaskStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks")).
		WithArgs("failed", 3, "soft time limit exceeded", sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// missing rows are not an error
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := NewTaskStore(db)
	require.NoError(t, s.UpdateTaskStatus(context.Background(), id, task.TaskStatusFailed, 3, "soft time limit exceeded"))
	require.NoError(t, s.UpdateTaskStatus(context.Background(), uuid.New(), task.TaskStatusCompleted, 1, ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStore_GetPendingTasks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	id := uuid.New()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(taskColumns).
		AddRow(id.String(), "generate_image", []byte("{}"), 1, "pending", created, created)

	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks")).
		WithArgs("pending").
		WillReturnRows(rows)

	envs, err := NewTaskStore(db).GetPendingTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, id, envs[0].ID)
	assert.Equal(t, "generate_image", envs[0].Kind)
	assert.Equal(t, 1, envs[0].Attempt)
	assert.Equal(t, task.TaskStatusPending, envs[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStore_GetProcessingTasksOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("AND updated_at < $2")).
		WithArgs("processing", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(taskColumns))

	envs, err := NewTaskStore(db).GetProcessingTasks(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, envs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
