package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/isplitter/internal/domain"
	"github.com/phrazzld/isplitter/internal/status"
	"github.com/phrazzld/isplitter/internal/store"
)

// StatusStore implements status.Tracker on the tryon_tasks table. Updates
// lock the row, apply the change in Go and write back every mutable column.
type StatusStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ status.Tracker = (*StatusStore)(nil)

// NewStatusStore creates a StatusStore on db.
func NewStatusStore(db *sql.DB, logger *slog.Logger) *StatusStore {
	return &StatusStore{
		db:     db,
		logger: logger.With("component", "postgres_status_store"),
		now:    time.Now,
	}
}

const selectTryOn = `
	SELECT id, status, human_image_ref, clothing_refs, result_url, error_message,
	       created_at, updated_at, completed_at
	FROM tryon_tasks
	WHERE id = $1`

// Create implements status.Tracker.
func (s *StatusStore) Create(ctx context.Context, t *domain.TryOnTask) error {
	if t == nil {
		return fmt.Errorf("%w: nil task", domain.ErrValidation)
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	refs, err := json.Marshal(t.ClothingRefs)
	if err != nil {
		return fmt.Errorf("failed to encode clothing refs: %w", err)
	}

	const query = `
		INSERT INTO tryon_tasks (id, status, human_image_ref, clothing_refs, result_url,
		                         error_message, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		t.ID,
		string(t.Status),
		t.HumanImageRef,
		string(refs),
		t.ResultURL,
		t.ErrorMessage,
		t.CreatedAt,
		t.UpdatedAt,
		t.CompletedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", status.ErrTaskExists, t.ID)
		}
		s.logger.ErrorContext(ctx, "failed to insert try-on task", "task_id", t.ID, "error", err)
		return store.NewStoreError("tryon_task", "create", MapError(err))
	}
	return nil
}

// Get implements status.Tracker.
func (s *StatusStore) Get(ctx context.Context, id uuid.UUID) (*domain.TryOnTask, error) {
	return getTryOn(ctx, s.db, selectTryOn, id)
}

// Update implements status.Tracker.
func (s *StatusStore) Update(ctx context.Context, id uuid.UUID, u domain.TryOnUpdate) (*domain.TryOnTask, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	var updated *domain.TryOnTask
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		current, err := getTryOn(ctx, tx, selectTryOn+" FOR UPDATE", id)
		if err != nil {
			return err
		}

		next := current.Clone()
		if err := next.Apply(u, s.now()); err != nil {
			return err
		}

		const query = `
			UPDATE tryon_tasks
			SET status = $1, result_url = NULLIF($2, ''), error_message = NULLIF($3, ''),
			    updated_at = $4, completed_at = $5
			WHERE id = $6 AND status = $7
		`
		result, err := tx.ExecContext(ctx, query,
			string(next.Status),
			next.ResultURL,
			next.ErrorMessage,
			next.UpdatedAt,
			next.CompletedAt,
			id,
			string(current.Status),
		)
		if err != nil {
			return store.NewStoreError("tryon_task", "update", MapError(err))
		}
		if err := CheckRowsAffected(result, "tryon_task"); err != nil {
			return fmt.Errorf("%w: %s changed concurrently", domain.ErrStatusTransition, id)
		}

		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func getTryOn(ctx context.Context, db store.DBTX, query string, id uuid.UUID) (*domain.TryOnTask, error) {
	var (
		t           domain.TryOnTask
		st          string
		refs        []byte
		resultURL   sql.NullString
		errorMsg    sql.NullString
		completedAt sql.NullTime
	)

	err := db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &st, &t.HumanImageRef, &refs, &resultURL, &errorMsg,
		&t.CreatedAt, &t.UpdatedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", status.ErrTaskNotFound, id)
		}
		return nil, store.NewStoreError("tryon_task", "get", MapError(err))
	}

	if err := json.Unmarshal(refs, &t.ClothingRefs); err != nil {
		return nil, fmt.Errorf("failed to decode clothing refs: %w", err)
	}
	t.Status = domain.TryOnStatus(st)
	t.ResultURL = resultURL.String
	t.ErrorMessage = errorMsg.String
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		t.CompletedAt = &at
	}
	return &t, nil
}
