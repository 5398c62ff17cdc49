package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/isplitter/internal/domain"
)

var (
	// ErrTaskNotFound is returned when no record exists for an id.
	ErrTaskNotFound = fmt.Errorf("%w: try-on task", domain.ErrNotFound)

	// ErrTaskExists is returned by Create when the id is already taken.
	ErrTaskExists = errors.New("try-on task already exists")
)

// Tracker stores try-on task records.
type Tracker interface {
	// Create stores a new record. The record must be valid.
	Create(ctx context.Context, t *domain.TryOnTask) error

	// Get returns a copy of the record for id, or ErrTaskNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.TryOnTask, error)

	// Update merges u into the record atomically and returns the result.
	// It fails with domain.ErrStatusTransition when the record is terminal
	// or u would move its status backwards.
	Update(ctx context.Context, id uuid.UUID, u domain.TryOnUpdate) (*domain.TryOnTask, error)
}
