package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TryOnStatus represents the processing state of a try-on task
type TryOnStatus string

// Possible try-on status values, in the only order they may advance
const (
	TryOnStatusPending    TryOnStatus = "pending"
	TryOnStatusProcessing TryOnStatus = "processing"
	TryOnStatusCompleted  TryOnStatus = "completed"
	TryOnStatusFailed     TryOnStatus = "failed"
)

// Common validation errors for TryOnTask
var (
	ErrEmptyTryOnID       = errors.New("try-on task ID cannot be empty")
	ErrEmptyHumanImageRef = errors.New("human image reference cannot be empty")
	ErrNoClothingRefs     = errors.New("at least one clothing reference is required")
)

// Valid reports whether s is a known status.
func (s TryOnStatus) Valid() bool {
	switch s {
	case TryOnStatusPending, TryOnStatusProcessing, TryOnStatusCompleted, TryOnStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is completed or failed.
func (s TryOnStatus) IsTerminal() bool {
	return s == TryOnStatusCompleted || s == TryOnStatusFailed
}

// Rank orders statuses; completed and failed share the highest rank.
func (s TryOnStatus) Rank() int {
	switch s {
	case TryOnStatusPending:
		return 0
	case TryOnStatusProcessing:
		return 1
	case TryOnStatusCompleted, TryOnStatusFailed:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether a record in status from may be updated to status to.
func CanTransition(from, to TryOnStatus) bool {
	if !from.Valid() || !to.Valid() || from.IsTerminal() {
		return false
	}
	return to.Rank() >= from.Rank()
}

// PriorStatuses lists the statuses a record may be in for an update to to
// be accepted. An empty to means the update leaves status untouched.
func PriorStatuses(to TryOnStatus) []TryOnStatus {
	all := []TryOnStatus{TryOnStatusPending, TryOnStatusProcessing}
	if to == "" {
		return all
	}
	var allowed []TryOnStatus
	for _, s := range all {
		if CanTransition(s, to) {
			allowed = append(allowed, s)
		}
	}
	return allowed
}

// TryOnTask is the status record of one try-on request.
type TryOnTask struct {
	ID            uuid.UUID   `json:"task_id"`
	Status        TryOnStatus `json:"status"`
	HumanImageRef string      `json:"human_image_ref"`
	ClothingRefs  []string    `json:"clothing_refs"`
	ResultURL     string      `json:"result_url,omitempty"`
	ErrorMessage  string      `json:"error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
}

// NewTryOnTask creates a pending record.
func NewTryOnTask(id uuid.UUID, humanImageRef string, clothingRefs []string) (*TryOnTask, error) {
	now := time.Now().UTC()
	t := &TryOnTask{
		ID:            id,
		Status:        TryOnStatusPending,
		HumanImageRef: humanImageRef,
		ClothingRefs:  append([]string(nil), clothingRefs...),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// Validate checks if the TryOnTask has valid data.
func (t *TryOnTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTryOnID
	}
	if t.HumanImageRef == "" {
		return ErrEmptyHumanImageRef
	}
	if len(t.ClothingRefs) == 0 {
		return ErrNoClothingRefs
	}
	if !t.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// TryOnUpdate is a partial update. Only non-nil fields are written.
type TryOnUpdate struct {
	Status       *TryOnStatus
	ResultURL    *string
	ErrorMessage *string
	CompletedAt  *time.Time
}

// MarkProcessing builds the update applied when a worker picks the task up.
func MarkProcessing() TryOnUpdate {
	s := TryOnStatusProcessing
	return TryOnUpdate{Status: &s}
}

// MarkCompleted builds the terminal success update.
func MarkCompleted(resultURL string, at time.Time) TryOnUpdate {
	s := TryOnStatusCompleted
	at = at.UTC()
	return TryOnUpdate{Status: &s, ResultURL: &resultURL, CompletedAt: &at}
}

// MarkFailed builds the terminal failure update.
func MarkFailed(msg string, at time.Time) TryOnUpdate {
	s := TryOnStatusFailed
	at = at.UTC()
	return TryOnUpdate{Status: &s, ErrorMessage: &msg, CompletedAt: &at}
}

// Validate checks the update on its own, without a current record.
func (u TryOnUpdate) Validate() error {
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, *u.Status)
	}
	return nil
}

// Apply merges u into t. It fails with ErrStatusTransition when t is
// terminal or when u would move the status backwards.
func (t *TryOnTask) Apply(u TryOnUpdate, now time.Time) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: task %s is already %s", ErrStatusTransition, t.ID, t.Status)
	}
	if u.Status != nil {
		if !CanTransition(t.Status, *u.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrStatusTransition, t.Status, *u.Status)
		}
		t.Status = *u.Status
	}
	if u.ResultURL != nil {
		t.ResultURL = *u.ResultURL
	}
	if u.ErrorMessage != nil {
		t.ErrorMessage = *u.ErrorMessage
	}
	if u.CompletedAt != nil {
		at := u.CompletedAt.UTC()
		t.CompletedAt = &at
	}
	t.UpdatedAt = now.UTC()
	return nil
}

// Clone returns a deep copy.
func (t *TryOnTask) Clone() *TryOnTask {
	c := *t
	c.ClothingRefs = append([]string(nil), t.ClothingRefs...)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}
