package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UnitState is the progress of one work unit through the stages.
type UnitState string

const (
	UnitPending   UnitState = "pending"
	UnitRunning   UnitState = "running"
	UnitSucceeded UnitState = "succeeded"
	UnitFailed    UnitState = "failed"
)

// WorkUnit is one independent piece of a request: a split category or a
// try-on composition.
type WorkUnit struct {
	ID          string
	Instruction string
	// References are garment image URLs fetched by the generation worker.
	References []string
	Attempts   int
	State      UnitState
}

// GenerationRequest is built once per inbound call and not modified after.
type GenerationRequest struct {
	ID        uuid.UUID
	Source    []byte
	MimeType  string
	Units     []WorkUnit
	CreatedAt time.Time
	// KeyPrefix is the object key prefix for uploads, e.g. "split".
	KeyPrefix string
	// TrackingID links the request to a status record; uuid.Nil when untracked.
	TrackingID uuid.UUID
}

// NewGenerationRequest validates the inputs and builds a request whose
// units all start pending.
func NewGenerationRequest(source []byte, mimeType, keyPrefix string, units []WorkUnit) (*GenerationRequest, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("%w: source image is empty", ErrInvalidRequest)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("%w: at least one work unit is required", ErrInvalidRequest)
	}

	seen := make(map[string]bool, len(units))
	copied := make([]WorkUnit, len(units))
	for i, u := range units {
		if u.ID == "" || u.Instruction == "" {
			return nil, fmt.Errorf("%w: unit %d needs an id and an instruction", ErrInvalidRequest, i)
		}
		if seen[u.ID] {
			return nil, fmt.Errorf("%w: duplicate unit id %q", ErrInvalidRequest, u.ID)
		}
		seen[u.ID] = true

		u.References = append([]string(nil), u.References...)
		u.Attempts = 0
		u.State = UnitPending
		copied[i] = u
	}

	return &GenerationRequest{
		ID:        uuid.New(),
		Source:    source,
		MimeType:  mimeType,
		Units:     copied,
		CreatedAt: time.Now().UTC(),
		KeyPrefix: keyPrefix,
	}, nil
}

// GenerationResult is the outcome of the generation stage for one unit.
type GenerationResult struct {
	UnitID  string
	Success bool
	Data    []byte
	Err     error
}

// UploadResult is the outcome of the upload stage for one unit.
type UploadResult struct {
	UnitID  string
	Success bool
	URL     string
	Key     string
	Err     error
}

// UnitOutput is a unit that made it through both stages.
type UnitOutput struct {
	UnitID string
	URL    string
	Key    string
}
