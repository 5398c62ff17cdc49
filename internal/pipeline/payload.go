package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/isplitter/internal/task"
)

// Task kinds registered by Workers.
const (
	KindGenerate = "generate_image"
	KindUpload   = "upload_image"
)

type generatePayload struct {
	RequestID   uuid.UUID `json:"request_id"`
	TrackingID  uuid.UUID `json:"tracking_id"`
	UnitID      string    `json:"unit_id"`
	Source      []byte    `json:"source"`
	MimeType    string    `json:"mime_type"`
	Instruction string    `json:"instruction"`
	References  []string  `json:"references,omitempty"`
}

type uploadPayload struct {
	RequestID  uuid.UUID `json:"request_id"`
	TrackingID uuid.UUID `json:"tracking_id"`
	UnitID     string    `json:"unit_id"`
	KeyPrefix  string    `json:"key_prefix"`
	Data       []byte    `json:"data"`
}

type uploadValue struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// decodePayload unmarshals a task payload. A payload that cannot be decoded
// will never succeed, so the error is permanent.
func decodePayload(kind string, payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return task.Permanent(fmt.Errorf("invalid %s payload: %w", kind, err))
	}
	return nil
}
