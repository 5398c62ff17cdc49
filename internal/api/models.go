package api

import (
	"time"

	"github.com/phrazzld/isplitter/internal/domain"
	"github.com/phrazzld/isplitter/internal/pipeline"
)

// SplitResponse is returned by POST /split-image/.
type SplitResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Items   []pipeline.SplitItem `json:"items"`
}

// TryOnResponse is returned by the synchronous try-on endpoint.
type TryOnResponse struct {
	TaskID         string  `json:"task_id"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	ResultURL      string  `json:"result_url"`
}

// TaskAcceptedResponse is returned when a try-on is queued.
type TaskAcceptedResponse struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

// TaskStatusResponse is returned by GET /status/{task_id}.
type TaskStatusResponse struct {
	TaskID      string     `json:"task_id"`
	Status      string     `json:"status"`
	ResultURL   string     `json:"result_url,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func taskStatusResponse(t *domain.TryOnTask) TaskStatusResponse {
	return TaskStatusResponse{
		TaskID:      t.ID.String(),
		Status:      string(t.Status),
		ResultURL:   t.ResultURL,
		Error:       t.ErrorMessage,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
}

// MessageResponse carries a single message.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// BucketStatus reports one bucket in the storage health response.
type BucketStatus struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
}

// StorageHealthResponse is returned by GET /health/storage.
type StorageHealthResponse struct {
	Status   string        `json:"status"`
	Endpoint string        `json:"endpoint"`
	Bucket   *BucketStatus `json:"bucket,omitempty"`
	Error    string        `json:"error,omitempty"`
}
