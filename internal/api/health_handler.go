package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/isplitter/internal/api/shared"
	"github.com/phrazzld/isplitter/internal/redact"
	"github.com/phrazzld/isplitter/internal/storage"
)

// storageProbeTimeout bounds the bucket check.
const storageProbeTimeout = 5 * time.Second

// HealthHandler serves the welcome and health endpoints.
type HealthHandler struct {
	storage storage.HealthChecker
	bucket  string
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler probing bucket through checker.
func NewHealthHandler(checker storage.HealthChecker, bucket string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{storage: checker, bucket: bucket, logger: logger.With("handler", "health")}
}

// Root handles GET /.
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, MessageResponse{Message: "Welcome to the isplitter API"})
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}

// Storage handles GET /health/storage. It answers 503 when the backend
// cannot be reached and 200 with exists=false when only the bucket is missing.
func (h *HealthHandler) Storage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storageProbeTimeout)
	defer cancel()

	exists, err := h.storage.BucketExists(ctx, h.bucket)
	if err != nil {
		h.logger.WarnContext(r.Context(), "storage health check failed", "error", redact.Error(err))
		shared.RespondWithJSON(w, r, http.StatusServiceUnavailable, StorageHealthResponse{
			Status:   "disconnected",
			Endpoint: h.storage.Endpoint(),
			Error:    "storage backend unreachable",
		})
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, StorageHealthResponse{
		Status:   "connected",
		Endpoint: h.storage.Endpoint(),
		Bucket:   &BucketStatus{Name: h.bucket, Exists: exists},
	})
}
