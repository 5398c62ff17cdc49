package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/phrazzld/isplitter/internal/api/shared"
	"github.com/phrazzld/isplitter/internal/pipeline"
)

// Splitter extracts garment images from a photo.
type Splitter interface {
	Split(ctx context.Context, photo []byte) (*pipeline.SplitResult, error)
}

// SplitHandler handles the garment split endpoint.
type SplitHandler struct {
	splitter  Splitter
	maxUpload int64
	logger    *slog.Logger
}

// NewSplitHandler creates a SplitHandler. maxUpload bounds the request body in bytes.
func NewSplitHandler(splitter Splitter, maxUpload int64, logger *slog.Logger) *SplitHandler {
	return &SplitHandler{
		splitter:  splitter,
		maxUpload: maxUpload,
		logger:    logger.With("handler", "split"),
	}
}

// SplitImage handles POST /split-image/ with a multipart image_file.
func (h *SplitHandler) SplitImage(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(w, r, h.maxUpload); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	photo, err := formFile(r, "image_file")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "split request received",
		"trace_id", shared.GetTraceID(r.Context()),
		"bytes", len(photo))

	result, err := h.splitter.Split(r.Context(), photo)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	items := result.Items
	if items == nil {
		items = []pipeline.SplitItem{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, SplitResponse{
		Success: true,
		Message: result.Message(),
		Items:   items,
	})
}
