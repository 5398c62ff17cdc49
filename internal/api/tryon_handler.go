package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/isplitter/internal/api/shared"
	"github.com/phrazzld/isplitter/internal/domain"
	"github.com/phrazzld/isplitter/internal/pipeline"
)

// TryOnRunner runs try-on requests and reports their status.
type TryOnRunner interface {
	TryOn(ctx context.Context, in pipeline.TryOnInput) (*pipeline.TryOnResult, error)
	Submit(ctx context.Context, in pipeline.TryOnInput) (*domain.TryOnTask, error)
	Status(ctx context.Context, id uuid.UUID) (*domain.TryOnTask, error)
}

// TryOnHandler handles the virtual try-on and status endpoints.
type TryOnHandler struct {
	runner    TryOnRunner
	maxUpload int64
	// statusPath is the status route prefix used to build status_url.
	statusPath string
	logger     *slog.Logger
}

// NewTryOnHandler creates a TryOnHandler.
func NewTryOnHandler(runner TryOnRunner, maxUpload int64, statusPath string, logger *slog.Logger) *TryOnHandler {
	return &TryOnHandler{
		runner:     runner,
		maxUpload:  maxUpload,
		statusPath: statusPath,
		logger:     logger.With("handler", "tryon"),
	}
}

func (h *TryOnHandler) readInput(w http.ResponseWriter, r *http.Request) (pipeline.TryOnInput, error) {
	if err := parseMultipart(w, r, h.maxUpload); err != nil {
		return pipeline.TryOnInput{}, err
	}

	human, err := formFile(r, "human_image")
	if err != nil {
		return pipeline.TryOnInput{}, err
	}

	return pipeline.TryOnInput{
		HumanImage:   human,
		ClothingURLs: r.MultipartForm.Value["clothing_urls"],
	}, nil
}

// TryOn handles POST /virtual-tryon/try-on and blocks until the image is ready.
func (h *TryOnHandler) TryOn(w http.ResponseWriter, r *http.Request) {
	in, err := h.readInput(w, r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	result, err := h.runner.TryOn(r.Context(), in)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "try-on served",
		"task_id", result.TaskID,
		"elapsed_ms", result.Elapsed.Milliseconds())

	shared.RespondWithJSON(w, r, http.StatusOK, TryOnResponse{
		TaskID:         result.TaskID.String(),
		ElapsedSeconds: result.Elapsed.Seconds(),
		ResultURL:      result.ResultURL,
	})
}

// TryOnAsync handles POST /virtual-tryon/try-on/async. It answers 202 once
// the request is validated and recorded.
func (h *TryOnHandler) TryOnAsync(w http.ResponseWriter, r *http.Request) {
	in, err := h.readInput(w, r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	record, err := h.runner.Submit(r.Context(), in)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	statusURL := h.statusPath + "/" + record.ID.String()
	w.Header().Set("Location", statusURL)
	shared.RespondWithJSON(w, r, http.StatusAccepted, TaskAcceptedResponse{
		TaskID:    record.ID.String(),
		Status:    string(record.Status),
		StatusURL: statusURL,
	})
}

// Status handles GET /status/{task_id}.
func (h *TryOnHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "task_id")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	record, err := h.runner.Status(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskStatusResponse(record))
}
