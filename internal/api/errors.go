package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/isplitter/internal/api/shared"
	"github.com/phrazzld/isplitter/internal/domain"
	"github.com/phrazzld/isplitter/internal/pipeline"
	"github.com/phrazzld/isplitter/internal/service/auth"
)

// errRequestTooLarge is returned when a multipart body exceeds the upload limit.
var errRequestTooLarge = errors.New("request body too large")

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// exposing the errors themselves.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	case errors.Is(err, errRequestTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, pipeline.ErrStageTimeout):
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err. Validation
// messages are built by this service and are passed through; everything
// else gets a fixed message.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}

	var serr *pipeline.StageError
	if errors.As(err, &serr) {
		switch {
		case serr.Timeout() && serr.Stage == pipeline.StageUpload:
			return "Image upload timed out"
		case serr.Timeout():
			return "Image generation timed out"
		case serr.Stage == pipeline.StageUpload:
			return "Failed to upload generated image"
		default:
			return "Failed to generate image"
		}
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrMissingToken):
		return "Authorization header required"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"
	case errors.Is(err, errRequestTooLarge):
		return "Request body too large"
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid task ID"
	case errors.Is(err, domain.ErrNotFound):
		return "Task not found"
	case errors.Is(err, pipeline.ErrTotalFailure):
		return "Failed to generate any images"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the mapped status and safe message for err and logs
// the redacted details.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
