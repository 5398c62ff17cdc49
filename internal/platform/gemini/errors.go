package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/phrazzld/isplitter/internal/generation"
	"google.golang.org/genai"
)

// classifyError maps a genai client error onto the generation sentinels.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		// No API status means the request never got a proper answer.
		return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", generation.ErrQuotaExceeded, apiErr.Message)
	case apiErr.Code == http.StatusRequestTimeout || apiErr.Code >= 500:
		return fmt.Errorf("%w: %d %s", generation.ErrTransientFailure, apiErr.Code, apiErr.Message)
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %d %s", generation.ErrInvalidConfig, apiErr.Code, apiErr.Message)
	default:
		return fmt.Errorf("%w: %d %s", generation.ErrInvalidRequest, apiErr.Code, apiErr.Message)
	}
}
