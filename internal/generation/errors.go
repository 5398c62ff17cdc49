package generation

import "errors"

// Common errors returned by Generator implementations
var (
	// ErrTransientFailure is returned for network and server errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during image generation")

	// ErrQuotaExceeded is returned when the model provider rejects the call for rate or quota reasons
	ErrQuotaExceeded = errors.New("image model quota exceeded")

	// ErrEmptyResult is returned when the model answered without an image
	ErrEmptyResult = errors.New("image model returned no image")

	// ErrContentBlocked is returned when the model blocks the request due to safety filters
	ErrContentBlocked = errors.New("content blocked by image model safety filters")

	// ErrInvalidRequest is returned when the model rejects the request itself
	ErrInvalidRequest = errors.New("invalid image generation request")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")
)

// IsRetryable reports whether a failed generation may succeed if attempted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientFailure) || errors.Is(err, ErrQuotaExceeded)
}
