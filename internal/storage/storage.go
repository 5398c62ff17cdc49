// Package storage defines the object storage boundary used by upload workers
// and an in-memory implementation for local runs and tests.
package storage

import (
	"context"
	"errors"
)

// Common storage errors
var (
	// ErrUploadFailed wraps any failure to persist an object
	ErrUploadFailed = errors.New("object upload failed")

	// ErrURLFailed wraps any failure to produce a retrieval URL
	ErrURLFailed = errors.New("object URL generation failed")

	// ErrObjectNotFound is returned when an object does not exist
	ErrObjectNotFound = errors.New("object not found")
)

// Client stores objects and hands out URLs to fetch them.
type Client interface {
	// Put stores data under bucket/key with the given content type.
	Put(ctx context.Context, bucket, key, contentType string, data []byte) error

	// URL returns a time-limited URL that serves the object stored at bucket/key.
	URL(ctx context.Context, bucket, key string) (string, error)
}

// HealthChecker is implemented by clients that can probe their backend.
type HealthChecker interface {
	// BucketExists reports whether bucket is reachable and present.
	BucketExists(ctx context.Context, bucket string) (bool, error)

	// Endpoint describes where the backend lives, for health output.
	Endpoint() string
}
