// Package generation defines the boundary between the pipeline and the
// external generative image model. A Generator takes a source image, an
// instruction and optional reference images and returns the bytes of one
// generated image. Failures are reported with the sentinel errors in
// errors.go so the task queue can tell retryable failures from final ones.
package generation
