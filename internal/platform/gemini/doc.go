// Package gemini implements generation.Generator on top of the Gemini image
// models through google.golang.org/genai.
//
// Each Generate call sends the source photo, the reference images and the
// instruction as one user turn with IMAGE as the only response modality and
// returns the first inline image of the answer. Calls are paced by a token
// bucket limiter. Client errors are mapped onto the generation sentinels:
// 429 is a quota error, 408 and 5xx are transient, other API statuses are
// final, and a response without an image is ErrEmptyResult. Retries are the
// task queue's job, so the generator makes exactly one model call per attempt.
package gemini
