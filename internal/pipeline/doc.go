// Package pipeline runs the two-stage generate and upload flow.
//
// The Orchestrator submits one generation task per work unit to the task
// runner, waits on all of them concurrently under a per-unit timeout, then
// submits one upload task for every unit whose generation succeeded and
// waits on those the same way. Failures stay isolated to their unit.
// Multi-unit requests return whatever succeeded; single-unit requests
// either fully succeed or fail with a *StageError naming the stage.
//
// Workers holds the task handlers executed by the runner. SplitService and
// TryOnService turn request input into GenerationRequests and record try-on
// progress in a status.Tracker.
package pipeline
