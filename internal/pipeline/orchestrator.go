package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/isplitter/internal/task"
	"golang.org/x/sync/errgroup"
)

// Submitter queues a task and returns a handle to await its outcome.
// *task.TaskRunner implements it.
type Submitter interface {
	Submit(ctx context.Context, kind string, payload []byte) (*task.Handle, error)
}

// Timeouts bounds how long the orchestrator waits for each unit per stage.
type Timeouts struct {
	Generate time.Duration
	Upload   time.Duration
}

// DefaultTimeouts returns 120s for generation and 60s for upload.
func DefaultTimeouts() Timeouts {
	return Timeouts{Generate: 120 * time.Second, Upload: 60 * time.Second}
}

// Orchestrator drives requests through the generate and upload stages.
type Orchestrator struct {
	tasks    Submitter
	timeouts Timeouts
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator. Zero timeouts fall back to the defaults.
func NewOrchestrator(tasks Submitter, timeouts Timeouts, logger *slog.Logger) *Orchestrator {
	def := DefaultTimeouts()
	if timeouts.Generate <= 0 {
		timeouts.Generate = def.Generate
	}
	if timeouts.Upload <= 0 {
		timeouts.Upload = def.Upload
	}
	return &Orchestrator{
		tasks:    tasks,
		timeouts: timeouts,
		logger:   logger.With("component", "orchestrator"),
	}
}

// ExecutePipeline runs every unit of req through both stages and returns
// the units that succeeded, in request order. It fails with ErrTotalFailure
// only when no unit succeeded.
func (o *Orchestrator) ExecutePipeline(ctx context.Context, req *GenerationRequest) ([]UnitOutput, error) {
	if len(req.Units) == 0 {
		return nil, fmt.Errorf("%w: no work units", ErrInvalidRequest)
	}

	outputs, failures := o.run(ctx, req)
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: 0 of %d units succeeded (first failure: %v)",
			ErrTotalFailure, len(req.Units), failures[0])
	}
	return outputs, nil
}

// ExecuteSingle runs a one-unit request. Any failure is returned as a
// *StageError naming the stage it happened in.
func (o *Orchestrator) ExecuteSingle(ctx context.Context, req *GenerationRequest) (UnitOutput, error) {
	if len(req.Units) != 1 {
		return UnitOutput{}, fmt.Errorf("%w: single execution needs exactly one unit, got %d",
			ErrInvalidRequest, len(req.Units))
	}

	outputs, failures := o.run(ctx, req)
	if len(failures) > 0 {
		return UnitOutput{}, failures[0]
	}
	return outputs[0], nil
}

func (o *Orchestrator) run(ctx context.Context, req *GenerationRequest) ([]UnitOutput, []*StageError) {
	log := o.logger.With("request_id", req.ID, "unit_count", len(req.Units))
	start := time.Now()

	units := make([]WorkUnit, len(req.Units))
	copy(units, req.Units)

	generated, failures := o.generateStage(ctx, log, req, units)
	uploaded, uploadFailures := o.uploadStage(ctx, log, req, units, generated)
	failures = append(failures, uploadFailures...)

	var outputs []UnitOutput
	for _, r := range uploaded {
		if r.Success {
			outputs = append(outputs, UnitOutput{UnitID: r.UnitID, URL: r.URL, Key: r.Key})
		}
	}

	log.Info("pipeline finished",
		"succeeded", len(outputs),
		"failed", len(failures),
		"duration_ms", time.Since(start).Milliseconds())

	return outputs, failures
}

func (o *Orchestrator) generateStage(
	ctx context.Context,
	log *slog.Logger,
	req *GenerationRequest,
	units []WorkUnit,
) ([]GenerationResult, []*StageError) {
	handles := make([]*task.Handle, len(units))
	for i := range units {
		payload, err := json.Marshal(generatePayload{
			RequestID:   req.ID,
			TrackingID:  req.TrackingID,
			UnitID:      units[i].ID,
			Source:      req.Source,
			MimeType:    req.MimeType,
			Instruction: units[i].Instruction,
			References:  units[i].References,
		})
		if err == nil {
			handles[i], err = o.tasks.Submit(ctx, KindGenerate, payload)
		}
		if err != nil {
			log.Error("failed to submit generation task", "unit_id", units[i].ID, "error", err)
			continue
		}
		units[i].State = UnitRunning
	}

	outcomes := o.awaitAll(ctx, handles, o.timeouts.Generate)

	results := make([]GenerationResult, 0, len(units))
	var failures []*StageError
	for i, out := range outcomes {
		unit := &units[i]
		if handles[i] == nil {
			unit.State = UnitFailed
			failures = append(failures, &StageError{
				Stage: StageGenerate, UnitID: unit.ID, Kind: failureSubmit, Message: "task could not be queued",
			})
			continue
		}
		if !out.OK() {
			unit.State = UnitFailed
			unit.Attempts = out.Failure.Attempts
			serr := stageFailure(StageGenerate, unit.ID, out.Failure)
			log.Warn("generation failed for unit",
				"unit_id", unit.ID,
				"failure_kind", out.Failure.Kind,
				"attempts", out.Failure.Attempts,
				"error", out.Failure.Message)
			failures = append(failures, serr)
			continue
		}
		results = append(results, GenerationResult{UnitID: unit.ID, Success: true, Data: out.Value})
	}

	return results, failures
}

func (o *Orchestrator) uploadStage(
	ctx context.Context,
	log *slog.Logger,
	req *GenerationRequest,
	units []WorkUnit,
	generated []GenerationResult,
) ([]UploadResult, []*StageError) {
	if len(generated) == 0 {
		return nil, nil
	}

	handles := make([]*task.Handle, len(generated))
	for i, g := range generated {
		payload, err := json.Marshal(uploadPayload{
			RequestID:  req.ID,
			TrackingID: req.TrackingID,
			UnitID:     g.UnitID,
			KeyPrefix:  req.KeyPrefix,
			Data:       g.Data,
		})
		if err == nil {
			handles[i], err = o.tasks.Submit(ctx, KindUpload, payload)
		}
		if err != nil {
			log.Error("failed to submit upload task", "unit_id", g.UnitID, "error", err)
		}
	}

	outcomes := o.awaitAll(ctx, handles, o.timeouts.Upload)

	results := make([]UploadResult, 0, len(generated))
	var failures []*StageError
	for i, out := range outcomes {
		g := generated[i]
		unit := findUnit(units, g.UnitID)

		var serr *StageError
		switch {
		case handles[i] == nil:
			serr = &StageError{Stage: StageUpload, UnitID: g.UnitID, Kind: failureSubmit, Message: "task could not be queued"}
		case !out.OK():
			serr = stageFailure(StageUpload, g.UnitID, out.Failure)
		}
		if serr == nil {
			var v uploadValue
			if err := json.Unmarshal(out.Value, &v); err != nil || v.URL == "" {
				serr = &StageError{Stage: StageUpload, UnitID: g.UnitID, Kind: task.FailurePermanent,
					Message: "upload task returned no url"}
			} else {
				unit.State = UnitSucceeded
				results = append(results, UploadResult{UnitID: g.UnitID, Success: true, URL: v.URL, Key: v.Key})
				continue
			}
		}

		unit.State = UnitFailed
		unit.Attempts = serr.Attempts
		log.Error("upload failed for unit, generated image dropped",
			"unit_id", g.UnitID,
			"dropped_bytes", len(g.Data),
			"failure_kind", serr.Kind,
			"attempts", serr.Attempts,
			"error", serr.Message)
		failures = append(failures, serr)
	}

	return results, failures
}

// awaitAll waits on every non-nil handle concurrently, so a stage takes as
// long as its slowest unit rather than the sum of all units.
func (o *Orchestrator) awaitAll(ctx context.Context, handles []*task.Handle, timeout time.Duration) []task.Outcome {
	outcomes := make([]task.Outcome, len(handles))

	var g errgroup.Group
	for i, h := range handles {
		if h == nil {
			continue
		}
		g.Go(func() error {
			outcomes[i] = h.Await(ctx, timeout)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func findUnit(units []WorkUnit, id string) *WorkUnit {
	for i := range units {
		if units[i].ID == id {
			return &units[i]
		}
	}
	return &WorkUnit{ID: id}
}
