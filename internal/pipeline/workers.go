package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/isplitter/internal/domain"
	"github.com/phrazzld/isplitter/internal/generation"
	"github.com/phrazzld/isplitter/internal/imaging"
	"github.com/phrazzld/isplitter/internal/status"
	"github.com/phrazzld/isplitter/internal/storage"
	"github.com/phrazzld/isplitter/internal/task"
)

// Registrar binds task handlers to kinds. *task.TaskRunner implements it.
type Registrar interface {
	Register(kind string, handler task.Handler)
}

// WorkersConfig holds the worker settings.
type WorkersConfig struct {
	Bucket        string
	OutputQuality int
}

// Workers holds the generate and upload task handlers. Both are safe to
// run more than once for the same task: generation is a pure function of
// its payload and every upload attempt writes a fresh object key.
type Workers struct {
	generator generation.Generator
	storage   storage.Client
	tracker   status.Tracker
	fetcher   *Fetcher
	cfg       WorkersConfig
	logger    *slog.Logger

	// newKey derives the object key for one upload attempt.
	newKey func(prefix, unitID string) string
}

// NewWorkers creates Workers. tracker may be nil when no request is tracked.
func NewWorkers(
	gen generation.Generator,
	store storage.Client,
	tracker status.Tracker,
	fetcher *Fetcher,
	cfg WorkersConfig,
	logger *slog.Logger,
) *Workers {
	if fetcher == nil {
		fetcher = NewFetcher(nil, 0)
	}
	return &Workers{
		generator: gen,
		storage:   store,
		tracker:   tracker,
		fetcher:   fetcher,
		cfg:       cfg,
		logger:    logger.With("component", "pipeline_workers"),
		newKey:    ObjectKey,
	}
}

// ObjectKey returns "<prefix>/<unit>_<uuid>.jpg".
func ObjectKey(prefix, unitID string) string {
	name := fmt.Sprintf("%s_%s.jpg", unitID, uuid.New())
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Register binds both handlers on r.
func (w *Workers) Register(r Registrar) {
	r.Register(KindGenerate, w.Generate)
	r.Register(KindUpload, w.Upload)
}

// Generate runs one generation attempt and returns the image bytes.
func (w *Workers) Generate(ctx context.Context, payload []byte) ([]byte, error) {
	var p generatePayload
	if err := decodePayload(KindGenerate, payload, &p); err != nil {
		return nil, err
	}

	log := w.logger.With("request_id", p.RequestID, "unit_id", p.UnitID)
	if info, ok := task.InfoFromContext(ctx); ok {
		log = log.With("task_id", info.ID, "attempt", info.Attempt)
	}

	if err := w.markProcessing(ctx, p.TrackingID); err != nil {
		return nil, err
	}

	refs := make([]generation.Image, 0, len(p.References))
	for _, url := range p.References {
		img, err := w.fetcher.Fetch(ctx, url)
		if err != nil {
			log.Warn("reference download failed", "url", url, "error", err)
			var de *DownloadError
			if errors.As(err, &de) && de.Permanent() {
				return nil, task.Permanent(err)
			}
			return nil, err
		}
		refs = append(refs, img)
	}

	out, err := w.generator.Generate(ctx, generation.Request{
		Source:      generation.Image{Data: p.Source, MimeType: p.MimeType},
		Instruction: p.Instruction,
		References:  refs,
	})
	if err != nil {
		if !generation.IsRetryable(err) {
			return nil, task.Permanent(err)
		}
		return nil, err
	}

	log.Info("unit generated", "bytes", len(out))
	return out, nil
}

// Upload stores generated bytes as JPEG under a fresh key and returns the
// URL and key as JSON.
func (w *Workers) Upload(ctx context.Context, payload []byte) ([]byte, error) {
	var p uploadPayload
	if err := decodePayload(KindUpload, payload, &p); err != nil {
		return nil, err
	}

	jpg, err := imaging.Reencode(p.Data, w.cfg.OutputQuality)
	if err != nil {
		return nil, task.Permanent(fmt.Errorf("generated output for unit %s: %w", p.UnitID, err))
	}

	key := w.newKey(p.KeyPrefix, p.UnitID)
	if err := w.storage.Put(ctx, w.cfg.Bucket, key, imaging.ContentType, jpg); err != nil {
		return nil, err
	}

	url, err := w.storage.URL(ctx, w.cfg.Bucket, key)
	if err != nil {
		return nil, err
	}

	w.logger.Info("unit uploaded",
		"request_id", p.RequestID,
		"unit_id", p.UnitID,
		"key", key,
		"bytes", len(jpg))

	return json.Marshal(uploadValue{URL: url, Key: key})
}

// markProcessing moves a tracked record to processing. A record that is
// already terminal means this delivery is a duplicate of finished work.
func (w *Workers) markProcessing(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil || w.tracker == nil {
		return nil
	}

	_, err := w.tracker.Update(ctx, id, domain.MarkProcessing())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrStatusTransition):
		return task.Permanent(fmt.Errorf("%w: %s", ErrAlreadySettled, id))
	case errors.Is(err, domain.ErrNotFound):
		return task.Permanent(err)
	default:
		return fmt.Errorf("failed to mark task processing: %w", err)
	}
}
