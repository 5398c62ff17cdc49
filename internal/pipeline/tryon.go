package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/isplitter/internal/domain"
	"github.com/phrazzld/isplitter/internal/imaging"
	"github.com/phrazzld/isplitter/internal/status"
)

// TryOnUnitID names the single work unit of a try-on request.
const TryOnUnitID = "tryon"

// DefaultMaxClothingItems is the clothing URL limit used when none is configured.
const DefaultMaxClothingItems = 3

var validate = validator.New()

// TryOnConfig holds the try-on settings.
type TryOnConfig struct {
	MaxClothingItems int
	Image            imaging.Options
	KeyPrefix        string
}

// TryOnInput is a try-on request as received from a caller.
type TryOnInput struct {
	HumanImage   []byte
	ClothingURLs []string
}

// TryOnResult is a completed synchronous try-on.
type TryOnResult struct {
	TaskID    uuid.UUID
	ResultURL string
	Elapsed   time.Duration
}

// TryOnService composes a person with garment images. Every request has a
// status record that moves pending, processing, then completed or failed.
type TryOnService struct {
	orch    *Orchestrator
	tracker status.Tracker
	cfg     TryOnConfig
	logger  *slog.Logger
	now     func() time.Time

	// background tracks async requests still running.
	background sync.WaitGroup
}

// NewTryOnService creates a TryOnService. orch should be built with the
// try-on upload timeout.
func NewTryOnService(orch *Orchestrator, tracker status.Tracker, cfg TryOnConfig, logger *slog.Logger) *TryOnService {
	if cfg.MaxClothingItems <= 0 {
		cfg.MaxClothingItems = DefaultMaxClothingItems
	}
	return &TryOnService{
		orch:    orch,
		tracker: tracker,
		cfg:     cfg,
		logger:  logger.With("component", "tryon_service"),
		now:     time.Now,
	}
}

type preparedTryOn struct {
	human []byte
	urls  []string
}

// prepare validates the input without side effects.
func (s *TryOnService) prepare(in TryOnInput) (*preparedTryOn, error) {
	urls := SplitClothingURLs(in.ClothingURLs)
	if len(urls) == 0 {
		return nil, domain.NewValidationError("clothing_urls", "at least one clothing URL is required")
	}
	if len(urls) > s.cfg.MaxClothingItems {
		return nil, domain.NewValidationError("clothing_urls", fmt.Sprintf(
			"too many clothing items: %d, maximum is %d", len(urls), s.cfg.MaxClothingItems))
	}
	for _, u := range urls {
		if err := validate.Var(u, "http_url"); err != nil {
			return nil, domain.NewValidationError("clothing_urls", fmt.Sprintf("invalid clothing URL: %q", u))
		}
	}

	human, err := imaging.Normalize(in.HumanImage, "human_image", s.cfg.Image)
	if err != nil {
		return nil, err
	}

	return &preparedTryOn{human: human, urls: urls}, nil
}

// SplitClothingURLs flattens repeated and comma-separated values, dropping blanks.
func SplitClothingURLs(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// TryOn runs a try-on request to completion.
func (s *TryOnService) TryOn(ctx context.Context, in TryOnInput) (*TryOnResult, error) {
	start := time.Now()

	p, err := s.prepare(in)
	if err != nil {
		return nil, err
	}

	record, err := s.createRecord(ctx, p)
	if err != nil {
		return nil, err
	}

	out, err := s.execute(ctx, record.ID, p)
	if err != nil {
		return nil, err
	}

	return &TryOnResult{
		TaskID:    record.ID,
		ResultURL: out.URL,
		Elapsed:   time.Since(start),
	}, nil
}

// Submit validates the request, records it as pending and runs it in the
// background. The caller polls Status with the returned record's ID.
func (s *TryOnService) Submit(ctx context.Context, in TryOnInput) (*domain.TryOnTask, error) {
	p, err := s.prepare(in)
	if err != nil {
		return nil, err
	}

	record, err := s.createRecord(ctx, p)
	if err != nil {
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		_, _ = s.execute(bg, record.ID, p)
	}()

	return record, nil
}

// Status returns the current record for id.
func (s *TryOnService) Status(ctx context.Context, id uuid.UUID) (*domain.TryOnTask, error) {
	return s.tracker.Get(ctx, id)
}

// Wait blocks until every request started by Submit has settled.
func (s *TryOnService) Wait() {
	s.background.Wait()
}

func (s *TryOnService) createRecord(ctx context.Context, p *preparedTryOn) (*domain.TryOnTask, error) {
	record, err := domain.NewTryOnTask(uuid.New(), imageRef(p.human), p.urls)
	if err != nil {
		return nil, err
	}
	if err := s.tracker.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create try-on record: %w", err)
	}
	return record, nil
}

func (s *TryOnService) execute(ctx context.Context, id uuid.UUID, p *preparedTryOn) (UnitOutput, error) {
	unit := WorkUnit{
		ID:          TryOnUnitID,
		Instruction: domain.TryOnInstruction(len(p.urls)),
		References:  p.urls,
	}
	req, err := NewGenerationRequest(p.human, imaging.ContentType, s.cfg.KeyPrefix, []WorkUnit{unit})
	if err != nil {
		s.settle(ctx, id, domain.MarkFailed(err.Error(), s.now()))
		return UnitOutput{}, err
	}
	req.TrackingID = id

	log := s.logger.With("task_id", id, "request_id", req.ID)
	log.InfoContext(ctx, "try-on started", "clothing_items", len(p.urls))

	out, err := s.orch.ExecuteSingle(ctx, req)
	if err != nil {
		log.ErrorContext(ctx, "try-on failed", "error", err)
		s.settle(ctx, id, domain.MarkFailed(err.Error(), s.now()))
		return UnitOutput{}, err
	}

	s.settle(ctx, id, domain.MarkCompleted(out.URL, s.now()))
	log.InfoContext(ctx, "try-on completed", "key", out.Key)
	return out, nil
}

// settle writes a terminal update. It outlives a cancelled request context
// so the record never stays in processing because the caller went away.
func (s *TryOnService) settle(ctx context.Context, id uuid.UUID, u domain.TryOnUpdate) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.tracker.Update(ctx, id, u); err != nil {
		if errors.Is(err, domain.ErrStatusTransition) {
			s.logger.WarnContext(ctx, "try-on record already settled", "task_id", id, "status", *u.Status)
			return
		}
		s.logger.ErrorContext(ctx, "failed to settle try-on record", "task_id", id, "error", err)
	}
}

// imageRef identifies the normalized human image by content hash.
func imageRef(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
