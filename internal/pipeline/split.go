package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/phrazzld/isplitter/internal/domain"
	"github.com/phrazzld/isplitter/internal/imaging"
)

// SplitItem is one extracted garment.
type SplitItem struct {
	Category string `json:"category"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// SplitResult lists the categories that made it through both stages.
type SplitResult struct {
	Items     []SplitItem
	Requested int
}

// Message summarises how many categories succeeded.
func (r *SplitResult) Message() string {
	return fmt.Sprintf("Successfully generated %d of %d images", len(r.Items), r.Requested)
}

// SplitService extracts every garment category from a photo.
type SplitService struct {
	orch      *Orchestrator
	image     imaging.Options
	keyPrefix string
	logger    *slog.Logger
}

// NewSplitService creates a SplitService.
func NewSplitService(orch *Orchestrator, image imaging.Options, keyPrefix string, logger *slog.Logger) *SplitService {
	return &SplitService{
		orch:      orch,
		image:     image,
		keyPrefix: keyPrefix,
		logger:    logger.With("component", "split_service"),
	}
}

// Split normalizes the photo and runs one unit per category. Categories
// that fail are left out of the result; ErrTotalFailure is returned when
// none succeed.
func (s *SplitService) Split(ctx context.Context, photo []byte) (*SplitResult, error) {
	normalized, err := imaging.Normalize(photo, "image_file", s.image)
	if err != nil {
		return nil, err
	}

	categories := domain.Categories()
	units := make([]WorkUnit, len(categories))
	for i, c := range categories {
		units[i] = WorkUnit{ID: c.Name, Instruction: c.Instruction}
	}

	req, err := NewGenerationRequest(normalized, imaging.ContentType, s.keyPrefix, units)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "split request started",
		"request_id", req.ID,
		"source_bytes", len(normalized),
		"categories", len(units))

	outputs, err := s.orch.ExecutePipeline(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &SplitResult{Requested: len(units)}
	for _, out := range outputs {
		result.Items = append(result.Items, SplitItem{
			Category: out.UnitID,
			URL:      out.URL,
			Filename: path.Base(out.Key),
		})
	}
	return result, nil
}
