package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/isplitter/internal/config"
	"github.com/phrazzld/isplitter/internal/generation"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// contentGenerator is the subset of *genai.Models used by ImageGenerator.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// ImageGenerator implements generation.Generator with a Gemini image model.
type ImageGenerator struct {
	logger      *slog.Logger
	models      contentGenerator
	model       string
	aspectRatio string
	limiter     *rate.Limiter
}

// NewImageGenerator creates a Gemini client from cfg.
func NewImageGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*ImageGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newImageGenerator(logger, client.Models, cfg), nil
}

func newImageGenerator(logger *slog.Logger, models contentGenerator, cfg config.LLMConfig) *ImageGenerator {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &ImageGenerator{
		logger:      logger.With("component", "gemini_image_generator", "model", cfg.ModelName),
		models:      models,
		model:       cfg.ModelName,
		aspectRatio: cfg.AspectRatio,
		limiter:     rate.NewLimiter(limit, 1),
	}
}

// Generate sends the source image, any reference images and the instruction
// to the model and returns the first inline image of the answer.
func (g *ImageGenerator) Generate(ctx context.Context, req generation.Request) ([]byte, error) {
	if len(req.Source.Data) == 0 {
		return nil, fmt.Errorf("%w: source image is empty", generation.ErrInvalidRequest)
	}
	if req.Instruction == "" {
		return nil, fmt.Errorf("%w: instruction is empty", generation.ErrInvalidRequest)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: waiting for rate limiter: %v", generation.ErrTransientFailure, err)
	}

	parts := make([]*genai.Part, 0, len(req.References)+2)
	parts = append(parts, imagePart(req.Source))
	for _, ref := range req.References {
		parts = append(parts, imagePart(ref))
	}
	parts = append(parts, &genai.Part{Text: req.Instruction})

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	genConfig := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	}
	if g.aspectRatio != "" {
		genConfig.ImageConfig = &genai.ImageConfig{AspectRatio: g.aspectRatio}
	}

	start := time.Now()
	g.logger.InfoContext(ctx, "calling image model",
		"source_bytes", len(req.Source.Data),
		"reference_count", len(req.References))

	resp, err := g.models.GenerateContent(ctx, g.model, contents, genConfig)
	if err != nil {
		classified := classifyError(err)
		g.logger.ErrorContext(ctx, "image model call failed",
			"error", classified,
			"duration_ms", time.Since(start).Milliseconds())
		return nil, classified
	}

	image, err := extractImage(resp)
	if err != nil {
		g.logger.WarnContext(ctx, "image model returned no usable image",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	g.logger.InfoContext(ctx, "image model call succeeded",
		"image_bytes", len(image),
		"duration_ms", time.Since(start).Milliseconds())

	return image, nil
}

func imagePart(img generation.Image) *genai.Part {
	return &genai.Part{InlineData: &genai.Blob{Data: img.Data, MIMEType: img.MimeType}}
}

func extractImage(resp *genai.GenerateContentResponse) ([]byte, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", generation.ErrEmptyResult)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", generation.ErrEmptyResult)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety || candidate.FinishReason == genai.FinishReasonProhibitedContent {
		return nil, fmt.Errorf("%w: finish reason %s", generation.ErrContentBlocked, candidate.FinishReason)
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content", generation.ErrEmptyResult)
	}

	for _, part := range candidate.Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, nil
		}
	}

	return nil, fmt.Errorf("%w: no inline image in response", generation.ErrEmptyResult)
}
