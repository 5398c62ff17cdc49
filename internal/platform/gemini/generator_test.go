package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/phrazzld/isplitter/internal/config"
	"github.com/phrazzld/isplitter/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	resp *genai.GenerateContentResponse
	err  error

	gotModel    string
	gotContents []*genai.Content
	gotConfig   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotContents = contents
	f.gotConfig = cfg
	return f.resp, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.LLMConfig {
	return config.LLMConfig{
		GeminiAPIKey: "key",
		ModelName:    "gemini-2.5-flash-image",
		AspectRatio:  "1:1",
	}
}

func imageResponse(data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here you go"},
				{InlineData: &genai.Blob{Data: data, MIMEType: "image/png"}},
			}},
		}},
	}
}

func validRequest() generation.Request {
	return generation.Request{
		Source:      generation.Image{Data: []byte("jpeg"), MimeType: "image/jpeg"},
		Instruction: "extract the top",
		References: []generation.Image{
			{Data: []byte("ref1"), MimeType: "image/png"},
		},
	}
}

func TestNewImageGenerator_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewImageGenerator(context.Background(), nil, testConfig())
	assert.Error(t, err)

	cfg := testConfig()
	cfg.GeminiAPIKey = ""
	_, err = NewImageGenerator(context.Background(), testLogger(), cfg)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	cfg = testConfig()
	cfg.ModelName = ""
	_, err = NewImageGenerator(context.Background(), testLogger(), cfg)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestGenerate_Success(t *testing.T) {
	t.Parallel()

	models := &fakeModels{resp: imageResponse([]byte("png-bytes"))}
	g := newImageGenerator(testLogger(), models, testConfig())

	out, err := g.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), out)

	assert.Equal(t, "gemini-2.5-flash-image", models.gotModel)
	require.Len(t, models.gotContents, 1)
	parts := models.gotContents[0].Parts
	require.Len(t, parts, 3)
	assert.Equal(t, []byte("jpeg"), parts[0].InlineData.Data)
	assert.Equal(t, []byte("ref1"), parts[1].InlineData.Data)
	assert.Equal(t, "extract the top", parts[2].Text)

	require.NotNil(t, models.gotConfig)
	assert.Equal(t, []string{"IMAGE"}, models.gotConfig.ResponseModalities)
	require.NotNil(t, models.gotConfig.ImageConfig)
	assert.Equal(t, "1:1", models.gotConfig.ImageConfig.AspectRatio)
}

func TestGenerate_InvalidRequest(t *testing.T) {
	t.Parallel()

	g := newImageGenerator(testLogger(), &fakeModels{}, testConfig())

	req := validRequest()
	req.Source.Data = nil
	_, err := g.Generate(context.Background(), req)
	assert.ErrorIs(t, err, generation.ErrInvalidRequest)

	req = validRequest()
	req.Instruction = ""
	_, err = g.Generate(context.Background(), req)
	assert.ErrorIs(t, err, generation.ErrInvalidRequest)
}

func TestGenerate_ResponseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want error
	}{
		{"nil response", nil, generation.ErrEmptyResult},
		{"no candidates", &genai.GenerateContentResponse{}, generation.ErrEmptyResult},
		{
			"text only",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{Text: "I cannot do that"}}},
			}}},
			generation.ErrEmptyResult,
		},
		{
			"safety stop",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				FinishReason: genai.FinishReasonSafety,
			}}},
			generation.ErrContentBlocked,
		},
		{
			"blocked prompt",
			&genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: "SAFETY"},
			},
			generation.ErrContentBlocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newImageGenerator(testLogger(), &fakeModels{resp: tt.resp}, testConfig())
			_, err := g.Generate(context.Background(), validRequest())
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, generation.IsRetryable(err))
		})
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		want      error
		retryable bool
	}{
		{"quota", genai.APIError{Code: 429, Message: "quota"}, generation.ErrQuotaExceeded, true},
		{"server", genai.APIError{Code: 503, Message: "unavailable"}, generation.ErrTransientFailure, true},
		{"auth", genai.APIError{Code: 403, Message: "denied"}, generation.ErrInvalidConfig, false},
		{"bad request", genai.APIError{Code: 400, Message: "bad"}, generation.ErrInvalidRequest, false},
		{"network", errors.New("dial tcp: connection refused"), generation.ErrTransientFailure, true},
		{"deadline", context.DeadlineExceeded, generation.ErrTransientFailure, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.Equal(t, tt.retryable, generation.IsRetryable(got))
		})
	}
}

func TestGenerate_APIErrorIsClassified(t *testing.T) {
	t.Parallel()

	g := newImageGenerator(testLogger(), &fakeModels{err: genai.APIError{Code: 429}}, testConfig())
	_, err := g.Generate(context.Background(), validRequest())
	assert.ErrorIs(t, err, generation.ErrQuotaExceeded)
}

func TestGenerate_RateLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RequestsPerMinute = 1
	models := &fakeModels{resp: imageResponse([]byte("x"))}
	g := newImageGenerator(testLogger(), models, cfg)

	_, err := g.Generate(context.Background(), validRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx, validRequest())
	assert.ErrorIs(t, err, generation.ErrTransientFailure)
}
