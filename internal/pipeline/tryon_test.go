package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/isplitter/internal/domain"
	"github.com/phrazzld/isplitter/internal/generation"
	"github.com/phrazzld/isplitter/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryOn_Success(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ context.Context, _ string, req generation.Request) ([]byte, error) {
		if len(req.References) != 2 {
			return nil, errors.New("expected two garments")
		}
		for _, ref := range req.References {
			if ref.MimeType != "image/png" {
				return nil, errors.New("unexpected garment mime type " + ref.MimeType)
			}
		}
		return pngImage(t, 24, 24), nil
	})
	shirt := h.serveGarment(t, "/garments/shirt.png")
	jeans := h.serveGarment(t, "/garments/jeans.png")

	result, err := h.tryOnService(testTimeouts()).TryOn(context.Background(), TryOnInput{
		HumanImage:   pngImage(t, 120, 160),
		ClothingURLs: []string{shirt + ", " + jeans},
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, result.TaskID)
	assert.Positive(t, result.Elapsed)
	assert.NotEmpty(t, fetchURL(t, result.ResultURL))

	record, err := h.tracker.Get(context.Background(), result.TaskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TryOnStatusCompleted, record.Status)
	assert.Equal(t, result.ResultURL, record.ResultURL)
	assert.Equal(t, []string{shirt, jeans}, record.ClothingRefs)
	assert.True(t, strings.HasPrefix(record.HumanImageRef, "sha256:"))
	require.NotNil(t, record.CompletedAt)
}

func TestTryOn_RejectsBeforeAnySideEffect(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ context.Context, _ string, _ generation.Request) ([]byte, error) {
		t.Error("generator must not be called")
		return nil, nil
	})
	svc := h.tryOnService(testTimeouts())
	human := pngImage(t, 120, 120)

	tests := []struct {
		name  string
		input TryOnInput
		field string
		msg   string
	}{
		{
			name: "four clothing urls",
			input: TryOnInput{HumanImage: human, ClothingURLs: []string{
				"http://shop.test/1.png", "http://shop.test/2.png", "http://shop.test/3.png", "http://shop.test/4.png",
			}},
			field: "clothing_urls",
			msg:   "too many clothing items: 4, maximum is 3",
		},
		{
			name:  "four comma separated urls",
			input: TryOnInput{HumanImage: human, ClothingURLs: []string{"http://a.test/1,http://a.test/2", "http://a.test/3,http://a.test/4"}},
			field: "clothing_urls",
			msg:   "too many clothing items",
		},
		{
			name:  "no clothing urls",
			input: TryOnInput{HumanImage: human, ClothingURLs: []string{" , "}},
			field: "clothing_urls",
			msg:   "at least one",
		},
		{
			name:  "unsupported scheme",
			input: TryOnInput{HumanImage: human, ClothingURLs: []string{"ftp://shop.test/shirt.png"}},
			field: "clothing_urls",
			msg:   "invalid clothing URL",
		},
		{
			name:  "small human image",
			input: TryOnInput{HumanImage: pngImage(t, 50, 50), ClothingURLs: []string{"http://shop.test/shirt.png"}},
			field: "human_image",
			msg:   "image too small",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.TryOn(context.Background(), tt.input)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Contains(t, verr.Message, tt.msg)

			_, err = svc.Submit(context.Background(), tt.input)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	assert.Equal(t, 0, h.submitter.Total())
	assert.Equal(t, 0, h.store.Len())
	assert.Equal(t, 0, h.tracker.Created())
}

func TestTryOn_UploadFailureIsReportedAsUpload(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ context.Context, _ string, _ generation.Request) ([]byte, error) {
		return pngImage(t, 24, 24), nil
	})
	var puts atomic.Int32
	h.store.PutFn = func(context.Context, string, string, string, []byte) error {
		puts.Add(1)
		return errors.New("bucket unavailable")
	}
	garment := h.serveGarment(t, "/garments/dress.png")

	_, err := h.tryOnService(testTimeouts()).TryOn(context.Background(), TryOnInput{
		HumanImage:   pngImage(t, 120, 120),
		ClothingURLs: []string{garment},
	})
	require.Error(t, err)

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageUpload, serr.Stage)
	assert.Equal(t, 3, serr.Attempts)
	assert.ErrorIs(t, err, ErrTotalFailure)

	assert.Equal(t, 1, h.gen.Calls(TryOnUnitID))
	assert.Equal(t, int32(3), puts.Load())

	logs := h.logs.String()
	assert.Contains(t, logs, "upload failed for unit, generated image dropped")
	assert.Contains(t, logs, `"dropped_bytes"`)

	record := onlyRecord(t, h)
	assert.Equal(t, domain.TryOnStatusFailed, record.Status)
	assert.Contains(t, record.ErrorMessage, "upload stage failed")
	assert.Empty(t, record.ResultURL)
}

func TestTryOn_GenerationFailureIsReportedAsGenerate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ context.Context, _ string, _ generation.Request) ([]byte, error) {
		return nil, generation.ErrEmptyResult
	})
	garment := h.serveGarment(t, "/garments/coat.png")

	_, err := h.tryOnService(testTimeouts()).TryOn(context.Background(), TryOnInput{
		HumanImage:   pngImage(t, 120, 120),
		ClothingURLs: []string{garment},
	})

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageGenerate, serr.Stage)
	assert.Equal(t, 0, h.submitter.Count(KindUpload, TryOnUnitID))
	assert.Equal(t, domain.TryOnStatusFailed, onlyRecord(t, h).Status)
}

func TestTryOn_MissingGarmentFailsWithoutRetry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ context.Context, _ string, _ generation.Request) ([]byte, error) {
		return pngImage(t, 24, 24), nil
	})

	_, err := h.tryOnService(testTimeouts()).TryOn(context.Background(), TryOnInput{
		HumanImage:   pngImage(t, 120, 120),
		ClothingURLs: []string{h.server.URL + "/garments/missing.png"},
	})

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageGenerate, serr.Stage)
	assert.Equal(t, 1, serr.Attempts)
	assert.Contains(t, serr.Message, "status 404")
	assert.Equal(t, 0, h.gen.Calls(TryOnUnitID))
}

func TestTryOn_Async(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	h := newHarness(t, func(_ context.Context, _ string, _ generation.Request) ([]byte, error) {
		<-release
		return pngImage(t, 24, 24), nil
	})
	t.Cleanup(unblock)
	garment := h.serveGarment(t, "/garments/hat.png")
	svc := h.tryOnService(testTimeouts())

	ctx, cancel := context.WithCancel(context.Background())
	record, err := svc.Submit(ctx, TryOnInput{
		HumanImage:   pngImage(t, 120, 120),
		ClothingURLs: []string{garment},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TryOnStatusPending, record.Status)

	// The background run outlives the submitting request.
	cancel()

	require.Eventually(t, func() bool {
		got, err := svc.Status(context.Background(), record.ID)
		return err == nil && got.Status == domain.TryOnStatusProcessing
	}, 2*time.Second, 5*time.Millisecond)

	unblock()
	svc.Wait()

	got, err := svc.Status(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TryOnStatusCompleted, got.Status)
	assert.NotEmpty(t, got.ResultURL)

	_, err = svc.Status(context.Background(), uuid.New())
	assert.ErrorIs(t, err, status.ErrTaskNotFound)
}

func TestSplitClothingURLs(t *testing.T) {
	t.Parallel()

	got := SplitClothingURLs([]string{"http://a/1, http://a/2", "", " http://a/3 ", ",,"})
	assert.Equal(t, []string{"http://a/1", "http://a/2", "http://a/3"}, got)
	assert.Nil(t, SplitClothingURLs(nil))
}

// onlyRecord returns the single record created through the harness tracker.
func onlyRecord(t *testing.T, h *harness) *domain.TryOnTask {
	t.Helper()
	require.Equal(t, 1, h.tracker.Created())
	items := h.tracker.Snapshot()
	require.Len(t, items, 1)
	return items[0]
}
