package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"github.com/phrazzld/isplitter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNormalize_PNGWithAlphaBecomesWhiteJPEG(t *testing.T) {
	t.Parallel()

	transparent := solid(120, 120, color.NRGBA{R: 0, G: 0, B: 0, A: 0})
	out, err := Normalize(encodePNG(t, transparent), "image_file", DefaultOptions())
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 120, img.Bounds().Dx())

	r, g, b, _ := img.At(60, 60).RGBA()
	assert.Greater(t, r>>8, uint32(245))
	assert.Greater(t, g>>8, uint32(245))
	assert.Greater(t, b>>8, uint32(245))
}

func TestNormalize_JPEG(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(200, 150, color.NRGBA{R: 200, A: 255}), nil))

	out, err := Normalize(buf.Bytes(), "human_image", DefaultOptions())
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 150, cfg.Height)
}

func TestNormalize_WEBP(t *testing.T) {
	t.Parallel()

	opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, 90)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, webp.Encode(&buf, solid(128, 128, color.NRGBA{G: 180, A: 255}), opts))
	require.True(t, isWEBP(buf.Bytes()))

	out, err := Normalize(buf.Bytes(), "image_file", DefaultOptions())
	require.NoError(t, err)
	_, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestNormalize_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		msg  string
	}{
		{"empty", nil, "image is empty"},
		{"not an image", []byte("definitely not an image"), "invalid image file"},
		{"too small", encodePNG(t, solid(99, 300, color.White)), "image too small: 99x300"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.data, "image_file", DefaultOptions())
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)

			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "image_file", ve.Field)
			assert.Contains(t, ve.Message, tt.msg)
		})
	}
}

func TestReencode(t *testing.T) {
	t.Parallel()

	out, err := Reencode(encodePNG(t, solid(10, 10, color.Black)), 95)
	require.NoError(t, err)
	_, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	_, err = Reencode([]byte("nope"), 95)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrValidation)
}
