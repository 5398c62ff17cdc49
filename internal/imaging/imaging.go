// Package imaging validates uploaded photos and normalizes them to the JPEG
// form sent to the image model.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png" // registers the PNG decoder

	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/webp"
	"github.com/phrazzld/isplitter/internal/domain"
)

// ContentType is the MIME type of normalized images.
const ContentType = "image/jpeg"

// Options controls Normalize.
type Options struct {
	// MinDimension is the smallest accepted width and height in pixels.
	MinDimension int
	// Quality is the JPEG quality of the output, 1-100.
	Quality int
}

// DefaultOptions returns the service defaults: 100px minimum, quality 95.
func DefaultOptions() Options {
	return Options{MinDimension: 100, Quality: 95}
}

// Normalize decodes a JPEG, PNG or WebP image, flattens any transparency
// onto white and re-encodes it as JPEG. Bad input yields a
// *domain.ValidationError for field.
func Normalize(data []byte, field string, opts Options) ([]byte, error) {
	if len(data) == 0 {
		return nil, domain.NewValidationError(field, "image is empty")
	}

	img, err := decode(data)
	if err != nil {
		return nil, domain.NewValidationError(field, fmt.Sprintf("invalid image file: %v", err))
	}

	b := img.Bounds()
	if b.Dx() < opts.MinDimension || b.Dy() < opts.MinDimension {
		return nil, domain.NewValidationError(field, fmt.Sprintf(
			"image too small: %dx%d, minimum is %dx%d",
			b.Dx(), b.Dy(), opts.MinDimension, opts.MinDimension))
	}

	return encodeJPEG(img, opts.Quality)
}

// Reencode converts model output of any supported format to JPEG at quality.
// It applies no size checks.
func Reencode(data []byte, quality int) ([]byte, error) {
	img, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return encodeJPEG(img, quality)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, flatten(img), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

func decode(data []byte) (image.Image, error) {
	if isWEBP(data) {
		return webp.Decode(bytes.NewReader(data), &decoder.Options{})
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func isWEBP(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	return string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

// flatten draws img over an opaque white canvas.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}
