package generation

import "context"

// Image is an encoded image with its MIME type.
type Image struct {
	Data     []byte
	MimeType string
}

// Request is one call to the image model.
type Request struct {
	// Source is the photo the instruction refers to.
	Source Image

	// Instruction tells the model what to produce.
	Instruction string

	// References are extra images sent after Source, such as garments for try-on.
	References []Image
}

// Generator produces one image per request.
type Generator interface {
	// Generate returns the encoded bytes of the generated image.
	Generate(ctx context.Context, req Request) ([]byte, error)
}
