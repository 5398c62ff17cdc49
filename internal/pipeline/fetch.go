package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/isplitter/internal/generation"
)

// maxReferenceBytes caps a single downloaded garment image.
const maxReferenceBytes = 20 << 20

// DownloadError reports a reference image that could not be fetched.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error

	invalid bool
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to download image from %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("failed to download image from %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Permanent reports whether retrying cannot help. Client errors other than
// 408 and 429 are permanent.
func (e *DownloadError) Permanent() bool {
	if e.invalid {
		return true
	}
	if e.StatusCode == 0 {
		return false
	}
	if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Fetcher downloads reference images, each under its own timeout.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewFetcher creates a Fetcher. A zero timeout means 30s.
func NewFetcher(client *http.Client, timeout time.Duration) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{client: client, timeout: timeout}
}

// Fetch downloads url. Any status other than 200 is an error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (generation.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return generation.Image{}, &DownloadError{URL: url, Err: err, invalid: true}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return generation.Image{}, &DownloadError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return generation.Image{}, &DownloadError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReferenceBytes+1))
	if err != nil {
		return generation.Image{}, &DownloadError{URL: url, Err: err}
	}
	if len(data) > maxReferenceBytes {
		return generation.Image{}, &DownloadError{URL: url, Err: errors.New("image too large"), invalid: true}
	}
	if len(data) == 0 {
		return generation.Image{}, &DownloadError{URL: url, Err: errors.New("empty body"), invalid: true}
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}

	return generation.Image{Data: data, MimeType: mime}, nil
}
