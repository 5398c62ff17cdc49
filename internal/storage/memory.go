package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

type object struct {
	contentType string
	data        []byte
}

// MemoryStore keeps objects in process memory and serves them over HTTP.
// URLs point at BaseURL, so the store must be mounted there for them to resolve.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string

	// PutFn, when set, replaces Put; tests use it to inject failures.
	PutFn func(ctx context.Context, bucket, key, contentType string, data []byte) error
}

// NewMemoryStore creates an empty store whose URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]object),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func objectPath(bucket, key string) string {
	return bucket + "/" + key
}

// Put stores a copy of data.
func (s *MemoryStore) Put(ctx context.Context, bucket, key, contentType string, data []byte) error {
	if s.PutFn != nil {
		return s.PutFn(ctx, bucket, key, contentType, data)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if bucket == "" || key == "" {
		return fmt.Errorf("%w: bucket and key are required", ErrUploadFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectPath(bucket, key)] = object{
		contentType: contentType,
		data:        append([]byte(nil), data...),
	}
	return nil
}

// URL returns BaseURL/bucket/key for a stored object.
func (s *MemoryStore) URL(_ context.Context, bucket, key string) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[objectPath(bucket, key)]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %w: %s/%s", ErrURLFailed, ErrObjectNotFound, bucket, key)
	}
	return s.baseURL + "/" + url.PathEscape(bucket) + "/" + escapeKey(key), nil
}

// Get returns the stored bytes and content type.
func (s *MemoryStore) Get(bucket, key string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[objectPath(bucket, key)]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), obj.data...), obj.contentType, true
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// BucketExists reports whether any object was stored in bucket. An empty
// store reports every bucket as present.
func (s *MemoryStore) BucketExists(_ context.Context, bucket string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.objects) == 0 {
		return true, nil
	}
	for k := range s.objects {
		if strings.HasPrefix(k, bucket+"/") {
			return true, nil
		}
	}
	return false, nil
}

// Endpoint returns the base URL.
func (s *MemoryStore) Endpoint() string {
	return s.baseURL
}

// ServeHTTP serves GET /{bucket}/{key...} relative to where the store is mounted.
func (s *MemoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	bucket, key, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if !ok || bucket == "" || key == "" {
		http.NotFound(w, r)
		return
	}

	data, contentType, found := s.Get(bucket, key)
	if !found {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(data)
	}
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
