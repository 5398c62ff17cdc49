package storage_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/isplitter/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := storage.NewMemoryStore(srv.URL + "/objects")
	mux.Handle("/objects/", http.StripPrefix("/objects", store))

	ctx := context.Background()
	payload := []byte{0xff, 0xd8, 0xff, 0xe0, 'j', 'p', 'g'}

	require.NoError(t, store.Put(ctx, "sop", "split/Top_abc.jpg", "image/jpeg", payload))

	url, err := store.URL(ctx, "sop", "split/Top_abc.jpg")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/objects/sop/split/Top_abc.jpg", url)

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, payload, body)
}

func TestMemoryStore_Errors(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore("http://localhost/objects")
	ctx := context.Background()

	_, err := store.URL(ctx, "sop", "missing.jpg")
	assert.ErrorIs(t, err, storage.ErrURLFailed)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	err = store.Put(ctx, "", "k", "image/jpeg", []byte("x"))
	assert.ErrorIs(t, err, storage.ErrUploadFailed)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = store.Put(cancelled, "sop", "k", "image/jpeg", []byte("x"))
	assert.ErrorIs(t, err, storage.ErrUploadFailed)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_PutCopiesData(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore("http://localhost/objects")
	data := []byte("original")
	require.NoError(t, store.Put(context.Background(), "sop", "k", "text/plain", data))

	data[0] = 'X'
	got, _, ok := store.Get("sop", "k")
	require.True(t, ok)
	assert.Equal(t, "original", string(got))
}

func TestMemoryStore_ServeHTTP(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore("http://localhost")
	require.NoError(t, store.Put(context.Background(), "sop", "a.jpg", "image/jpeg", []byte("abc")))

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/sop/a.jpg", http.StatusOK},
		{http.MethodHead, "/sop/a.jpg", http.StatusOK},
		{http.MethodGet, "/sop/b.jpg", http.StatusNotFound},
		{http.MethodGet, "/sop", http.StatusNotFound},
		{http.MethodPost, "/sop/a.jpg", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		store.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.status, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestMemoryStore_BucketExists(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore("http://localhost")
	ok, err := store.BucketExists(context.Background(), "sop")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Put(context.Background(), "sop", "a.jpg", "image/jpeg", []byte("abc")))
	ok, _ = store.BucketExists(context.Background(), "other")
	assert.False(t, ok)
}
