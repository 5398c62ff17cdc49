package s3

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/phrazzld/isplitter/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	putErr  error
	headErr error

	gotPut []byte
	gotIn  *s3.PutObjectInput
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.gotPut = body
	f.gotIn = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedPresigner(u string, err error) presigner {
	return func(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
		if err != nil {
			return "", err
		}
		return u + "/" + bucket + "/" + key, nil
	}
}

func TestClient_Put(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	c := newClient(api, fixedPresigner("http://minio:9000", nil), time.Hour, "http://minio:9000", discardLogger())

	require.NoError(t, c.Put(context.Background(), "sop", "split/Top_1.jpg", "image/jpeg", []byte("jpeg")))
	assert.Equal(t, []byte("jpeg"), api.gotPut)
	assert.Equal(t, "sop", aws.ToString(api.gotIn.Bucket))
	assert.Equal(t, "split/Top_1.jpg", aws.ToString(api.gotIn.Key))
	assert.Equal(t, "image/jpeg", aws.ToString(api.gotIn.ContentType))
	assert.Equal(t, int64(4), aws.ToInt64(api.gotIn.ContentLength))

	api.putErr = errors.New("connection reset")
	err := c.Put(context.Background(), "sop", "k", "image/jpeg", []byte("x"))
	assert.ErrorIs(t, err, storage.ErrUploadFailed)
}

func TestClient_URL(t *testing.T) {
	t.Parallel()

	c := newClient(&fakeAPI{}, fixedPresigner("http://minio:9000", nil), 0, "http://minio:9000", discardLogger())
	assert.Equal(t, time.Hour, c.expiry)

	u, err := c.URL(context.Background(), "sop", "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/sop/a.jpg", u)

	c = newClient(&fakeAPI{}, fixedPresigner("", errors.New("no credentials")), time.Minute, "", discardLogger())
	_, err = c.URL(context.Background(), "sop", "a.jpg")
	assert.ErrorIs(t, err, storage.ErrURLFailed)
}

func TestClient_BucketExists(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headErr error
		want    bool
		wantErr bool
	}{
		{"present", nil, true, false},
		{"missing", &types.NotFound{}, false, false},
		{"unreachable", errors.New("dial tcp: refused"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(&fakeAPI{headErr: tt.headErr}, fixedPresigner("", nil), time.Hour, "http://minio:9000", discardLogger())
			got, err := c.BucketExists(context.Background(), "sop")
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, "http://minio:9000", c.Endpoint())
		})
	}
}
