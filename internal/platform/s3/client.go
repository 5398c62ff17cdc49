// Package s3 implements storage.Client for Amazon S3 and S3-compatible
// servers such as MinIO.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/phrazzld/isplitter/internal/config"
	"github.com/phrazzld/isplitter/internal/storage"
)

// objectAPI is the subset of *s3.Client used here.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Client stores objects in a bucket and returns presigned GET URLs.
type Client struct {
	api      objectAPI
	presign  presigner
	expiry   time.Duration
	endpoint string
	logger   *slog.Logger
}

// presigner produces a GET URL for an object.
type presigner func(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)

// New builds a client from cfg. Static credentials are used when both keys
// are set; otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	presignClient := s3.NewPresignClient(api)

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "s3." + cfg.Region + ".amazonaws.com"
	}

	logger.Info("object storage client initialized",
		"endpoint", endpoint,
		"bucket", cfg.Bucket,
		"path_style", cfg.UsePathStyle)

	return newClient(api, func(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
		req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(expiry))
		if err != nil {
			return "", err
		}
		return req.URL, nil
	}, cfg.PresignExpiry, endpoint, logger), nil
}

func newClient(api objectAPI, presign presigner, expiry time.Duration, endpoint string, logger *slog.Logger) *Client {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &Client{
		api:      api,
		presign:  presign,
		expiry:   expiry,
		endpoint: endpoint,
		logger:   logger.With("component", "s3_storage"),
	}
}

// Put uploads data to bucket/key.
func (c *Client) Put(ctx context.Context, bucket, key, contentType string, data []byte) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %v", storage.ErrUploadFailed, bucket, key, err)
	}

	c.logger.DebugContext(ctx, "object uploaded",
		"bucket", bucket,
		"key", key,
		"size", len(data))
	return nil
}

// URL returns a presigned GET URL valid for the configured expiry.
func (c *Client) URL(ctx context.Context, bucket, key string) (string, error) {
	u, err := c.presign(ctx, bucket, key, c.expiry)
	if err != nil {
		return "", fmt.Errorf("%w: %s/%s: %v", storage.ErrURLFailed, bucket, key, err)
	}
	return u, nil
}

// BucketExists issues HeadBucket. A missing bucket is reported as false
// without an error.
func (c *Client) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return true, nil
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("head bucket %s: %w", bucket, err)
}

// Endpoint returns the configured endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}
