package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/formwatch/formwatch/pkg/cache"
)

// BlobStoreConfig holds the S3 connection settings. Endpoint is set for
// S3-compatible providers such as MinIO or LocalStack.
type BlobStoreConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	SignedTTL time.Duration
}

// BlobStore keeps checklist evidence files and raw document snapshots in
// an S3 bucket. Signed download URLs are memoized until shortly before
// they expire so repeated reads do not re-presign.
type BlobStore struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	signedTTL time.Duration
	urls      *cache.Cache
	logger    *slog.Logger
}

// NewBlobStore creates an S3-backed blob store.
func NewBlobStore(ctx context.Context, cfg BlobStoreConfig, logger *slog.Logger) (*BlobStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SignedTTL <= 0 {
		cfg.SignedTTL = 15 * time.Minute
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &BlobStore{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		signedTTL: cfg.SignedTTL,
		urls:      cache.New(),
		logger:    logger,
	}, nil
}

// Upload stores data under a fresh file ID and returns the ID.
func (b *BlobStore) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	fileID := uuid.New().String()
	if err := b.Put(ctx, "files/"+fileID, data, contentType); err != nil {
		return "", err
	}
	return fileID, nil
}

// Put uploads a blob under key.
func (b *BlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put failed for %s: %w", key, err)
	}
	b.logger.Debug("blob stored",
		slog.String("key", key),
		slog.Int("bytes", len(data)),
	)
	return nil
}

// Get downloads the blob stored under key.
func (b *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get failed for %s: %w", key, err)
	}
	defer func() { _ = result.Body.Close() }()

	return io.ReadAll(result.Body)
}

// Exists checks whether a blob is present without downloading it.
func (b *BlobStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

// SignedURL returns a presigned download URL for key. URLs are cached for
// half their lifetime so a burst of reads presigns once.
func (b *BlobStore) SignedURL(ctx context.Context, key string) (string, error) {
	if v, ok := b.urls.Get("signed:" + key); ok {
		return v.(string), nil
	}

	request, err := b.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(b.signedTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign get object: %w", err)
	}

	b.urls.Set("signed:"+key, request.URL, b.signedTTL/2)
	return request.URL, nil
}
