package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

var ErrBlobStorageDisabled = errors.New("blob storage is not configured")

// BlobLinker turns stored file references into links a browser can open. A reference is either an
// absolute URL, returned unchanged, or an object key in the platform bucket.
type BlobLinker interface {
	Resolve(ctx context.Context, ref string) (string, error)
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

type minioLinker struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	logger zerolog.Logger

	ensureMu      sync.Mutex
	bucketEnsured bool
}

func NewMinIOLinker(endpoint, accessKey, secretKey, bucket string, useSSL bool, expiry time.Duration, logger zerolog.Logger) (BlobLinker, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	logger.Info().
		Str("endpoint", endpoint).
		Str("bucket", bucket).
		Bool("ssl", useSSL).
		Msg("MinIO client configured")

	return &minioLinker{
		client: client,
		bucket: bucket,
		expiry: expiry,
		logger: logger,
	}, nil
}

func (l *minioLinker) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" || IsAbsoluteURL(ref) {
		return ref, nil
	}

	link, err := l.client.PresignedGetObject(ctx, l.bucket, strings.TrimPrefix(ref, "/"), l.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", ref, err)
	}
	return link.String(), nil
}

func (l *minioLinker) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if err := l.ensureBucket(ctx); err != nil {
		return "", err
	}

	info, err := l.client.PutObject(ctx, l.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	l.logger.Info().
		Str("bucket", l.bucket).
		Str("key", info.Key).
		Int64("size", info.Size).
		Msg("Object uploaded")

	return info.Key, nil
}

func (l *minioLinker) ensureBucket(ctx context.Context) error {
	l.ensureMu.Lock()
	defer l.ensureMu.Unlock()
	if l.bucketEnsured {
		return nil
	}

	exists, err := l.client.BucketExists(ctx, l.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := l.client.MakeBucket(ctx, l.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		l.logger.Info().Str("bucket", l.bucket).Msg("Created new bucket")
	}

	l.bucketEnsured = true
	return nil
}

type directLinker struct{}

// NewDirectLinker resolves every reference to itself; uploads are refused.
func NewDirectLinker() BlobLinker {
	return directLinker{}
}

func (directLinker) Resolve(ctx context.Context, ref string) (string, error) {
	return ref, nil
}

func (directLinker) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	return "", ErrBlobStorageDisabled
}

func IsAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
