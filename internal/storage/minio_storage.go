package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"sejf-plikow/internal/config"
)

// MinioStorage keeps blobs in an S3-compatible bucket under
// <prefix>/user_<id>/<name>. The key is derived from owner id and filename,
// so the metadata row never has to be consulted to find the bytes.
type MinioStorage struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioStorage builds the object-storage variant. Any failure here is a
// configuration error the caller should treat as fatal; there is no silent
// fallback to the local backend.
func NewMinioStorage(cfg config.StorageConfig) (*MinioStorage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required for the s3 backend")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("storage credentials are required for the s3 backend")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required for the s3 backend")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	ms := &MinioStorage{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return ms, nil
}

func (ms *MinioStorage) keyFor(ownerID int64, name string) string {
	return fmt.Sprintf("%s/%s/%s", ms.prefix, ownerSegment(ownerID), sanitizeName(name))
}

func (ms *MinioStorage) Save(ctx context.Context, ownerID int64, name string, data io.Reader, size int64) (string, error) {
	key := ms.keyFor(ownerID, name)
	_, err := ms.client.PutObject(ctx, ms.bucket, key, data, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (ms *MinioStorage) Open(ctx context.Context, ownerID int64, name string) (io.ReadCloser, error) {
	obj, err := ms.client.GetObject(ctx, ms.bucket, ms.keyFor(ownerID, name), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}

	// GetObject is lazy; Stat forces the first request so a missing key
	// surfaces here instead of on the first Read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return obj, nil
}

func (ms *MinioStorage) Delete(ctx context.Context, ownerID int64, name string) error {
	err := ms.client.RemoveObject(ctx, ms.bucket, ms.keyFor(ownerID, name), minio.RemoveObjectOptions{})
	if err != nil && isNoSuchKey(err) {
		return nil
	}
	return err
}

func (ms *MinioStorage) Exists(ctx context.Context, ownerID int64, name string) (bool, error) {
	_, err := ms.client.StatObject(ctx, ms.bucket, ms.keyFor(ownerID, name), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}
