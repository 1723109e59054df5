// Package storage keeps payload blobs in MinIO or in memory.
package storage

import (
	"context"
	"io"
	"strings"

	"github.com/hyp3rd/ewrap"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"perfstore/internal/sentinel"
)

// MinioConfig holds the endpoint and bucket of the object store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// MinioStorage implements core.ObjectStorage on a MinIO bucket.
type MinioStorage struct {
	client     *minio.Client
	bucketName string
}

// NewMinioStorage connects and creates the bucket when missing.
func NewMinioStorage(ctx context.Context, cfg MinioConfig, log *zap.Logger) (*MinioStorage, error) {
	if log == nil {
		log = zap.NewNop()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, ewrap.Wrapf(err, "minio client for %s", cfg.Endpoint)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, ewrap.Wrapf(err, "check bucket %s", cfg.Bucket)
	}

	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, ewrap.Wrapf(err, "create bucket %s", cfg.Bucket)
		}

		log.Info("bucket created", zap.String("bucket", cfg.Bucket))
	}

	return &MinioStorage{client: client, bucketName: cfg.Bucket}, nil
}

// Upload stores data under key and returns "bucket/key".
func (s *MinioStorage) Upload(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error) {
	info, err := s.client.PutObject(ctx, s.bucketName, key, data, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", ewrap.Wrapf(err, "put object %s", key)
	}

	return s.bucketName + "/" + info.Key, nil
}

// Download reads the object at a path returned by Upload.
func (s *MinioStorage) Download(ctx context.Context, path string) ([]byte, error) {
	key, ok := strings.CutPrefix(path, s.bucketName+"/")
	if !ok {
		return nil, ewrap.Wrapf(sentinel.ErrNotFound, "object %s outside bucket %s", path, s.bucketName)
	}

	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ewrap.Wrapf(err, "get object %s", key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ewrap.Wrapf(sentinel.ErrNotFound, "object %s", key)
		}

		return nil, ewrap.Wrapf(err, "read object %s", key)
	}

	return data, nil
}
