package export

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ArchiveConfig configures the object-storage copy of every export.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Archiver stores a copy of each export.
type Archiver interface {
	Archive(ctx context.Context, ownerID string, res *Result) (string, error)
}

// MinioArchiver writes exports to a MinIO (or any S3-compatible) bucket.
type MinioArchiver struct {
	client *miniogo.Client
	bucket string
	log    *zap.Logger
}

// NewMinioArchiver returns nil, nil when no endpoint is configured.
func NewMinioArchiver(ctx context.Context, cfg ArchiveConfig, log *zap.Logger) (*MinioArchiver, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "idea-exports"
	}
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, miniogo.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	log.Info("export: minio archiver initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket))
	return &MinioArchiver{client: client, bucket: cfg.Bucket, log: log}, nil
}

func (a *MinioArchiver) Archive(ctx context.Context, ownerID string, res *Result) (string, error) {
	if a == nil {
		return "", ErrArchiveDisabled
	}
	key := objectKey(ownerID, res)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(res.Data), int64(len(res.Data)),
		miniogo.PutObjectOptions{
			ContentType: res.MimeType,
			UserMetadata: map[string]string{
				"owner":       ownerID,
				"idea-count":  strconv.Itoa(res.Count),
				"exported-at": res.CreatedAt.Format(time.RFC3339),
			},
		})
	if err != nil {
		return "", fmt.Errorf("upload export: %w", err)
	}
	a.log.Debug("export: archived", zap.String("object_key", key), zap.Int("size", len(res.Data)))
	return key, nil
}

// objectKey is exports/{owner}/{yyyy}/{mm}/{dd}/{timestamp}_{filename}.
func objectKey(ownerID string, res *Result) string {
	ts := res.CreatedAt.UTC()
	return fmt.Sprintf("exports/%s/%s/%s", ownerID, ts.Format("2006/01/02"), ts.Format("20060102150405")+"_"+res.Filename)
}
