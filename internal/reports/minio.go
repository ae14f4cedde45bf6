package reports

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig configures the benchmark report bucket.
type MinIOConfig struct {
	Endpoint        string `yaml:"endpoint" env:"PAGEFORGE_MINIO_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" env:"PAGEFORGE_MINIO_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"PAGEFORGE_MINIO_SECRET_ACCESS_KEY"`
	UseSSL          bool   `yaml:"use_ssl" env:"PAGEFORGE_MINIO_USE_SSL"`
	Bucket          string `yaml:"bucket" env:"PAGEFORGE_MINIO_BUCKET"`
	BasePath        string `yaml:"base_path" env:"PAGEFORGE_MINIO_BASE_PATH"`
	MaxRetries      int    `yaml:"max_retries" env:"PAGEFORGE_MINIO_MAX_RETRIES"`
}

// MinIO writes reports to an S3-compatible bucket.
type MinIO struct {
	client   *minio.Client
	bucket   string
	basePath string
}

// NewMinIO connects to MinIO, creating the bucket if needed. Connection
// attempts back off exponentially up to 30s.
func NewMinIO(ctx context.Context, cfg MinIOConfig) (*MinIO, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty MinIO endpoint")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("empty MinIO bucket")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}

	var lastErr error
	interval := time.Second
	for attempt := range cfg.MaxRetries {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("context canceled before MinIO init: %w", ctx.Err())
		}
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			lastErr = fmt.Errorf("create MinIO client: %w", err)
		} else if err := ensureBucket(ctx, client, cfg.Bucket); err != nil {
			lastErr = err
		} else {
			return &MinIO{client: client, bucket: cfg.Bucket, basePath: cfg.BasePath}, nil
		}

		if attempt < cfg.MaxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("context canceled while waiting to retry MinIO: %w", ctx.Err())
			case <-time.After(interval):
				interval = min(interval*2, 30*time.Second)
			}
		}
	}
	return nil, fmt.Errorf("init MinIO failed after %d attempts: %w", cfg.MaxRetries, lastErr)
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Archive uploads v as JSON and returns the object key.
func (m *MinIO) Archive(ctx context.Context, kind string, v any) (string, error) {
	data, err := encode(v)
	if err != nil {
		return "", err
	}
	key := ObjectKey(m.basePath, kind, time.Now())

	info, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	slog.Info("report archived",
		slog.String("bucket", m.bucket),
		slog.String("key", key),
		slog.Int64("size", info.Size),
	)
	return key, nil
}
