package filestore

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
)

// GCSStorage stores archive objects in a Google Cloud Storage bucket,
// optionally under a fixed prefix. Credentials come from the ambient
// environment (ADC or GOOGLE_APPLICATION_CREDENTIALS).
type GCSStorage struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStorage creates a bucket-backed Storage and verifies the bucket is
// reachable.
func NewGCSStorage(ctx context.Context, bucket, prefix string) (*GCSStorage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to access bucket %s: %w", bucket, err)
	}
	slog.Info("filestore.NewGCSStorage: bucket ready", "bucket", bucket, "prefix", prefix)
	return &GCSStorage{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCSStorage) objectName(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

func (s *GCSStorage) Save(ctx context.Context, path string, r io.Reader) error {
	w := s.client.Bucket(s.bucket).Object(s.objectName(path)).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	return nil
}

// Close releases the underlying GCS client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}
