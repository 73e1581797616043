package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	appconfig "github.com/hugh/agencydesk/pkg/config"
)

type GCS struct {
	client *storage.Client
	bucket string
}

func NewGCS(ctx context.Context, cfg *appconfig.StorageConfig) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}

	var opts []option.ClientOption
	if cfg.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	return &GCS{client: client, bucket: cfg.Bucket}, nil
}

func (g *GCS) Name() string { return "gcs" }

func (g *GCS) Upload(ctx context.Context, key, contentType string, body io.Reader, _ int64) error {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing %s: %w", key, err)
	}
	return nil
}

// Remove deletes keys; objects already gone are not an error.
func (g *GCS) Remove(ctx context.Context, keys []string) error {
	bucket := g.client.Bucket(g.bucket)
	var errs []error
	for _, k := range keys {
		err := bucket.Object(k).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			errs = append(errs, fmt.Errorf("deleting %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

func (g *GCS) Close() error {
	return g.client.Close()
}
