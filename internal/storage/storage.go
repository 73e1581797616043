// Package storage writes uploaded media to an object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/pkg/config"
)

var (
	ErrUnknownBackend = errors.New("storage: unknown backend")
	ErrNoBucket       = errors.New("storage: bucket is required")
	ErrObjectNotFound = errors.New("storage: object not found")
)

// ObjectStore is the subset of an object storage service the media
// endpoints need.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Remove(ctx context.Context, keys []string) error
	Name() string
}

// New builds the object store selected by cfg.Backend.
func New(ctx context.Context, cfg *config.StorageConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "s3":
		return NewS3(ctx, cfg)
	case "gcs":
		return NewGCS(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func cleanSegment(s string) string {
	s = unsafeSegment.ReplaceAllString(strings.TrimSpace(s), "-")
	s = strings.Trim(s, "-.")
	return s
}

// BuildPath returns the object key for an upload:
// {clientID}/{folder}/{subfolder}/{uuid}-{filename}. Empty folders are skipped.
func BuildPath(clientID uuid.UUID, folder, subfolder, filename string) string {
	name := cleanSegment(path.Base(filename))
	if name == "" {
		name = "file"
	}
	parts := []string{clientID.String()}
	for _, seg := range []string{folder, subfolder} {
		if c := cleanSegment(seg); c != "" {
			parts = append(parts, c)
		}
	}
	parts = append(parts, uuid.New().String()+"-"+name)
	return strings.Join(parts, "/")
}
