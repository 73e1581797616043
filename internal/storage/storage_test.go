package storage_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/storage"
	"github.com/hugh/agencydesk/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPath(t *testing.T) {
	clientID := uuid.New()

	tests := []struct {
		name      string
		folder    string
		subfolder string
		filename  string
		prefix    string
		suffix    string
	}{
		{"full path", "brand", "logos", "logo.png", clientID.String() + "/brand/logos/", "-logo.png"},
		{"no subfolder", "social", "", "post.jpg", clientID.String() + "/social/", "-post.jpg"},
		{"traversal stripped", "../secret", "a b", "../../etc/passwd", clientID.String() + "/secret/a-b/", "-passwd"},
		{"empty filename", "", "", "", clientID.String() + "/", "-file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := storage.BuildPath(clientID, tt.folder, tt.subfolder, tt.filename)
			assert.True(t, strings.HasPrefix(p, tt.prefix), p)
			assert.True(t, strings.HasSuffix(p, tt.suffix), p)
			assert.NotContains(t, p, "..")

			last := p[strings.LastIndex(p, "/")+1:]
			_, err := uuid.Parse(last[:36])
			assert.NoError(t, err)
		})
	}
}

func TestBuildPath_Unique(t *testing.T) {
	id := uuid.New()
	assert.NotEqual(t, storage.BuildPath(id, "a", "b", "x.png"), storage.BuildPath(id, "a", "b", "x.png"))
}

func TestMemory_UploadRemove(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()

	require.NoError(t, m.Upload(ctx, "c/a.txt", "text/plain", strings.NewReader("hello"), 5))
	require.NoError(t, m.Upload(ctx, "c/b.txt", "text/plain", strings.NewReader("world"), 5))
	assert.Equal(t, 2, m.Len())

	data, ct, err := m.Get("c/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "text/plain", ct)

	require.NoError(t, m.Remove(ctx, []string{"c/a.txt", "missing"}))
	_, _, err = m.Get("c/a.txt")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	assert.Equal(t, 1, m.Len())
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := storage.New(ctx, &config.StorageConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Name())

	_, err = storage.New(ctx, &config.StorageConfig{Backend: "ftp"})
	assert.ErrorIs(t, err, storage.ErrUnknownBackend)

	_, err = storage.New(ctx, &config.StorageConfig{Backend: "s3"})
	assert.ErrorIs(t, err, storage.ErrNoBucket)

	_, err = storage.New(ctx, &config.StorageConfig{Backend: "gcs"})
	assert.ErrorIs(t, err, storage.ErrNoBucket)
}

func TestNewS3_StaticCredentials(t *testing.T) {
	s, err := storage.NewS3(context.Background(), &config.StorageConfig{
		Backend:           "s3",
		Bucket:            "media",
		S3Region:          "us-east-1",
		S3Endpoint:        "http://localhost:9000",
		S3AccessKeyID:     "key",
		S3SecretAccessKey: "secret",
		S3RoleARN:         "arn:aws:iam::123456789012:role/media",
		S3ExternalID:      "ext",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3", s.Name())
}
