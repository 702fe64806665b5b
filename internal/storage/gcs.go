package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores files as objects in one bucket
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS uses credentialsFile when set, Application Default Credentials otherwise
func NewGCS(ctx context.Context, bucket, credentialsFile string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("missing gcs bucket")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

// Upload returns a gs:// URI
func (g *GCS) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	name = objectName(name)
	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, name), nil
}

func (g *GCS) Delete(ctx context.Context, path string) error {
	name, ok := strings.CutPrefix(path, fmt.Sprintf("gs://%s/", g.bucket))
	if !ok {
		return fmt.Errorf("path %q is not in bucket %s", path, g.bucket)
	}
	if err := g.client.Bucket(g.bucket).Object(name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
