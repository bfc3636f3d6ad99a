package archive

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSObject implements ObjectStore on Google Cloud Storage.
type GCSObject struct {
	client *storage.Client
	bucket string
}

// NewGCSObject creates a GCS-backed object store using application default
// credentials.
func NewGCSObject(ctx context.Context, bucket string) (*GCSObject, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: create GCS client: %w", err)
	}
	return &GCSObject{client: client, bucket: bucket}, nil
}

// Put implements ObjectStore.
func (g *GCSObject) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("archive: gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("archive: gcs close %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (g *GCSObject) Close() error {
	return g.client.Close()
}
