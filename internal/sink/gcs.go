package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// GCS mirrors payloads into a Google Cloud Storage bucket. It is used as a
// secondary target behind Tee; Exists always reports false so skip-existing
// decisions stay local.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates a GCS-backed sink.
func NewGCS(client *storage.Client, bucket, prefix string) (*GCS, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCS{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Put uploads data to the bucket and returns a gs:// URI.
func (s *GCS) Put(ctx context.Context, relPath string, data []byte) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", fmt.Errorf("payload path is required")
	}
	object := relPath
	if s.prefix != "" {
		object = path.Join(s.prefix, relPath)
	}
	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

// Exists reports false: the mirror never drives skip decisions.
func (s *GCS) Exists(string) bool {
	return false
}
