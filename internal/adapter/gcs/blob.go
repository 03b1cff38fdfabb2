package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/escalopa/quizzr-dataflow/internal/logger"
)

const putTimeout = 2 * time.Minute

// BlobStore stores raw audio blobs in a Google Cloud Storage bucket
type BlobStore struct {
	client *storage.Client
	bucket string
	log    *logger.Logger
}

// New creates a blob store for the given bucket. An empty credentialsFile
// falls back to application default credentials.
func New(ctx context.Context, bucket, credentialsFile string, log *logger.Logger) (*BlobStore, error) {
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &BlobStore{
		client: client,
		bucket: bucket,
		log:    log.With("adapter", "gcs"),
	}, nil
}

// Put stores the given bytes under path and returns the object locator
func (b *BlobStore) Put(ctx context.Context, data []byte, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, putTimeout)
	defer cancel()

	writer := b.client.Bucket(b.bucket).Object(path).NewWriter(ctx)
	writer.ContentType = "audio/wav"

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close blob writer: %w", err)
	}

	b.log.Debug("blob stored", "path", path, "bytes", len(data))
	return fmt.Sprintf("gs://%s/%s", b.bucket, path), nil
}

// Close releases the underlying client
func (b *BlobStore) Close() error {
	return b.client.Close()
}
