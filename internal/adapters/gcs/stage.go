// Package gcs implements the stage adapter on Google Cloud Storage. Staged
// artifacts live under the record's stage path inside one bucket; all
// operations are prefix-scoped.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Stage counts, checks and deletes staged objects, and hands out writers
// for the transfer adapter.
type Stage struct {
	client *storage.Client
	bucket string
	log    *slog.Logger
}

// New connects to GCS. Credentials come from the environment unless
// overridden via opts.
func New(ctx context.Context, bucket string, log *slog.Logger, opts ...option.ClientOption) (*Stage, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: failed to create client: %w", err)
	}
	return &Stage{client: client, bucket: bucket, log: log}, nil
}

// Close releases the underlying client.
func (s *Stage) Close() error {
	return s.client.Close()
}

// Count returns the number of objects under the stage path.
func (s *Stage) Count(ctx context.Context, stagePath string) (int64, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: stagePath})

	var count int64
	for {
		_, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("gcs count: %w", err)
		}
		count++
	}
	return count, nil
}

// CheckExists reports whether any object exists under the stage path.
func (s *Stage) CheckExists(ctx context.Context, stagePath string) (bool, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: stagePath})

	_, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("gcs exists: %w", err)
	}
	return true, nil
}

// Delete removes every object under the stage path. An empty prefix is
// refused: it would wipe the bucket.
func (s *Stage) Delete(ctx context.Context, stagePath string) error {
	if stagePath == "" {
		return fmt.Errorf("gcs delete: refusing empty stage path")
	}

	bucket := s.client.Bucket(s.bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: stagePath})

	deleted := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("gcs delete: %w", err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil {
			return fmt.Errorf("gcs delete %s: %w", attrs.Name, err)
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Info("deleted staged objects", "stage_path", stagePath, "objects", deleted)
	}
	return nil
}

// NewWriter opens a writer for one staged object. The caller must Close it
// to commit the upload.
func (s *Stage) NewWriter(ctx context.Context, objectPath string) io.WriteCloser {
	return s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
}
