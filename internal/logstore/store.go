package logstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// Store copies ingestion logs into a blob bucket.
type Store struct {
	bucket *blob.Bucket
	prefix string
	fs     afero.Fs
}

// Open opens the bucket at bucketURL (file://, mem://, s3://, gs://).
// Logs are stored under prefix, typically the run ID.
func Open(ctx context.Context, bucketURL, prefix string, fs afero.Fs) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open log bucket: %w", err)
	}
	return New(bucket, prefix, fs), nil
}

// New wraps an open bucket. A nil fs means the OS filesystem.
func New(bucket *blob.Bucket, prefix string, fs afero.Fs) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{bucket: bucket, prefix: prefix, fs: fs}
}

// Key returns the object key used for the log at logPath.
func (s *Store) Key(logPath string) string {
	return path.Join(s.prefix, filepath.Base(logPath))
}

// Upload copies the local file at logPath into the bucket and returns
// its key.
func (s *Store) Upload(ctx context.Context, logPath string) (string, error) {
	f, err := s.fs.Open(logPath)
	if err != nil {
		return "", fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	key := s.Key(logPath)
	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return "", fmt.Errorf("create object %s: %w", key, err)
	}

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close object %s: %w", key, err)
	}
	return key, nil
}

// Close closes the underlying bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}
