package sync

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/afero"
)

// Sink is the durable byte store the mirror writes into. Writes carry
// overwrite semantics: putting the same name twice replaces the bytes, so
// repeating a download is always safe.
type Sink interface {
	// Put stores the reader's bytes under name. size is the expected byte
	// count, or -1 when unknown.
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// Remove deletes the bytes stored under name. Removing a missing name
	// is not an error.
	Remove(ctx context.Context, name string) error
}

// FileSink stores files under a root directory on an afero filesystem.
type FileSink struct {
	fs   afero.Fs
	root string
}

// NewFileSink creates a FileSink. The root directory is created on demand.
func NewFileSink(fs afero.Fs, root string) *FileSink {
	return &FileSink{fs: fs, root: root}
}

// Put writes to a temp file then renames into place, so a crashed write
// never leaves a torn file under the final name.
func (s *FileSink) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	dst := filepath.Join(s.root, name)
	if err := s.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("mkdir sink dir: %w", err)
	}

	tmpPath := dst + ".mirror-tmp"
	tmp, err := s.fs.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create tmp: %w", err)
	}

	written, copyErr := io.Copy(tmp, r)
	if closeErr := tmp.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil && size >= 0 && written != size {
		copyErr = fmt.Errorf("short write: got %d bytes, want %d", written, size)
	}
	if copyErr != nil {
		s.fs.Remove(tmpPath) //nolint:errcheck
		return copyErr
	}

	if err := s.fs.Rename(tmpPath, dst); err != nil {
		s.fs.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("rename tmp to dst: %w", err)
	}
	return nil
}

// Remove deletes the named file. Missing files are ignored.
func (s *FileSink) Remove(_ context.Context, name string) error {
	err := s.fs.Remove(filepath.Join(s.root, name))
	if err != nil && !isNotExist(err) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

func isNotExist(err error) bool {
	return err != nil && os.IsNotExist(err)
}

// ObjectSink stores files as objects in a bucket, under an optional prefix.
type ObjectSink struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectSink creates an ObjectSink writing to bucket/prefix.
func NewObjectSink(client *minio.Client, bucket, prefix string) *ObjectSink {
	return &ObjectSink{client: client, bucket: bucket, prefix: prefix}
}

func (s *ObjectSink) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Put uploads the object, replacing any existing bytes under the key.
func (s *ObjectSink) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	info, err := s.client.PutObject(ctx, s.bucket, s.key(name), r, size, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("put object %s: %w", name, err)
	}
	if size >= 0 && info.Size != size {
		return fmt.Errorf("object size mismatch for %s: got %d bytes, want %d", name, info.Size, size)
	}
	return nil
}

// Remove deletes the object. Deleting a missing key is a no-op upstream.
func (s *ObjectSink) Remove(ctx context.Context, name string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", name, err)
	}
	return nil
}
