package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var _ BlobStore = (*LocalStore)(nil)

// LocalStore persists blobs as files in a single directory and resolves
// display URLs under a stable public prefix (the HTTP layer serves the
// directory statically). No signed URLs are involved.
type LocalStore struct {
	directory string
	publicURL string
}

// NewLocalStore creates the backing directory if needed.
func NewLocalStore(directory, publicURL string) (*LocalStore, error) {
	if strings.TrimSpace(directory) == "" {
		return nil, fmt.Errorf("local store directory is required")
	}
	if strings.TrimSpace(publicURL) == "" {
		return nil, fmt.Errorf("local store public URL is required")
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create local store directory %s: %w", directory, err)
	}
	return &LocalStore{
		directory: directory,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}, nil
}

// Directory exposes the backing directory for static file serving.
func (s *LocalStore) Directory() string {
	return s.directory
}

// Put writes the blob to disk. The content type is ignored; the file
// extension already carries it for static serving.
func (s *LocalStore) Put(ctx context.Context, key string, blob []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	return nil
}

// Remove deletes the files for the given keys. A missing file is not an
// error: the desired end state, key absent, already holds.
func (s *LocalStore) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, key := range keys {
		path, err := s.keyPath(key)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove blob %s: %w", key, err)
		}
	}
	return nil
}

// ResolveURL returns the stable public path for key.
func (s *LocalStore) ResolveURL(_ context.Context, key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return s.publicURL + "/" + key, nil
}

// Open returns the stored blob, primarily for integration tests and
// debugging; static serving reads the directory directly.
func (s *LocalStore) Open(key string) ([]byte, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return blob, nil
}

func (s *LocalStore) keyPath(key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.directory, key), nil
}

// validKey rejects keys that are empty or would escape the store directory.
func validKey(key string) bool {
	if key == "" {
		return false
	}
	if strings.ContainsAny(key, `/\`) {
		return false
	}
	return key != "." && key != ".."
}
