// Package storage persists photo rendition blobs and resolves the display
// URLs the feed serves. Two backends implement the same capability set: a
// local directory served at a stable public prefix, and a private minio
// bucket fronted by time-limited signed URLs.
package storage

import (
	"context"
	"errors"
)

// ContentTypeJPEG is the content type of every stored rendition; the pipeline
// re-encodes all originals to JPEG.
const ContentTypeJPEG = "image/jpeg"

var (
	// ErrInvalidKey indicates an asset key that is empty or would escape the
	// store's namespace.
	ErrInvalidKey = errors.New("storage: invalid asset key")
	// ErrBlobNotFound indicates a read of a key with no stored blob.
	ErrBlobNotFound = errors.New("storage: blob not found")
)

// BlobStore is the capability set the photo pipeline depends on. Pipeline
// code never branches on which backend is behind it.
type BlobStore interface {
	// Put persists a blob under key, overwriting any previous content.
	Put(ctx context.Context, key string, blob []byte, contentType string) error

	// Remove deletes the blobs for the given keys. Removal is idempotent:
	// a missing key is not an error, since the desired end state already
	// holds.
	Remove(ctx context.Context, keys ...string) error

	// ResolveURL returns the URL at which the blob for key can be fetched
	// by a display client.
	ResolveURL(ctx context.Context, key string) (string, error)
}
