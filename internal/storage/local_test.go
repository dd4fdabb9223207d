package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), "/uploads/")
	if err != nil {
		t.Fatalf("failed to create local store: %v", err)
	}
	return store
}

func TestLocalStorePutThenOpenRoundTrips(t *testing.T) {
	store := newTestLocalStore(t)
	blob := []byte("jpeg bytes")

	if err := store.Put(context.Background(), "a-grid.jpg", blob, ContentTypeJPEG); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	stored, err := store.Open("a-grid.jpg")
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	if string(stored) != "jpeg bytes" {
		t.Fatalf("unexpected stored content %q", stored)
	}
}

func TestLocalStoreResolveURLUsesPublicPrefix(t *testing.T) {
	store := newTestLocalStore(t)

	url, err := store.ResolveURL(context.Background(), "a-feed.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "/uploads/a-feed.jpg" {
		t.Fatalf("unexpected url %s", url)
	}
}

func TestLocalStoreRemoveIsIdempotent(t *testing.T) {
	store := newTestLocalStore(t)
	if err := store.Put(context.Background(), "a-grid.jpg", []byte("x"), ContentTypeJPEG); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	if err := store.Remove(context.Background(), "a-grid.jpg"); err != nil {
		t.Fatalf("unexpected error on first removal: %v", err)
	}
	if err := store.Remove(context.Background(), "a-grid.jpg"); err != nil {
		t.Fatalf("expected second removal of the same key to succeed, got %v", err)
	}

	if _, err := store.Open("a-grid.jpg"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("expected blob to be gone, got %v", err)
	}
}

func TestLocalStoreRejectsTraversalKeys(t *testing.T) {
	store := newTestLocalStore(t)

	tests := []string{"", "..", "../escape.jpg", "nested/key.jpg", `back\slash.jpg`}
	for _, key := range tests {
		if err := store.Put(context.Background(), key, []byte("x"), ContentTypeJPEG); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected invalid key error for %q, got %v", key, err)
		}
	}
}

func TestLocalStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "uploads")

	if _, err := NewLocalStore(dir, "/uploads"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("expected directory to exist: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("expected %s to be a directory", dir)
	}
}
