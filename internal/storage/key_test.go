package storage

import (
	"strings"
	"testing"
	"time"
)

func TestDeriveBaseNameIsCollisionResistantUnderLoad(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		name := DeriveBaseName("holiday photo.jpg", now)
		if _, exists := seen[name]; exists {
			t.Fatalf("duplicate base name after %d rapid-succession calls: %s", i, name)
		}
		seen[name] = struct{}{}
	}
}

func TestDeriveBaseNameEmbedsTimestampAndSanitizedName(t *testing.T) {
	now := time.UnixMilli(1757000000000)

	name := DeriveBaseName("Dinner @ Lucca's!.jpeg", now)

	if !strings.HasPrefix(name, "1757000000000-") {
		t.Fatalf("expected millisecond timestamp prefix, got %s", name)
	}
	if !strings.HasSuffix(name, "-Dinner-Lucca-s-jpeg") {
		t.Fatalf("expected sanitized file name suffix, got %s", name)
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "already clean", input: "IMG_2041-edit", expected: "IMG_2041-edit"},
		{name: "spaces and punctuation collapse", input: "my   photo!!.jpg", expected: "my-photo-jpg"},
		{name: "unicode collapses", input: "été_à_paris.png", expected: "-t-_-_paris-png"},
		{name: "empty falls back", input: "", expected: "image"},
		{name: "only punctuation falls back", input: "???...", expected: "image"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeFileName(tc.input); got != tc.expected {
				t.Fatalf("sanitizeFileName(%q) = %q, expected %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestKeyPairAppendsRenditionSuffixes(t *testing.T) {
	gridKey, feedKey := KeyPair("1757000000000-ab12cd34-sunset")

	if gridKey != "1757000000000-ab12cd34-sunset-grid.jpg" {
		t.Fatalf("unexpected grid key %s", gridKey)
	}
	if feedKey != "1757000000000-ab12cd34-sunset-feed.jpg" {
		t.Fatalf("unexpected feed key %s", feedKey)
	}
}
