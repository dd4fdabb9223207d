package exif

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"testing"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode fixture png: %v", err)
	}
	return buf.Bytes()
}

func TestExtractReturnsEmptyMetadataWithoutExif(t *testing.T) {
	reader := bytes.NewReader(pngBytes(t))

	meta := Extract(reader)

	if meta.TakenAt != nil {
		t.Fatalf("expected no capture timestamp, got %v", meta.TakenAt)
	}
	if meta.Coordinates != nil {
		t.Fatalf("expected no coordinates, got %+v", meta.Coordinates)
	}
}

func TestExtractSwallowsCorruptInput(t *testing.T) {
	reader := bytes.NewReader([]byte("not an image at all"))

	meta := Extract(reader)

	if meta.TakenAt != nil || meta.Coordinates != nil {
		t.Fatalf("expected empty metadata for corrupt input, got %+v", meta)
	}
}

func TestExtractRewindsReader(t *testing.T) {
	reader := bytes.NewReader(pngBytes(t))

	Extract(reader)

	offset, err := reader.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatalf("unexpected seek error: %v", err)
	}
	if offset != 0 {
		t.Fatalf("expected reader rewound to 0, got offset %d", offset)
	}
}

func TestIsFiniteRejectsNonFiniteValues(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		expected bool
	}{
		{name: "ordinary latitude", value: 37.7749, expected: true},
		{name: "zero", value: 0, expected: true},
		{name: "nan", value: math.NaN(), expected: false},
		{name: "positive infinity", value: math.Inf(1), expected: false},
		{name: "negative infinity", value: math.Inf(-1), expected: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isFinite(tc.value); got != tc.expected {
				t.Fatalf("isFinite(%v) = %v, expected %v", tc.value, got, tc.expected)
			}
		})
	}
}
