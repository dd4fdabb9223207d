package rendition

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func decodeJpegBounds(t *testing.T, blob []byte) (int, int) {
	t.Helper()
	decoded, err := jpeg.Decode(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("failed to decode generated rendition: %v", err)
	}
	bounds := decoded.Bounds()
	return bounds.Dx(), bounds.Dy()
}

func TestScaledDimensionsCapsLongerSide(t *testing.T) {
	tests := []struct {
		name           string
		width          int
		height         int
		maxDimension   int
		expectedWidth  int
		expectedHeight int
	}{
		{name: "landscape downscale", width: 4000, height: 3000, maxDimension: 480, expectedWidth: 480, expectedHeight: 360},
		{name: "portrait downscale", width: 1500, height: 3000, maxDimension: 1400, expectedWidth: 700, expectedHeight: 1400},
		{name: "square downscale", width: 2000, height: 2000, maxDimension: 480, expectedWidth: 480, expectedHeight: 480},
		{name: "no upscale when within cap", width: 320, height: 240, maxDimension: 480, expectedWidth: 320, expectedHeight: 240},
		{name: "exactly at cap", width: 480, height: 480, maxDimension: 480, expectedWidth: 480, expectedHeight: 480},
		{name: "degenerate strip floors at one pixel", width: 10000, height: 2, maxDimension: 480, expectedWidth: 480, expectedHeight: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			width, height := scaledDimensions(tc.width, tc.height, tc.maxDimension)
			if width != tc.expectedWidth || height != tc.expectedHeight {
				t.Fatalf("scaledDimensions(%d, %d, %d) = %dx%d, expected %dx%d",
					tc.width, tc.height, tc.maxDimension, width, height, tc.expectedWidth, tc.expectedHeight)
			}
		})
	}
}

func TestGenerateProducesBoundedJpeg(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1200, 900))

	blob, err := Generate(src, Grid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	width, height := decodeJpegBounds(t, blob)
	if width > Grid.MaxDimension || height > Grid.MaxDimension {
		t.Fatalf("rendition %dx%d exceeds max dimension %d", width, height, Grid.MaxDimension)
	}
	if width < 1 || height < 1 {
		t.Fatalf("rendition %dx%d has a degenerate dimension", width, height)
	}
	if width != 480 || height != 360 {
		t.Fatalf("expected 480x360 rendition, got %dx%d", width, height)
	}
}

func TestGenerateDoesNotUpscaleSmallImages(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 60))

	blob, err := Generate(src, Feed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	width, height := decodeJpegBounds(t, blob)
	if width != 100 || height != 60 {
		t.Fatalf("expected original 100x60 dimensions, got %dx%d", width, height)
	}
}

func TestGenerateFlattensTransparencyOntoWhite(t *testing.T) {
	// Fully transparent source; the encoded JPEG must come out white, not black.
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8))

	blob, err := Generate(src, Config{MaxDimension: 8, Quality: 95})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("failed to decode generated rendition: %v", err)
	}
	r, g, b, _ := decoded.At(4, 4).RGBA()
	if r < 0xe000 || g < 0xe000 || b < 0xe000 {
		t.Fatalf("expected near-white pixel after flattening, got rgb(%d, %d, %d)", r>>8, g>>8, b>>8)
	}
}

func TestGenerateRejectsInvalidConfig(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))

	if _, err := Generate(src, Config{MaxDimension: 0, Quality: 80}); err == nil {
		t.Fatalf("expected error for zero max dimension")
	}
}

func TestDecodeReadsPngOriginals(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 16, 12))
	src.Set(3, 3, color.RGBA{G: 180, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}

	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() != 16 || bounds.Dy() != 12 {
		t.Fatalf("unexpected decoded bounds %v", bounds)
	}
}

func TestDecodeRejectsCorruptInput(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("definitely not an image"))); err == nil {
		t.Fatalf("expected decode error for corrupt input")
	}
}
