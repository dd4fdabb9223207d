// Package rendition produces the fixed-size JPEG renditions stored for each
// photo: a grid thumbnail and a feed-width image.
package rendition

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"

	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
)

// Config describes one rendition target: a cap on the longer image dimension
// and a JPEG quality factor.
type Config struct {
	MaxDimension int
	Quality      int
}

// The two renditions generated for every photo. Grid favors thumbnail
// density; Feed favors full-width viewing.
var (
	Grid = Config{MaxDimension: 480, Quality: 70}
	Feed = Config{MaxDimension: 1400, Quality: 80}
)

// Decode reads an original image in any registered format (jpeg, png, gif).
func Decode(r io.Reader) (image.Image, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return src, nil
}

// Generate re-encodes src as a JPEG rendition. The image is downscaled so
// neither dimension exceeds cfg.MaxDimension, never upscaled, and each output
// dimension is floored at one pixel. Transparency is flattened onto white
// during resampling.
func Generate(src image.Image, cfg Config) ([]byte, error) {
	if cfg.MaxDimension <= 0 {
		return nil, fmt.Errorf("invalid rendition max dimension %d", cfg.MaxDimension)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid source dimensions %dx%d", width, height)
	}

	targetWidth, targetHeight := scaledDimensions(width, height, cfg.MaxDimension)

	// A white canvas plus an Over draw flattens any alpha channel while
	// resampling in a single pass.
	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	xdraw.Draw(dst, dst.Bounds(), image.White, image.Point{}, xdraw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: clamp(cfg.Quality, 1, 100)}); err != nil {
		return nil, fmt.Errorf("failed to encode rendition to jpeg: %w", err)
	}

	return buf.Bytes(), nil
}

// scaledDimensions applies scale = min(1, max/w, max/h) and rounds, flooring
// each dimension at one pixel.
func scaledDimensions(width, height, maxDimension int) (int, int) {
	scale := math.Min(1, math.Min(
		float64(maxDimension)/float64(width),
		float64(maxDimension)/float64(height),
	))

	targetWidth := int(math.Round(float64(width) * scale))
	targetHeight := int(math.Round(float64(height) * scale))
	if targetWidth < 1 {
		targetWidth = 1
	}
	if targetHeight < 1 {
		targetHeight = 1
	}

	return targetWidth, targetHeight
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
