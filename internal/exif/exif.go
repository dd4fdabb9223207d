// Package exif extracts advisory capture metadata from uploaded originals.
package exif

import (
	"io"
	"math"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// Coordinates is a complete GPS fix. Latitude and longitude are always
// populated together; a lone coordinate in the source data is discarded.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Metadata is the best-effort result of parsing embedded EXIF data.
// Absent fields stay nil.
type Metadata struct {
	TakenAt     *time.Time
	Coordinates *Coordinates
}

// Extract reads EXIF metadata from the image stream. Extraction is advisory:
// corrupt, missing, or unsupported metadata yields an empty Metadata rather
// than an error. The reader is rewound before returning so callers can decode
// the image afterwards.
func Extract(r io.ReadSeeker) Metadata {
	meta := Metadata{}

	// jpeg and tiff are the common carriers; png and gif typically have none.
	if x, err := exif.Decode(r); err == nil && x != nil {

		// DateTime prefers DateTimeOriginal, then DateTimeDigitized, then DateTime.
		if taken, err := x.DateTime(); err == nil {
			meta.TakenAt = &taken
		}

		if lat, lon, err := x.LatLong(); err == nil && isFinite(lat) && isFinite(lon) {
			meta.Coordinates = &Coordinates{Latitude: lat, Longitude: lon}
		}
	}

	_, _ = r.Seek(0, io.SeekStart)

	return meta
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
