package photos

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidPhotoID indicates a photo identifier that is not a UUID.
	ErrInvalidPhotoID = errors.New("photos: invalid photo id")
	// ErrInvalidTakenAt indicates a capture timestamp that could not be parsed.
	ErrInvalidTakenAt = errors.New("photos: invalid taken-at timestamp")
)

// takenAtLayouts are the accepted wire shapes for the capture timestamp:
// RFC 3339 and the value an HTML datetime-local input produces.
var takenAtLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

// PhotoID represents a validated photo identifier.
type PhotoID string

// NewPhotoID validates raw input and returns a PhotoID.
func NewPhotoID(rawInput string) (PhotoID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPhotoID)
	}
	if _, err := uuid.Parse(trimmed); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPhotoID, trimmed)
	}
	return PhotoID(trimmed), nil
}

// String returns the underlying string identifier.
func (id PhotoID) String() string {
	return string(id)
}

// Coordinates is a complete latitude/longitude pair. The pair is indivisible:
// a photo either has both values or neither.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// ParseCoordinates interprets the lat/lon form fields. Values must both be
// present and parse as finite numbers to yield a pair; anything else is
// stored as absent rather than partially populated.
func ParseCoordinates(latRaw, lonRaw string) *Coordinates {
	latRaw = strings.TrimSpace(latRaw)
	lonRaw = strings.TrimSpace(lonRaw)
	if latRaw == "" || lonRaw == "" {
		return nil
	}

	lat, latErr := strconv.ParseFloat(latRaw, 64)
	lon, lonErr := strconv.ParseFloat(lonRaw, 64)
	if latErr != nil || lonErr != nil {
		return nil
	}
	if !isFinite(lat) || !isFinite(lon) {
		return nil
	}

	return &Coordinates{Latitude: lat, Longitude: lon}
}

// ParseTakenAt interprets the optional capture timestamp field. An empty
// value means absent; a present value must parse.
func ParseTakenAt(raw string) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	for _, layout := range takenAtLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return &parsed, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidTakenAt, trimmed)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Photo models the persisted photo record. Its asset keys always reference
// the two stored renditions; the lifecycle in Service keeps record and blobs
// from diverging.
type Photo struct {
	ID           string     `gorm:"column:id;primaryKey;size:36;not null"`
	Caption      string     `gorm:"column:caption;not null;default:''"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null;index:idx_photos_created_at"`
	TakenAt      *time.Time `gorm:"column:taken_at"`
	Latitude     *float64   `gorm:"column:lat"`
	Longitude    *float64   `gorm:"column:lon"`
	LocationName string     `gorm:"column:location_name;size:320;not null;default:''"`
	GridAssetKey string     `gorm:"column:grid_asset_key;size:255;not null"`
	FeedAssetKey string     `gorm:"column:feed_asset_key;size:255;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Photo) TableName() string {
	return "photos"
}

// CreateRequest carries the multipart upload payload for a new photo.
type CreateRequest struct {
	Image        []byte
	FileName     string
	Caption      string
	TakenAt      string
	Lat          string
	Lon          string
	LocationName string
}

// UpdateRequest carries the multipart payload for an edit. A nil Image keeps
// the existing renditions; a present one replaces them under fresh keys.
type UpdateRequest struct {
	Image        []byte
	FileName     string
	Caption      string
	TakenAt      string
	Lat          string
	Lon          string
	LocationName string
}

// PhotoView is the response shape for every read and mutation: the record
// fields with resolved display URLs substituted for direct blob access.
type PhotoView struct {
	ID           string     `json:"id"`
	Caption      string     `json:"caption"`
	CreatedAt    time.Time  `json:"createdAt"`
	TakenAt      *time.Time `json:"takenAt,omitempty"`
	Latitude     *float64   `json:"lat,omitempty"`
	Longitude    *float64   `json:"lon,omitempty"`
	LocationName string     `json:"locationName,omitempty"`
	GridAssetKey string     `json:"gridAssetKey"`
	FeedAssetKey string     `json:"feedAssetKey"`
	GridURL      string     `json:"gridUrl"`
	FeedURL      string     `json:"feedUrl"`
}
