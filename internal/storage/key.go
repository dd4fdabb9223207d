package storage

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const (
	gridSuffix      = "-grid.jpg"
	feedSuffix      = "-feed.jpg"
	fallbackName    = "image"
	randomTokenSize = 4 // bytes; 8 hex characters
)

// DeriveBaseName builds a collision-resistant, human-traceable base name for
// a photo's stored assets: a millisecond timestamp, a short random token, and
// a sanitized form of the original file name.
func DeriveBaseName(originalFileName string, now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + randomToken() + "-" + sanitizeFileName(originalFileName)
}

// KeyPair derives the two rendition asset keys from a base name.
func KeyPair(baseName string) (gridKey, feedKey string) {
	return baseName + gridSuffix, baseName + feedSuffix
}

// sanitizeFileName collapses every run of characters outside
// [a-zA-Z0-9_-] into a single hyphen.
func sanitizeFileName(name string) string {
	var builder strings.Builder
	lastWasHyphen := false
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			builder.WriteRune(r)
			lastWasHyphen = false
			continue
		}
		if !lastWasHyphen {
			builder.WriteByte('-')
			lastWasHyphen = true
		}
	}

	sanitized := builder.String()
	if strings.Trim(sanitized, "-") == "" {
		return fallbackName
	}
	return sanitized
}

func randomToken() string {
	buf := make([]byte, randomTokenSize)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means the process is in a bad way; fall back to
		// the clock so key derivation still makes progress.
		return strconv.FormatInt(time.Now().UnixNano()&0xffffffff, 16)
	}
	return hex.EncodeToString(buf)
}
