package storage

import (
	"sync"
	"time"
)

// URLCache memoizes signed URLs per asset key so listings do not re-issue a
// signature for every row on every request. It is process-local and
// best-effort: entries may be dropped at any time without correctness impact.
type URLCache struct {
	ttl           time.Duration
	refreshBuffer time.Duration
	clock         func() time.Time

	mu      sync.Mutex
	entries map[string]cachedURL
}

type cachedURL struct {
	url       string
	expiresAt time.Time
}

// NewURLCache constructs a cache whose entries live for ttl and are treated
// as stale refreshBuffer before actual expiry, so a returned URL never
// expires moments after it is handed out. A nil clock defaults to time.Now.
func NewURLCache(ttl, refreshBuffer time.Duration, clock func() time.Time) *URLCache {
	if clock == nil {
		clock = time.Now
	}
	return &URLCache{
		ttl:           ttl,
		refreshBuffer: refreshBuffer,
		clock:         clock,
		entries:       make(map[string]cachedURL),
	}
}

// Get returns the cached URL for key if it is still comfortably inside its
// lifetime.
func (c *URLCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !c.clock().Add(c.refreshBuffer).Before(entry.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return entry.url, true
}

// Set stores a freshly issued URL for key, stamping its expiry from the
// cache's TTL.
func (c *URLCache) Set(key, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedURL{url: url, expiresAt: c.clock().Add(c.ttl)}
}

// Invalidate drops the entries for the given keys. Called eagerly whenever a
// key's blob is deleted or superseded so a stale URL is never served for
// removed content.
func (c *URLCache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
}
