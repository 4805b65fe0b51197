package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entry represents a cached loader payload.
type Entry struct {
	// Data is the JSON-encoded loader payload
	Data []byte `json:"data"`

	// ETag is a strong validator derived from Data
	ETag string `json:"etag"`

	// SurrogateKeys tag the entry for invalidation and CDN purging
	SurrogateKeys []string `json:"surrogate_keys"`

	// Expires is when the cache entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when the payload was produced
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry builds an entry for data valid for ttl.
func NewEntry(data []byte, surrogateKeys []string, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Data:          data,
		ETag:          ComputeETag(data),
		SurrogateKeys: surrogateKeys,
		Expires:       now.Add(ttl),
		CachedAt:      now,
	}
}

// ComputeETag returns a quoted strong ETag for data.
func ComputeETag(data []byte) string {
	sum := sha256.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
