package cache

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Policy controls the Cache-Control header written for cached pages.
type Policy struct {
	// BrowserMaxAge is sent as max-age.
	BrowserMaxAge time.Duration

	// EdgeMaxAge is sent as s-maxage for the CDN.
	EdgeMaxAge time.Duration
}

// CacheControl renders the policy as a Cache-Control value.
func (p Policy) CacheControl() string {
	return fmt.Sprintf("public, max-age=%d, s-maxage=%d, stale-while-revalidate=60",
		int(p.BrowserMaxAge.Seconds()), int(p.EdgeMaxAge.Seconds()))
}

// WriteHeaders sets ETag, Surrogate-Key and Cache-Control for entry.
func WriteHeaders(h http.Header, entry *Entry, p Policy) {
	if entry == nil {
		return
	}
	if entry.ETag != "" {
		h.Set("ETag", entry.ETag)
	}
	if len(entry.SurrogateKeys) > 0 {
		h.Set("Surrogate-Key", strings.Join(entry.SurrogateKeys, " "))
	}
	h.Set("Cache-Control", p.CacheControl())
}

// NotModified reports whether the request's If-None-Match matches the entry.
// Weak validators compare equal to their strong form, as GET allows.
func NotModified(req *http.Request, entry *Entry) bool {
	if entry == nil || req == nil || entry.ETag == "" {
		return false
	}

	header := req.Header.Get("If-None-Match")
	if header == "" {
		return false
	}

	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			NotModifiedResponses.Inc()
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == entry.ETag {
			NotModifiedResponses.Inc()
			return true
		}
	}
	return false
}
