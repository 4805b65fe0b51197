package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPolicy_CacheControl(t *testing.T) {
	p := Policy{BrowserMaxAge: 5 * time.Minute, EdgeMaxAge: 24 * time.Hour}
	want := "public, max-age=300, s-maxage=86400, stale-while-revalidate=60"
	if got := p.CacheControl(); got != want {
		t.Errorf("CacheControl() = %q, want %q", got, want)
	}
}

func TestWriteHeaders(t *testing.T) {
	entry := &Entry{
		ETag:          `"abc"`,
		SurrogateKeys: []string{"drinks", "drink:negroni"},
	}
	h := http.Header{}
	WriteHeaders(h, entry, Policy{BrowserMaxAge: time.Minute, EdgeMaxAge: time.Hour})

	if got := h.Get("ETag"); got != `"abc"` {
		t.Errorf("ETag = %q", got)
	}
	if got := h.Get("Surrogate-Key"); got != "drinks drink:negroni" {
		t.Errorf("Surrogate-Key = %q", got)
	}
	if h.Get("Cache-Control") == "" {
		t.Error("Cache-Control not set")
	}
}

func TestWriteHeaders_NilEntry(t *testing.T) {
	h := http.Header{}
	WriteHeaders(h, nil, Policy{})
	if len(h) != 0 {
		t.Errorf("expected no headers, got %v", h)
	}
}

func TestNotModified(t *testing.T) {
	entry := &Entry{ETag: `"abc"`}

	tests := []struct {
		name        string
		ifNoneMatch string
		want        bool
	}{
		{name: "no header", ifNoneMatch: "", want: false},
		{name: "exact match", ifNoneMatch: `"abc"`, want: true},
		{name: "weak match", ifNoneMatch: `W/"abc"`, want: true},
		{name: "list match", ifNoneMatch: `"zzz", "abc"`, want: true},
		{name: "wildcard", ifNoneMatch: "*", want: true},
		{name: "mismatch", ifNoneMatch: `"zzz"`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/drinks/negroni", nil)
			if tt.ifNoneMatch != "" {
				req.Header.Set("If-None-Match", tt.ifNoneMatch)
			}
			if got := NotModified(req, entry); got != tt.want {
				t.Errorf("NotModified() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNotModified_NilInputs(t *testing.T) {
	// Should not panic with nil inputs
	if NotModified(nil, &Entry{ETag: `"a"`}) {
		t.Error("nil request must not match")
	}
	if NotModified(httptest.NewRequest(http.MethodGet, "/", nil), nil) {
		t.Error("nil entry must not match")
	}
}
