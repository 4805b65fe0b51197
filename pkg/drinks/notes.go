package drinks

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough))
	policy   = bluemonday.UGCPolicy()
)

// RenderNotes converts markdown notes to sanitized HTML.
func RenderNotes(md string) (template.HTML, error) {
	if strings.TrimSpace(md) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render notes: %w", err)
	}
	return template.HTML(policy.SanitizeBytes(buf.Bytes())), nil
}

// ImageURL builds an ImageKit transformation URL for an image path:
//
//	<base>/tr:w-<width>,h-<height>/<path>
//
// Absolute image URLs are returned untouched. Zero dimensions are omitted.
func ImageURL(base, image string, width, height int) string {
	if image == "" {
		return ""
	}
	if u, err := url.Parse(image); err == nil && u.IsAbs() {
		return image
	}

	var tr []string
	if width > 0 {
		tr = append(tr, fmt.Sprintf("w-%d", width))
	}
	if height > 0 {
		tr = append(tr, fmt.Sprintf("h-%d", height))
	}

	base = strings.TrimSuffix(base, "/")
	image = strings.TrimPrefix(image, "/")
	if len(tr) == 0 {
		return base + "/" + image
	}
	return base + "/tr:" + strings.Join(tr, ",") + "/" + image
}
