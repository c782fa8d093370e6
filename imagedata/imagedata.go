// Package imagedata parses and produces base64 image payloads and
// MIME-typed data URIs.
package imagedata

import (
	"regexp"
	"strings"
)

// DefaultMimeType is assumed for payloads that carry no data URI header.
const DefaultMimeType = "image/png"

// minBareBase64Len is the shortest free-text blob accepted as a bare base64 image.
const minBareBase64Len = 200

var (
	embeddedDataURI = regexp.MustCompile(`data:image/[a-zA-Z0-9.+-]+;base64,([A-Za-z0-9+/=_-]+)`)
	fullDataURI     = regexp.MustCompile(`^data:image/([a-zA-Z0-9.+-]+);base64,([A-Za-z0-9+/=_-]+)$`)
	anyDataPrefix   = regexp.MustCompile(`^data:.*?base64,`)
	base64Alphabet  = regexp.MustCompile(`^[A-Za-z0-9+/=_-]+$`)
	whitespace      = regexp.MustCompile(`\s+`)
)

// Image is a decoded view of an image input.
type Image struct {
	MimeType string `json:"mimeType"`
	Base64   string `json:"base64"`
}

// Normalize accepts either a data URI or a raw base64 payload.
// Data URIs keep their declared MIME type, anything else is treated as PNG.
func Normalize(data string) Image {
	trimmed := strings.TrimSpace(data)
	if m := fullDataURI.FindStringSubmatch(trimmed); m != nil {
		return Image{MimeType: "image/" + m[1], Base64: m[2]}
	}
	return Image{
		MimeType: DefaultMimeType,
		Base64:   anyDataPrefix.ReplaceAllString(trimmed, ""),
	}
}

// NormalizeAll returns the raw base64 payload of every input.
func NormalizeAll(images []string) []string {
	if len(images) == 0 {
		return nil
	}
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = Normalize(img).Base64
	}
	return out
}

// ParseAll normalizes every input, keeping each declared MIME type.
func ParseAll(images []string) []Image {
	if len(images) == 0 {
		return nil
	}
	out := make([]Image, len(images))
	for i, img := range images {
		out[i] = Normalize(img)
	}
	return out
}

// CanonicalAll rewrites every input as a data URI.
func CanonicalAll(images []string) []string {
	if len(images) == 0 {
		return nil
	}
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = DataURI(Normalize(img))
	}
	return out
}

// DataURI wraps the image back into a data URI.
func DataURI(img Image) string {
	mime := img.MimeType
	if mime == "" {
		mime = DefaultMimeType
	}
	return "data:" + mime + ";base64," + img.Base64
}

// LooksLikeBase64 reports whether value is long enough and uses only the
// base64 (standard or URL-safe) alphabet.
func LooksLikeBase64(value string) bool {
	if len(value) < minBareBase64Len {
		return false
	}
	return base64Alphabet.MatchString(value)
}

// ExtractBase64Image recovers an image payload embedded in free text.
// The first data URI occurrence wins; otherwise the whole text is used when
// it is itself a self-contained base64 blob.
func ExtractBase64Image(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, m := range embeddedDataURI.FindAllStringSubmatch(text, -1) {
		if payload := whitespace.ReplaceAllString(m[1], ""); payload != "" {
			return payload, true
		}
	}

	trimmed := strings.TrimSpace(text)
	if LooksLikeBase64(trimmed) {
		return whitespace.ReplaceAllString(trimmed, ""), true
	}
	return "", false
}
