package imagedata

import (
	"strings"
	"testing"
)

func TestNormalizeDataURI(t *testing.T) {
	payload := "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk"
	img := Normalize("data:image/png;base64," + payload)

	if img.MimeType != "image/png" {
		t.Errorf("Expected mime type 'image/png', got '%s'", img.MimeType)
	}
	if img.Base64 != payload {
		t.Errorf("Expected payload '%s', got '%s'", payload, img.Base64)
	}

	wrapped := DataURI(img)
	if again := Normalize(wrapped); again.Base64 != payload {
		t.Errorf("Round trip changed payload: got '%s'", again.Base64)
	}
}

func TestNormalizeKeepsDeclaredMimeType(t *testing.T) {
	img := Normalize("  data:image/webp;base64,AAAA  ")
	if img.MimeType != "image/webp" {
		t.Errorf("Expected 'image/webp', got '%s'", img.MimeType)
	}
	if img.Base64 != "AAAA" {
		t.Errorf("Expected 'AAAA', got '%s'", img.Base64)
	}
}

func TestNormalizeRawPayload(t *testing.T) {
	img := Normalize("AAAABBBB")
	if img.MimeType != DefaultMimeType {
		t.Errorf("Expected default mime type, got '%s'", img.MimeType)
	}
	if img.Base64 != "AAAABBBB" {
		t.Errorf("Expected raw payload unchanged, got '%s'", img.Base64)
	}

	// non-image data URIs lose their header but are not recognised as images
	img = Normalize("data:application/octet-stream;base64,CCCC")
	if img.MimeType != DefaultMimeType || img.Base64 != "CCCC" {
		t.Errorf("Unexpected normalization: %+v", img)
	}
}

func TestNormalizeAll(t *testing.T) {
	if got := NormalizeAll(nil); got != nil {
		t.Errorf("Expected nil for empty input, got %v", got)
	}

	got := NormalizeAll([]string{"data:image/jpeg;base64,AAAA", "BBBB"})
	if len(got) != 2 || got[0] != "AAAA" || got[1] != "BBBB" {
		t.Errorf("Unexpected result: %v", got)
	}
}

func TestParseAllKeepsMimeTypes(t *testing.T) {
	got := ParseAll([]string{"data:image/jpeg;base64,AAAA", "BBBB"})
	if len(got) != 2 {
		t.Fatalf("Expected 2 images, got %d", len(got))
	}
	if got[0].MimeType != "image/jpeg" || got[0].Base64 != "AAAA" {
		t.Errorf("Unexpected first image %+v", got[0])
	}
	if got[1].MimeType != DefaultMimeType || got[1].Base64 != "BBBB" {
		t.Errorf("Unexpected second image %+v", got[1])
	}
}

func TestCanonicalAll(t *testing.T) {
	got := CanonicalAll([]string{" data:image/webp;base64,AAAA ", "BBBB"})
	if len(got) != 2 || got[0] != "data:image/webp;base64,AAAA" || got[1] != "data:image/png;base64,BBBB" {
		t.Errorf("Unexpected result: %v", got)
	}
}

func TestExtractBase64Image(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  string
		found bool
	}{
		{
			name:  "embedded data uri",
			text:  "Here is your picture: data:image/png;base64,QUJDRA== enjoy",
			want:  "QUJDRA==",
			found: true,
		},
		{
			name:  "first occurrence wins",
			text:  "data:image/png;base64,FIRST and data:image/jpeg;base64,SECOND",
			want:  "FIRST",
			found: true,
		},
		{
			name:  "long bare blob",
			text:  strings.Repeat("QUJD", 60),
			want:  strings.Repeat("QUJD", 60),
			found: true,
		},
		{
			name: "short free text",
			text: "no image here, sorry",
		},
		{
			name: "short base64-looking text",
			text: "QUJDRA==",
		},
		{
			name: "long text with spaces",
			text: strings.Repeat("word ", 60),
		},
		{
			name: "empty",
			text: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractBase64Image(tt.text)
			if ok != tt.found {
				t.Fatalf("Expected found=%v, got %v", tt.found, ok)
			}
			if got != tt.want {
				t.Errorf("Expected '%s', got '%s'", tt.want, got)
			}
		})
	}
}
