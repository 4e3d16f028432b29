package filename

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// TestCandidate tests base name derivation.
func TestCandidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		url         string
		disposition string
		contentType string
		want        string
	}{
		{
			name: "uses last path segment",
			url:  "https://example.com/images/cat.jpg",
			want: "cat.jpg",
		},
		{
			name: "ignores query and fragment",
			url:  "https://example.com/images/cat.png?size=large#top",
			want: "cat.png",
		},
		{
			name: "decodes percent escapes",
			url:  "https://example.com/images/my%20cat.png",
			want: "my cat.png",
		},
		{
			name:        "prefers content disposition filename",
			url:         "https://example.com/download?id=42",
			disposition: `attachment; filename="sunset.webp"`,
			want:        "sunset.webp",
		},
		{
			name:        "decodes RFC 2231 filename",
			url:         "https://example.com/download",
			disposition: `attachment; filename*=UTF-8''caf%C3%A9.png`,
			want:        "café.png",
		},
		{
			name:        "strips traversal from content disposition",
			url:         "https://example.com/images/fallback.gif",
			disposition: `attachment; filename="../../evil.png"`,
			want:        "evil.png",
		},
		{
			name:        "falls back to URL when disposition has no extension",
			url:         "https://example.com/images/fallback.gif",
			disposition: `attachment; filename="README"`,
			want:        "fallback.gif",
		},
		{
			name:        "synthesizes name for root path",
			url:         "https://example.com/",
			contentType: "image/png",
			want:        Synthetic("https://example.com/", ".png"),
		},
		{
			name: "synthesizes name for path without extension",
			url:  "https://example.com/photo",
			want: Synthetic("https://example.com/photo", DefaultExtension),
		},
		{
			name: "synthesizes name for dot-only segment",
			url:  "https://example.com/images/...",
			want: Synthetic("https://example.com/images/...", DefaultExtension),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Candidate(tt.url, tt.disposition, tt.contentType)
			if got != tt.want {
				t.Errorf("Candidate(%q, %q) = %q, want %q", tt.url, tt.disposition, got, tt.want)
			}
		})
	}
}

// TestSynthetic tests synthetic name generation.
func TestSynthetic(t *testing.T) {
	t.Parallel()

	a := Synthetic("https://example.com/a", ".jpg")
	b := Synthetic("https://example.com/b", ".jpg")

	if !strings.HasPrefix(a, "image_") || !strings.HasSuffix(a, ".jpg") {
		t.Errorf("unexpected synthetic name %q", a)
	}
	if len(a) != len("image_")+8+len(".jpg") {
		t.Errorf("expected 8 hex characters in %q", a)
	}
	if a == b {
		t.Error("expected different URLs to give different synthetic names")
	}
	if a != Synthetic("https://example.com/a", ".jpg") {
		t.Error("expected synthetic names to be deterministic")
	}
}

// TestSanitize tests removal of unsafe characters.
func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain name unchanged", input: "cat.jpg", want: "cat.jpg"},
		{name: "unix separators", input: "a/b/c.png", want: "c.png"},
		{name: "windows separators", input: `C:\Users\me\c.png`, want: "c.png"},
		{name: "control characters removed", input: "ca\x00t\x1f.jpg", want: "cat.jpg"},
		{name: "reserved characters replaced", input: `what?<x>|"y".png`, want: "what__x___y_.png"},
		{name: "leading dots trimmed", input: "..hidden.png", want: "hidden.png"},
		{name: "trailing dots and spaces trimmed", input: " cat.png. ", want: "cat.png"},
		{name: "NFC normalization", input: "cafe\u0301.png", want: "caf\u00e9.png"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}

	t.Run("bounds length and keeps extension", func(t *testing.T) {
		t.Parallel()

		long := strings.Repeat("é", 200) + ".jpeg"
		got := Sanitize(long)

		if len(got) > MaxNameLength {
			t.Errorf("expected at most %d bytes, got %d", MaxNameLength, len(got))
		}
		if !strings.HasSuffix(got, ".jpeg") {
			t.Errorf("expected extension to be kept, got %q", got)
		}
		if !utf8.ValidString(got) {
			t.Errorf("expected valid UTF-8, got %q", got)
		}
	})
}

// TestResolve tests collision handling.
func TestResolve(t *testing.T) {
	t.Parallel()

	set := func(names ...string) map[string]struct{} {
		m := make(map[string]struct{}, len(names))
		for _, n := range names {
			m[n] = struct{}{}
		}
		return m
	}

	tests := []struct {
		name      string
		candidate string
		existing  map[string]struct{}
		want      string
	}{
		{name: "free name is kept", candidate: "cat.jpg", existing: set("dog.jpg"), want: "cat.jpg"},
		{name: "first collision", candidate: "cat.jpg", existing: set("cat.jpg"), want: "cat_1.jpg"},
		{name: "skips taken suffixes", candidate: "cat.jpg", existing: set("cat.jpg", "cat_1.jpg", "cat_2.jpg"), want: "cat_3.jpg"},
		{name: "case-insensitive collision", candidate: "Cat.JPG", existing: set("cat.jpg"), want: "Cat_1.JPG"},
		{name: "empty listing", candidate: "cat.jpg", existing: nil, want: "cat.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Resolve(tt.candidate, tt.existing); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.candidate, got, tt.want)
			}
		})
	}

	t.Run("idempotent against an unchanged listing", func(t *testing.T) {
		t.Parallel()

		existing := set("cat.jpg", "cat_1.jpg")
		first := Resolve("cat.jpg", existing)
		second := Resolve("cat.jpg", existing)
		if first != second {
			t.Errorf("expected identical results, got %q and %q", first, second)
		}

		existing[first] = struct{}{}
		third := Resolve("cat.jpg", existing)
		if third == first {
			t.Errorf("expected a new name after %q was written", first)
		}
		if _, taken := existing[third]; taken {
			t.Errorf("expected %q to be unique", third)
		}
	})

	t.Run("suffixed names stay within the length bound", func(t *testing.T) {
		t.Parallel()

		candidate := Sanitize(strings.Repeat("a", 300) + ".png")
		got := Resolve(candidate, set(candidate))
		if len(got) > MaxNameLength {
			t.Errorf("expected at most %d bytes, got %d", MaxNameLength, len(got))
		}
		if !strings.HasSuffix(got, "_1.png") {
			t.Errorf("expected suffix before extension, got %q", got)
		}
	})
}

// TestExtensionForContentType tests media type to extension mapping.
func TestExtensionForContentType(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"image/png":                 ".png",
		"image/jpeg; charset=utf-8": ".jpg",
		"IMAGE/GIF":                 ".gif",
		"image/svg+xml":             ".svg",
		"image/unknown":             DefaultExtension,
		"":                          DefaultExtension,
	}

	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			t.Parallel()

			if got := ExtensionForContentType(input); got != want {
				t.Errorf("ExtensionForContentType(%q) = %q, want %q", input, got, want)
			}
		})
	}
}
