package filename

import (
	"encoding/hex"
	"mime"
	"net/url"
	"path"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/sha3"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MaxNameLength bounds the length of a generated file name in bytes.
const MaxNameLength = 120

// DefaultExtension is used for synthetic names when the content type gives
// no better hint.
const DefaultExtension = ".jpg"

// syntheticPrefix starts every synthetic file name.
const syntheticPrefix = "image_"

// reservedChars cannot appear in names on at least one common filesystem.
const reservedChars = `/\:*?"<>|`

// contentTypeExtensions maps image media types to file extensions.
var contentTypeExtensions = map[string]string{
	"image/jpeg":               ".jpg",
	"image/jpg":                ".jpg",
	"image/pjpeg":              ".jpg",
	"image/png":                ".png",
	"image/gif":                ".gif",
	"image/webp":               ".webp",
	"image/bmp":                ".bmp",
	"image/svg+xml":            ".svg",
	"image/tiff":               ".tiff",
	"image/x-icon":             ".ico",
	"image/vnd.microsoft.icon": ".ico",
	"image/avif":               ".avif",
	"image/heic":               ".heic",
}

// folder compares names case-insensitively across Unicode.
var folder = cases.Fold()

// ExtensionForContentType returns the file extension for an image media
// type, or DefaultExtension when the type is unknown.
func ExtensionForContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return DefaultExtension
	}
	if ext, ok := contentTypeExtensions[strings.ToLower(mediaType)]; ok {
		return ext
	}
	return DefaultExtension
}

// Candidate returns a filesystem-safe base name for the resource at rawURL.
//
// The filename parameter of contentDisposition wins when present and usable,
// otherwise the last segment of the URL path is used. Names without an
// extension, or with nothing usable left after sanitizing, are replaced by
// a synthetic name built from a short hash of the URL and an extension
// derived from contentType.
func Candidate(rawURL, contentDisposition, contentType string) string {
	if name := fromContentDisposition(contentDisposition); name != "" {
		return name
	}
	if name := fromURL(rawURL); name != "" {
		return name
	}
	return Synthetic(rawURL, ExtensionForContentType(contentType))
}

// Synthetic returns "image_<8 hex chars>" plus ext, where the hex is the
// prefix of the SHA3-256 digest of rawURL.
func Synthetic(rawURL, ext string) string {
	sum := sha3.Sum256([]byte(rawURL))
	return syntheticPrefix + hex.EncodeToString(sum[:4]) + ext
}

// fromContentDisposition extracts a usable name from a Content-Disposition
// header value. mime.ParseMediaType decodes RFC 2231 filename* parameters.
func fromContentDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return usable(Sanitize(params["filename"]))
}

// fromURL extracts a usable name from the last path segment of rawURL.
// The query string and fragment never contribute to the name.
func fromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return usable(Sanitize(base))
}

// usable returns name if it has a stem and an extension, otherwise "".
func usable(name string) string {
	ext := path.Ext(name)
	if name == "" || ext == "" || ext == "." || strings.TrimSuffix(name, ext) == "" {
		return ""
	}
	return name
}

// Sanitize makes name safe to use as a single path element.
// It normalizes to NFC, takes the last element when separators are present,
// removes control and reserved characters, trims leading dots and
// surrounding spaces, and bounds the result to MaxNameLength bytes while
// keeping the extension.
func Sanitize(name string) string {
	name = norm.NFC.String(name)

	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var sb strings.Builder
	for _, r := range name {
		switch {
		case r == utf8.RuneError:
			continue
		case unicode.IsControl(r):
			continue
		case strings.ContainsRune(reservedChars, r):
			sb.WriteRune('_')
		default:
			sb.WriteRune(r)
		}
	}

	name = strings.TrimSpace(sb.String())
	name = strings.TrimLeft(name, ". ")
	name = strings.TrimRight(name, ". ")

	return truncate(name, MaxNameLength)
}

// truncate shortens name to at most limit bytes, cutting the stem on a rune
// boundary and keeping the extension when it fits.
func truncate(name string, limit int) string {
	if len(name) <= limit {
		return name
	}

	ext := path.Ext(name)
	if len(ext) >= limit/2 {
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)

	room := limit - len(ext)
	for len(stem) > room {
		_, size := utf8.DecodeLastRuneInString(stem)
		stem = stem[:len(stem)-size]
	}
	return stem + ext
}

// Resolve returns a name based on candidate that does not collide with any
// name in existing. When candidate is taken, "_1", "_2", ... is inserted
// before the extension until a free name is found. Comparison is
// case-insensitive so results stay unique on case-insensitive filesystems.
//
// Resolve is pure: the same candidate and listing always give the same name.
func Resolve(candidate string, existing map[string]struct{}) string {
	taken := make(map[string]struct{}, len(existing))
	for name := range existing {
		taken[folder.String(name)] = struct{}{}
	}

	if _, ok := taken[folder.String(candidate)]; !ok {
		return candidate
	}

	ext := path.Ext(candidate)
	stem := strings.TrimSuffix(candidate, ext)
	for n := 1; ; n++ {
		suffix := "_" + strconv.Itoa(n)
		name := truncate(stem, MaxNameLength-len(suffix)-len(ext)) + suffix + ext
		if _, ok := taken[folder.String(name)]; !ok {
			return name
		}
	}
}
