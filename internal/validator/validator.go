// Package validator applies the acceptance policy to a fetched response
// before its content is trusted: the declared content type must be an image
// type and the body must not be empty. It performs no I/O.
package validator

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/nao1215/imgfetch/internal/model"
)

// imagePrefix is the media type prefix every accepted response must have.
const imagePrefix = "image/"

// DefaultImageExtensions is the URL path extension allowlist consulted when a
// response carries no Content-Type header.
var DefaultImageExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".svg",
	".tif", ".tiff", ".ico", ".avif", ".heic",
}

// Verdict is the result of a policy check.
type Verdict struct {
	// Accepted is true when the response may be fingerprinted and saved.
	Accepted bool

	// Reason is set when Accepted is false.
	Reason model.RejectReason

	// Detail explains the rejection for the status line.
	Detail string
}

// Validator checks responses against the acceptance policy.
type Validator struct {
	extensions   map[string]struct{}
	allowedTypes map[string]struct{}
}

// Option configures a Validator.
type Option func(*Validator)

// WithAllowedTypes restricts accepted media types to the given list
// (for example "image/png", "image/jpeg"). An empty list accepts any image type.
func WithAllowedTypes(types []string) Option {
	return func(v *Validator) {
		if len(types) == 0 {
			return
		}
		v.allowedTypes = make(map[string]struct{}, len(types))
		for _, t := range types {
			v.allowedTypes[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
		}
	}
}

// WithImageExtensions replaces the extension allowlist used when the
// Content-Type header is absent.
func WithImageExtensions(exts []string) Option {
	return func(v *Validator) {
		v.extensions = toExtensionSet(exts)
	}
}

// New creates a Validator with the default policy.
func New(opts ...Option) *Validator {
	v := &Validator{
		extensions: toExtensionSet(DefaultImageExtensions),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func toExtensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return set
}

// Check decides whether a response with the given declared content type and
// body size may be accepted. rawURL is consulted only when contentType is
// empty: the URL path extension must then be in the image allowlist. An
// explicit non-image content type is always rejected, whatever the URL says.
func (v *Validator) Check(contentType string, size int64, rawURL string) Verdict {
	if size <= 0 {
		return reject(model.ReasonEmptyBody, "response body is empty")
	}

	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		if v.hasImageExtension(rawURL) {
			return Verdict{Accepted: true}
		}
		return reject(model.ReasonBadContentType, "no content type and no image extension")
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return reject(model.ReasonBadContentType, "unparsable content type "+quote(contentType))
	}
	if !strings.HasPrefix(mediaType, imagePrefix) || len(mediaType) == len(imagePrefix) {
		return reject(model.ReasonBadContentType, mediaType)
	}

	if v.allowedTypes != nil {
		if _, ok := v.allowedTypes[mediaType]; !ok {
			return reject(model.ReasonBadContentType, mediaType+" is not in the allowed types")
		}
	}

	return Verdict{Accepted: true}
}

// hasImageExtension reports whether the URL path ends in an allowlisted extension.
func (v *Validator) hasImageExtension(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	_, ok := v.extensions[strings.ToLower(path.Ext(u.Path))]
	return ok
}

func reject(reason model.RejectReason, detail string) Verdict {
	return Verdict{Accepted: false, Reason: reason, Detail: detail}
}

func quote(s string) string {
	return `"` + s + `"`
}
