package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/imgfetch/internal/model"
)

// Default fetch policy.
const (
	// DefaultMaxBytes is the body size ceiling (10 MiB).
	DefaultMaxBytes int64 = 10 << 20

	// DefaultTimeout bounds the whole request including reading the body.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRedirects is the number of redirects followed before giving up.
	DefaultMaxRedirects = 5

	// DefaultUserAgent is sent when no other User-Agent is configured.
	DefaultUserAgent = "imgfetch"
)

// Response is a successfully fetched resource held in memory.
type Response struct {
	// StatusCode is the final HTTP status (always 2xx).
	StatusCode int

	// ContentType is the declared Content-Type header, possibly empty.
	ContentType string

	// ContentLength is the declared length, or -1 when unknown.
	ContentLength int64

	// ContentDisposition is the Content-Disposition header, possibly empty.
	ContentDisposition string

	// FinalURL is the URL after redirects.
	FinalURL string

	// Body is the complete response body.
	Body []byte
}

// Size returns the number of body bytes received.
func (r *Response) Size() int64 {
	return int64(len(r.Body))
}

// HeaderFunc returns extra request headers for a host.
type HeaderFunc func(host string) map[string]string

// Fetcher performs bounded GET requests.
type Fetcher struct {
	client       *http.Client
	transport    http.RoundTripper
	timeout      time.Duration
	maxRedirects int
	maxBytes     int64
	userAgent    string
	headers      HeaderFunc
	logger       *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxBytes sets the body size ceiling.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithTimeout sets the overall per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxRedirects sets how many redirects are followed. Zero disables
// redirects entirely.
func WithMaxRedirects(n int) Option {
	return func(f *Fetcher) {
		if n >= 0 {
			f.maxRedirects = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithTransport sets the round tripper, for example one built by
// NewProxyTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		if rt != nil {
			f.transport = rt
		}
	}
}

// WithHeaders sets a function that supplies per-host request headers.
func WithHeaders(fn HeaderFunc) Option {
	return func(f *Fetcher) {
		f.headers = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates a Fetcher with the default policy.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:      DefaultTimeout,
		maxRedirects: DefaultMaxRedirects,
		maxBytes:     DefaultMaxBytes,
		userAgent:    DefaultUserAgent,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	transport := f.transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // DefaultTransport is always *http.Transport
	}
	if f.headers != nil {
		transport = &headerInjectingTransport{base: transport, headers: f.headers}
	}

	f.client = &http.Client{
		Transport:     transport,
		Timeout:       f.timeout,
		CheckRedirect: f.checkRedirect,
	}
	return f
}

// MaxBytes returns the body size ceiling.
func (f *Fetcher) MaxBytes() int64 {
	return f.maxBytes
}

func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > f.maxRedirects {
		return fmt.Errorf("stopped after %d redirects", f.maxRedirects)
	}
	f.logger.Debug("following redirect", "from", via[len(via)-1].URL.String(), "to", req.URL.String())
	return nil
}

// Fetch retrieves rawURL. On success the whole body is in memory and the
// status is 2xx. On failure the returned error is an *Error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Kind: model.ErrorInvalidURL, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.classify(ctx, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: model.ErrorHTTP, StatusCode: resp.StatusCode, URL: rawURL}
	}

	if resp.ContentLength > f.maxBytes {
		return nil, &Error{
			Kind: model.ErrorTooLarge,
			URL:  rawURL,
			Err:  fmt.Errorf("declared length %d exceeds limit %d", resp.ContentLength, f.maxBytes),
		}
	}

	limit := f.maxBytes
	if limit < math.MaxInt64 {
		limit++
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, f.classify(ctx, rawURL, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &Error{
			Kind: model.ErrorTooLarge,
			URL:  rawURL,
			Err:  fmt.Errorf("body exceeds limit %d", f.maxBytes),
		}
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	f.logger.Debug("fetched",
		"url", rawURL,
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
		"bytes", len(body),
	)

	return &Response{
		StatusCode:         resp.StatusCode,
		ContentType:        resp.Header.Get("Content-Type"),
		ContentLength:      resp.ContentLength,
		ContentDisposition: resp.Header.Get("Content-Disposition"),
		FinalURL:           finalURL,
		Body:               body,
	}, nil
}

// classify turns a transport or read error into an *Error. Cancellation of
// the caller's context wins over everything else; the client's own timeout is
// a network error.
func (f *Fetcher) classify(ctx context.Context, rawURL string, err error) *Error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return &Error{Kind: model.ErrorCancelled, URL: rawURL, Err: context.Canceled}
	}
	return &Error{Kind: model.ErrorNetwork, URL: rawURL, Err: unwrapURLError(err)}
}

// unwrapURLError strips the *url.Error wrapper net/http adds, since the URL
// is already carried by Error.
func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}

// headerInjectingTransport adds per-host headers to every request,
// including redirected ones.
type headerInjectingTransport struct {
	base    http.RoundTripper
	headers HeaderFunc
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	extra := t.headers(req.URL.Hostname())
	if len(extra) == 0 {
		return t.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	for key, value := range extra {
		if strings.EqualFold(key, "Cookie") {
			if existing := clone.Header.Get("Cookie"); existing != "" {
				value = existing + "; " + value
			}
		}
		clone.Header.Set(key, value)
	}
	return t.base.RoundTrip(clone)
}
