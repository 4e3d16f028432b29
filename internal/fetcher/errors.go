package fetcher

import (
	"errors"
	"fmt"

	"github.com/nao1215/imgfetch/internal/model"
)

// Sentinel errors matched by *Error through errors.Is.
var (
	// ErrNetwork covers DNS failures, refused connections, timeouts and
	// redirect loops.
	ErrNetwork = errors.New("network error")

	// ErrHTTPStatus is returned for a non-2xx response.
	ErrHTTPStatus = errors.New("unexpected HTTP status")

	// ErrTooLarge is returned when the body exceeds the size ceiling.
	ErrTooLarge = errors.New("response body too large")

	// ErrCancelled is returned when the caller's context was cancelled.
	ErrCancelled = errors.New("request cancelled")
)

// Proxy configuration errors.
var (
	// ErrInvalidProxy is returned when a proxy URL cannot be used.
	ErrInvalidProxy = errors.New("invalid proxy URL")

	// ErrTorNotRunning is returned when a transport is requested from an
	// embedded Tor daemon that has not been started.
	ErrTorNotRunning = errors.New("embedded Tor daemon is not running")
)

// Error describes why a fetch failed.
type Error struct {
	// Kind is the outcome error kind this failure maps to.
	Kind model.ErrorKind

	// StatusCode is set for ErrorHTTP failures.
	StatusCode int

	// URL is the requested URL.
	URL string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Kind == model.ErrorHTTP:
		return fmt.Sprintf("fetch %s: HTTP status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case model.ErrorHTTP:
		return ErrHTTPStatus
	case model.ErrorTooLarge:
		return ErrTooLarge
	case model.ErrorCancelled:
		return ErrCancelled
	default:
		return ErrNetwork
	}
}

// Detail returns a short human-readable explanation suitable for a status line.
func (e *Error) Detail() string {
	if e.Kind == model.ErrorHTTP {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// KindOf returns the error kind carried by err. Errors that did not come from
// this package are classified as network errors.
func KindOf(err error) model.ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return model.ErrorNetwork
}

// ProxyStatus is the result of probing a SOCKS5 proxy.
type ProxyStatus int

const (
	// ProxyStatusOK means the proxy completed a SOCKS5 greeting.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType means something answered but did not speak SOCKS5.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect means the TCP connection failed.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout means the probe timed out.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not SOCKS5)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}
