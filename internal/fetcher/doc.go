// Package fetcher retrieves a single URL over HTTP(S) into memory.
//
// A Fetcher performs a GET with a bounded number of redirects and an overall
// timeout, and streams the body through a size ceiling so a server that lies
// about Content-Length cannot make the process buffer unbounded data. It never
// touches the filesystem.
//
// Requests go out directly by default. A SOCKS5 or HTTP proxy can be set with
// NewProxyTransport, and EmbeddedTor starts a private Tor daemon whose SOCKS
// port can be used the same way.
//
// Failures are returned as *Error values whose Kind matches the outcome
// taxonomy of the model package. Use errors.Is with ErrNetwork, ErrHTTPStatus,
// ErrTooLarge or ErrCancelled to branch on them.
package fetcher
