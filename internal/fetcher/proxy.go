package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout bounds the SOCKS5 greeting probe.
const checkProxyTimeout = 2 * time.Second

// SOCKS5 greeting constants.
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthPassword = 0x02
	socks5AuthNoAccept = 0xFF
)

// NewProxyTransport returns an HTTP transport that sends every request
// through the proxy described by rawProxy.
//
// Supported schemes are socks5 and socks5h, which dial through
// golang.org/x/net/proxy, and http and https, which use a CONNECT proxy.
// Credentials in the URL user info are passed to the proxy.
func NewProxyTransport(rawProxy string) (*http.Transport, error) {
	u, err := url.Parse(rawProxy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return nil, fmt.Errorf("%w: %q must include host and port", ErrInvalidProxy, redactProxy(u))
	}

	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // DefaultTransport is always *http.Transport

	switch u.Scheme {
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if u.User != nil {
			password, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: password}
		}

		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}

		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxy, u.Scheme)
	}

	// Each proxied connection is a comparatively scarce resource, Tor
	// circuits in particular.
	transport.MaxIdleConns = 10
	transport.MaxIdleConnsPerHost = 2
	transport.IdleConnTimeout = 30 * time.Second

	return transport, nil
}

// redactProxy returns the proxy URL without its password.
func redactProxy(u *url.URL) string {
	return u.Redacted()
}

// CheckSOCKS5 verifies that address answers a SOCKS5 greeting with an
// acceptable authentication method. It does not open a tunnel.
func CheckSOCKS5(ctx context.Context, address string) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// version, two methods offered: no auth and username/password
	if _, err := conn.Write([]byte{socks5Version, 0x02, socks5AuthNone, socks5AuthPassword}); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}

	if resp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	switch resp[1] {
	case socks5AuthNone, socks5AuthPassword:
		return ProxyStatusOK
	default:
		return ProxyStatusWrongType
	}
}

// ProxyAddress returns the host:port of a socks5 proxy URL, or "" when
// rawProxy is not a SOCKS5 URL.
func ProxyAddress(rawProxy string) string {
	u, err := url.Parse(rawProxy)
	if err != nil {
		return ""
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return ""
	}
	return u.Host
}
