package model

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned when a fetch request is not an absolute
// http or https URL.
var ErrInvalidURL = errors.New("invalid URL: must be an absolute http or https URL")

// ParseURLList splits user input into individual URLs.
// Entries are separated by commas and/or newlines, trimmed of surrounding
// whitespace, and empty entries are discarded. Input order is preserved.
func ParseURLList(input string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})

	urls := make([]string, 0, len(fields))
	for _, f := range fields {
		if s := strings.TrimSpace(f); s != "" {
			urls = append(urls, s)
		}
	}
	return urls
}

// ValidateURL parses rawURL and checks that it is an absolute http or https
// URL with a host.
func ValidateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, ErrInvalidURL
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, ErrInvalidURL
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u, nil
	default:
		return nil, ErrInvalidURL
	}
}
