package config

import (
	"maps"
	"strings"
)

// HostConfig holds request settings for a single host.
// This allows fetching from sites that require a session or a referer.
type HostConfig struct {
	// Cookie is an HTTP cookie sent to this host.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty" toml:"cookie,omitempty"`

	// Headers are custom HTTP headers sent to this host.
	Headers map[string]string `yaml:"headers,omitempty" toml:"headers,omitempty"`
}

// File represents the structure of the .imgfetch.yaml (or .toml)
// configuration file. Every field is optional; command line flags take
// precedence over values set here.
type File struct {
	// OutputDir overrides the default output directory.
	OutputDir string `yaml:"output_dir,omitempty" toml:"output_dir,omitempty"`

	// MaxSize is a human-readable size such as "10MB" or "512KiB".
	MaxSize string `yaml:"max_size,omitempty" toml:"max_size,omitempty"`

	// Timeout is a Go duration string such as "30s".
	Timeout string `yaml:"timeout,omitempty" toml:"timeout,omitempty"`

	// MaxRedirects is a pointer so that an explicit 0 can disable redirects.
	MaxRedirects *int `yaml:"max_redirects,omitempty" toml:"max_redirects,omitempty"`

	// Concurrency is the number of URLs fetched at once.
	Concurrency int `yaml:"concurrency,omitempty" toml:"concurrency,omitempty"`

	// UserAgent replaces the default User-Agent.
	UserAgent string `yaml:"user_agent,omitempty" toml:"user_agent,omitempty"`

	// AllowedTypes restricts accepted image subtypes.
	AllowedTypes []string `yaml:"allowed_types,omitempty" toml:"allowed_types,omitempty"`

	// Proxy is a SOCKS5 or HTTP proxy URL.
	Proxy string `yaml:"proxy,omitempty" toml:"proxy,omitempty"`

	// ExtractMetadata toggles EXIF extraction.
	ExtractMetadata *bool `yaml:"extract_metadata,omitempty" toml:"extract_metadata,omitempty"`

	// Defaults apply to every host unless overridden in Hosts.
	Defaults HostConfig `yaml:"defaults,omitempty" toml:"defaults,omitempty"`

	// Hosts maps host names (without scheme or port) to their settings.
	Hosts map[string]HostConfig `yaml:"hosts,omitempty" toml:"hosts,omitempty"`
}

// GetHostConfig returns the configuration for a host.
// It merges the host-specific configuration with defaults.
func (f *File) GetHostConfig(host string) HostConfig {
	result := HostConfig{Cookie: f.Defaults.Cookie}
	if len(f.Defaults.Headers) > 0 {
		result.Headers = maps.Clone(f.Defaults.Headers)
	}

	hostConfig, ok := f.Hosts[strings.ToLower(host)]
	if !ok {
		return result
	}

	if hostConfig.Cookie != "" {
		result.Cookie = hostConfig.Cookie
	}
	if len(hostConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(hostConfig.Headers))
		}
		maps.Copy(result.Headers, hostConfig.Headers)
	}
	return result
}

// HeadersFor returns the extra request headers for a host, with the
// cookie folded in as a Cookie header. It returns nil when nothing is
// configured for the host.
func (f *File) HeadersFor(host string) map[string]string {
	if f == nil {
		return nil
	}

	hc := f.GetHostConfig(host)
	if hc.Cookie == "" && len(hc.Headers) == 0 {
		return nil
	}

	headers := make(map[string]string, len(hc.Headers)+1)
	maps.Copy(headers, hc.Headers)
	if hc.Cookie != "" {
		headers["Cookie"] = hc.Cookie
	}
	return headers
}
