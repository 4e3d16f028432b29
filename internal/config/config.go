package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "imgfetch"

	// DefaultOutputDir is created in the working directory when no other
	// directory is given.
	DefaultOutputDir = "Fetched_Images"

	// DefaultMaxSize is the largest response body accepted, in bytes.
	DefaultMaxSize int64 = 10 << 20

	// MaxSizeCeiling is the largest MaxSize accepted. Bodies are held in
	// memory, so anything beyond it is a typo.
	MaxSizeCeiling int64 = 1 << 40

	// DefaultTimeout bounds a single request, including reading the body.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRedirects is how many redirects a request may follow.
	DefaultMaxRedirects = 5

	// DefaultConcurrency of 1 processes URLs strictly one after another.
	DefaultConcurrency = 1

	// DefaultUserAgent identifies imgfetch in HTTP requests.
	DefaultUserAgent = "imgfetch/1.0 (+https://github.com/nao1215/imgfetch)"

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Config holds all configuration options for a fetch run.
// It is populated from CLI flags, optionally overlaid by a configuration
// file, and passed through the application rather than kept globally.
type Config struct {
	// URLs is the batch to process, in input order.
	URLs []string

	// OutputDir is where images and the hash index are stored.
	OutputDir string

	// MaxSize is the response body ceiling in bytes.
	MaxSize int64

	// Timeout bounds each request.
	Timeout time.Duration

	// MaxRedirects is the redirect limit per request. Zero disables redirects.
	MaxRedirects int

	// Concurrency is the number of URLs fetched at once.
	Concurrency int

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// AllowedTypes restricts accepted image subtypes (e.g. "png", "jpeg").
	// Empty accepts any image/* type.
	AllowedTypes []string

	// ProxyURL routes requests through a SOCKS5 or HTTP proxy,
	// e.g. "socks5://127.0.0.1:9050".
	ProxyURL string

	// UseTor starts an embedded Tor daemon and routes requests through it.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon. Only used when UseTor is true.
	TorStartupTimeout time.Duration

	// ExtractMetadata reads EXIF data from saved images.
	ExtractMetadata bool

	// Verbose enables debug logging and detailed report lines.
	Verbose bool

	// JSONReport selects JSON output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile, when set, receives the report instead of stdout.
	ReportFile string

	// ConfigFilePath is an explicit configuration file path.
	ConfigFilePath string

	// Hosts holds per-host request settings loaded from the config file.
	Hosts *File

	// DBDir is the directory of the history catalog.
	DBDir string

	// SaveHistory records the run in the history catalog.
	SaveHistory bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		OutputDir:         DefaultOutputDir,
		MaxSize:           DefaultMaxSize,
		Timeout:           DefaultTimeout,
		MaxRedirects:      DefaultMaxRedirects,
		Concurrency:       DefaultConcurrency,
		UserAgent:         DefaultUserAgent,
		TorStartupTimeout: DefaultTorStartupTimeout,
		ExtractMetadata:   true,
		DBDir:             XDGDataDir(),
		SaveHistory:       true,
		Hosts:             &File{Hosts: make(map[string]HostConfig)},
	}
}

// ApplyFile copies the settings present in a configuration file onto c.
// Fields the file leaves empty keep their current value.
func (c *Config) ApplyFile(f *File) error {
	if f == nil {
		return nil
	}

	if f.OutputDir != "" {
		c.OutputDir = f.OutputDir
	}
	if f.MaxSize != "" {
		n, err := humanize.ParseBytes(f.MaxSize)
		if err != nil || n > uint64(MaxSizeCeiling) {
			return fmt.Errorf("%w: %q", ErrInvalidMaxSize, f.MaxSize)
		}
		c.MaxSize = int64(n) //nolint:gosec // bounded above
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidTimeout, f.Timeout)
		}
		c.Timeout = d
	}
	if f.MaxRedirects != nil {
		c.MaxRedirects = *f.MaxRedirects
	}
	if f.Concurrency != 0 {
		c.Concurrency = f.Concurrency
	}
	if f.UserAgent != "" {
		c.UserAgent = f.UserAgent
	}
	if len(f.AllowedTypes) > 0 {
		c.AllowedTypes = f.AllowedTypes
	}
	if f.Proxy != "" {
		c.ProxyURL = f.Proxy
	}
	if f.ExtractMetadata != nil {
		c.ExtractMetadata = *f.ExtractMetadata
	}

	if f.Hosts == nil {
		f.Hosts = make(map[string]HostConfig)
	}
	c.Hosts = f
	return nil
}

// XDGDataDir returns the XDG data directory for imgfetch.
// On Linux: ~/.local/share/imgfetch
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for imgfetch.
// On Linux: ~/.config/imgfetch
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as one of the package's sentinel errors.
func (c *Config) Validate() error {
	if len(c.URLs) == 0 {
		return ErrNoURL
	}

	if c.OutputDir == "" {
		return ErrNoOutputDir
	}

	if c.MaxSize <= 0 || c.MaxSize > MaxSizeCeiling {
		return ErrInvalidMaxSize
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxRedirects < 0 {
		return ErrInvalidMaxRedirects
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.UseTor && c.ProxyURL != "" {
		return ErrConflictingTransports
	}

	return nil
}
