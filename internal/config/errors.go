package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and Config.ApplyFile() so
// callers can use errors.Is() while still printing a readable message.
var (
	// ErrNoURL is returned when the batch is empty.
	ErrNoURL = errors.New("no URLs specified: pass them as arguments, with --urls, or with --list")

	// ErrNoOutputDir is returned when the output directory is empty.
	ErrNoOutputDir = errors.New("no output directory specified")

	// ErrInvalidMaxSize is returned when the size ceiling is not positive,
	// exceeds MaxSizeCeiling or cannot be parsed.
	ErrInvalidMaxSize = errors.New("invalid max size: must be a positive byte count up to 1 TiB")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxRedirects is returned when the redirect limit is negative.
	ErrInvalidMaxRedirects = errors.New("invalid max redirects: must be non-negative")

	// ErrInvalidConcurrency is returned when concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingTransports is returned when both --tor and --proxy are
	// specified.
	ErrConflictingTransports = errors.New("conflicting transports: --tor and --proxy cannot be used together")
)
