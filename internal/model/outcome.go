package model

import (
	"fmt"
	"time"
)

// OutcomeKind is the terminal state of a single URL in a batch.
type OutcomeKind string

const (
	// OutcomeSaved means the content was written to the output directory.
	OutcomeSaved OutcomeKind = "saved"

	// OutcomeDuplicate means identical content was saved before.
	// No file is written and the hash index is not touched.
	OutcomeDuplicate OutcomeKind = "duplicate"

	// OutcomeRejected means the response failed the acceptance policy.
	OutcomeRejected OutcomeKind = "rejected"

	// OutcomeFailed means the URL could not be processed at all.
	OutcomeFailed OutcomeKind = "failed"
)

// RejectReason explains why a response was rejected by the validator.
type RejectReason string

const (
	// ReasonBadContentType is used for non-image or unknown content types.
	ReasonBadContentType RejectReason = "bad_content_type"

	// ReasonEmptyBody is used for zero-length responses.
	ReasonEmptyBody RejectReason = "empty_body"
)

// ErrorKind classifies a failed URL.
type ErrorKind string

const (
	// ErrorInvalidURL is used when the input is not an absolute http(s) URL.
	ErrorInvalidURL ErrorKind = "invalid_url"

	// ErrorNetwork covers connection refused, DNS failures and timeouts.
	ErrorNetwork ErrorKind = "network_error"

	// ErrorHTTP is used for non-2xx responses. Outcome.StatusCode holds the code.
	ErrorHTTP ErrorKind = "http_error"

	// ErrorTooLarge is used when the body exceeds the size ceiling.
	ErrorTooLarge ErrorKind = "too_large"

	// ErrorFilesystem is used when the file or index could not be written.
	ErrorFilesystem ErrorKind = "filesystem_error"

	// ErrorCancelled is used when the run was cancelled before the URL finished.
	ErrorCancelled ErrorKind = "cancelled"
)

// Outcome is the result of processing one URL.
// Exactly one Outcome is produced per input URL.
type Outcome struct {
	// Index is the zero-based position of the URL in the input batch.
	Index int `json:"index"`

	// URL is the URL as supplied by the user.
	URL string `json:"url"`

	// Kind is the terminal state.
	Kind OutcomeKind `json:"kind"`

	// Path is the file written for saved outcomes.
	Path string `json:"path,omitempty"`

	// Reason is set for rejected outcomes.
	Reason RejectReason `json:"reason,omitempty"`

	// ErrorKind is set for failed outcomes.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// StatusCode is the HTTP status, set once a response was received.
	StatusCode int `json:"status_code,omitempty"`

	// Detail is a human-readable explanation for rejected and failed outcomes.
	Detail string `json:"detail,omitempty"`

	// Fingerprint is the content digest for saved and duplicate outcomes.
	Fingerprint Fingerprint `json:"fingerprint,omitzero"`

	// ContentType is the declared Content-Type header.
	ContentType string `json:"content_type,omitempty"`

	// Size is the number of body bytes received.
	Size int64 `json:"size,omitempty"`

	// Duration is the wall time spent on this URL.
	Duration time.Duration `json:"duration_ns,omitempty"`

	// Metadata holds image metadata extracted from saved content, if any.
	Metadata *ImageMetadata `json:"metadata,omitempty"`
}

// Saved returns a saved outcome.
func Saved(index int, url, path string, fp Fingerprint) Outcome {
	return Outcome{Index: index, URL: url, Kind: OutcomeSaved, Path: path, Fingerprint: fp}
}

// Duplicate returns a duplicate outcome.
func Duplicate(index int, url string, fp Fingerprint) Outcome {
	return Outcome{Index: index, URL: url, Kind: OutcomeDuplicate, Fingerprint: fp}
}

// Rejected returns a rejected outcome.
func Rejected(index int, url string, reason RejectReason, detail string) Outcome {
	return Outcome{Index: index, URL: url, Kind: OutcomeRejected, Reason: reason, Detail: detail}
}

// Failed returns a failed outcome.
func Failed(index int, url string, kind ErrorKind, detail string) Outcome {
	return Outcome{Index: index, URL: url, Kind: OutcomeFailed, ErrorKind: kind, Detail: detail}
}

// IsZero reports whether the outcome has not been settled.
func (o Outcome) IsZero() bool {
	return o.Kind == ""
}

// Cause returns the reason or error kind as a string, or "" for saved and
// duplicate outcomes.
func (o Outcome) Cause() string {
	switch o.Kind {
	case OutcomeRejected:
		return string(o.Reason)
	case OutcomeFailed:
		return string(o.ErrorKind)
	default:
		return ""
	}
}

// StatusLine returns the single human-readable line reported for this URL.
func (o Outcome) StatusLine() string {
	switch o.Kind {
	case OutcomeSaved:
		return fmt.Sprintf("saved      %s -> %s", o.URL, o.Path)
	case OutcomeDuplicate:
		return fmt.Sprintf("duplicate  %s (content %s already saved)", o.URL, o.Fingerprint.Short())
	case OutcomeRejected:
		return fmt.Sprintf("rejected   %s: %s", o.URL, o.describe(string(o.Reason)))
	case OutcomeFailed:
		if o.ErrorKind == ErrorHTTP && o.StatusCode != 0 {
			return fmt.Sprintf("failed     %s: %s %d", o.URL, o.ErrorKind, o.StatusCode)
		}
		return fmt.Sprintf("failed     %s: %s", o.URL, o.describe(string(o.ErrorKind)))
	default:
		return fmt.Sprintf("pending    %s", o.URL)
	}
}

func (o Outcome) describe(cause string) string {
	if o.Detail == "" {
		return cause
	}
	return cause + " (" + o.Detail + ")"
}

// ImageMetadata is a short summary of EXIF data found in a saved image.
type ImageMetadata struct {
	CameraMake  string    `json:"camera_make,omitempty"`
	CameraModel string    `json:"camera_model,omitempty"`
	Software    string    `json:"software,omitempty"`
	TakenAt     time.Time `json:"taken_at,omitzero"`
	HasGPS      bool      `json:"has_gps,omitempty"`
}

// IsEmpty reports whether no metadata fields were found.
func (m *ImageMetadata) IsEmpty() bool {
	return m == nil || (m.CameraMake == "" && m.CameraModel == "" && m.Software == "" && m.TakenAt.IsZero() && !m.HasGPS)
}
