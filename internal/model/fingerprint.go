package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// FingerprintSize is the length of a fingerprint digest in bytes.
const FingerprintSize = sha256.Size

// ErrInvalidFingerprint is returned when a string is not a 64-character
// hexadecimal SHA-256 digest.
var ErrInvalidFingerprint = errors.New("invalid fingerprint: expected 64 hex characters")

// Fingerprint is the SHA-256 digest of a resource's full byte content.
// Equal fingerprints are treated as byte-identical content.
type Fingerprint [FingerprintSize]byte

// ComputeFingerprint returns the fingerprint of data.
func ComputeFingerprint(data []byte) Fingerprint {
	return Fingerprint(sha256.Sum256(data))
}

// ParseFingerprint parses a hexadecimal fingerprint.
// Surrounding whitespace is ignored and upper-case digits are accepted.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint

	s = strings.TrimSpace(s)
	if len(s) != hex.EncodedLen(FingerprintSize) {
		return fp, fmt.Errorf("%w: got %d characters", ErrInvalidFingerprint, len(s))
	}

	if _, err := hex.Decode(fp[:], []byte(strings.ToLower(s))); err != nil {
		return fp, fmt.Errorf("%w: %v", ErrInvalidFingerprint, err)
	}
	return fp, nil
}

// String returns the lowercase hexadecimal form of the fingerprint.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns the first 12 hex characters, used in log lines.
func (f Fingerprint) Short() string {
	return f.String()[:12]
}

// IsZero reports whether the fingerprint is unset.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	if f.IsZero() {
		return []byte{}, nil
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*f = Fingerprint{}
		return nil
	}
	fp, err := ParseFingerprint(string(text))
	if err != nil {
		return err
	}
	*f = fp
	return nil
}
