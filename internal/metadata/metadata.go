// Package metadata reads EXIF metadata from image bytes without decoding
// pixels. It reports the camera, the software that last wrote the file,
// when the picture was taken, and whether GPS coordinates are embedded.
package metadata

import (
	"errors"
	"fmt"
	"strings"
	"time"

	exif "github.com/dsoprea/go-exif/v3"

	"github.com/nao1215/imgfetch/internal/model"
)

// exifTimeLayout is the EXIF DateTime format.
const exifTimeLayout = "2006:01:02 15:04:05"

// Extractor pulls a metadata summary out of image bytes.
type Extractor interface {
	Extract(data []byte) (*model.ImageMetadata, error)
}

// EXIFExtractor implements Extractor with go-exif.
type EXIFExtractor struct{}

// NewEXIFExtractor creates an EXIFExtractor.
func NewEXIFExtractor() *EXIFExtractor {
	return &EXIFExtractor{}
}

// Extract implements Extractor.
func (e *EXIFExtractor) Extract(data []byte) (*model.ImageMetadata, error) {
	return Extract(data)
}

// Extract returns the EXIF summary of data. Images without EXIF, or with
// EXIF that carries none of the summarized tags, yield nil and no error.
func Extract(data []byte) (*model.ImageMetadata, error) {
	if len(data) == 0 {
		return nil, nil
	}

	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to locate EXIF block: %w", err)
	}
	if rawExif == nil {
		return nil, nil
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EXIF block: %w", err)
	}

	info := &model.ImageMetadata{}
	var taken, fallback string
	for _, entry := range entries {
		value := clean(entry.Formatted)

		switch entry.TagName {
		case "Make":
			info.CameraMake = value
		case "Model":
			info.CameraModel = value
		case "Software":
			info.Software = value
		case "DateTimeOriginal":
			taken = value
		case "DateTime":
			fallback = value
		case "GPSLatitude", "GPSLongitude":
			info.HasGPS = true
		}
	}

	if taken == "" {
		taken = fallback
	}
	if taken != "" {
		if t, err := time.Parse(exifTimeLayout, taken); err == nil {
			info.TakenAt = t
		}
	}

	if info.IsEmpty() {
		return nil, nil
	}
	return info, nil
}

// clean trims padding that cameras commonly leave in ASCII tags.
func clean(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\x00\"[]"))
}
