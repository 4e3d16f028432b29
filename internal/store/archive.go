package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
)

// ErrUnknownArchiveFormat is returned for archive names without a supported
// extension.
var ErrUnknownArchiveFormat = errors.New("unknown archive format (use .tar, .tar.gz, .tgz or .zip)")

// ValidateArchiveName reports ErrUnknownArchiveFormat when name has no
// supported archive extension.
func ValidateArchiveName(name string) error {
	_, err := archiverFor(name)
	return err
}

// Contains reports whether path lies inside the output directory.
func (s *Store) Contains(path string) bool {
	rel, err := filepath.Rel(resolve(s.dir), resolve(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// resolve returns the absolute, symlink-free form of p. Components that do
// not exist yet are kept as given below their nearest existing ancestor.
func resolve(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	parent := filepath.Dir(p)
	if parent == p {
		return p
	}
	return filepath.Join(resolve(parent), filepath.Base(p))
}

// archiverFor picks the archive format from the file name.
func archiverFor(name string) (archives.Archiver, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return archives.CompressedArchive{Compression: archives.Gz{}, Archival: archives.Tar{}}, nil
	case strings.HasSuffix(lower, ".tar"):
		return archives.Tar{}, nil
	case strings.HasSuffix(lower, ".zip"):
		return archives.Zip{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownArchiveFormat, path.Base(name))
	}
}

// Archive writes every saved image, plus the hash index when there is one,
// to w in the format implied by name. Extracting the archive into an empty
// directory yields an output directory that still knows its content.
// It returns the number of images archived.
func (s *Store) Archive(ctx context.Context, w io.Writer, name string) (int, error) {
	archiver, err := archiverFor(name)
	if err != nil {
		return 0, err
	}

	images, err := s.List()
	if err != nil {
		return 0, err
	}

	// The archive itself may live in the directory when name points there.
	self, _ := os.Stat(name) //nolint:errcheck // a missing archive has nothing to skip

	onDisk := make(map[string]string, len(images)+1)
	count := 0
	for _, img := range images {
		if self != nil {
			if info, err := os.Stat(s.Path(img)); err == nil && os.SameFile(self, info) {
				continue
			}
		}
		onDisk[s.Path(img)] = img
		count++
	}
	if _, err := os.Stat(s.IndexPath()); err == nil {
		onDisk[s.IndexPath()] = s.indexName
	}

	files, err := archives.FilesFromDisk(ctx, nil, onDisk)
	if err != nil {
		return 0, fmt.Errorf("failed to read output directory: %w", err)
	}
	if err := archiver.Archive(ctx, w, files); err != nil {
		return 0, fmt.Errorf("failed to write archive: %w", err)
	}
	return count, nil
}
