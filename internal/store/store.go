// Package store owns the output directory. New image files are written
// without ever overwriting an existing name.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nao1215/imgfetch/internal/hashindex"
)

const (
	dirMode  = 0o750
	fileMode = 0o644

	// tempPrefix marks in-progress writes. Such files are never reported
	// by Names.
	tempPrefix = ".imgfetch-tmp-"
)

var (
	// ErrExists is returned by Write when the target name is already taken.
	ErrExists = errors.New("file already exists")

	// ErrInvalidName is returned for names that are empty or not a single
	// path element.
	ErrInvalidName = errors.New("invalid file name")
)

// Store is an output directory.
type Store struct {
	dir       string
	indexName string
}

// Open returns the store rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty output directory", ErrInvalidName)
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access output directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("output path %s is not a directory", dir)
	}

	return &Store{dir: dir, indexName: hashindex.DefaultFileName}, nil
}

// Dir returns the directory path.
func (s *Store) Dir() string {
	return s.dir
}

// IndexPath returns the path of the hash index file inside the directory.
func (s *Store) IndexPath() string {
	return filepath.Join(s.dir, s.indexName)
}

// Path returns the full path for name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Names returns the set of file names currently in the directory, excluding
// the hash index and in-progress temp files.
func (s *Store) Names() (map[string]struct{}, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list output directory: %w", err)
	}

	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		name := e.Name()
		if name == s.indexName || strings.HasPrefix(name, tempPrefix) {
			continue
		}
		names[name] = struct{}{}
	}
	return names, nil
}

// List returns the sorted names of regular files in the directory,
// excluding the hash index and temp files.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list output directory: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || name == s.indexName || strings.HasPrefix(name, tempPrefix) {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

// Write stores data under name and returns the full path. The data is
// written to a temp file, synced, then hard-linked to its final name, so a
// concurrent writer or an earlier file with the same name is never
// overwritten: in that case ErrExists is returned and nothing is left behind.
func (s *Store) Write(name string, data []byte) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || name == s.indexName {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // the temp name is always removed, linked or not

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to set permissions on %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}

	final := s.Path(name)
	if err := os.Link(tmpPath, final); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrExists, name)
		}
		return "", fmt.Errorf("failed to place %s: %w", name, err)
	}
	return final, nil
}

// Remove deletes name from the directory. A missing file is not an error.
func (s *Store) Remove(name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}
