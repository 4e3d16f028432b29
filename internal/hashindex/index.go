package hashindex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/nao1215/imgfetch/internal/model"
)

// DefaultFileName is the index file name inside the output directory.
const DefaultFileName = ".imgfetch_index"

// fileMode is the permission used for the index file.
const fileMode = 0o600

// ErrLineTooLong marks an index line longer than any fingerprint could be.
var ErrLineTooLong = errors.New("index line too long")

// CorruptIndexEntryError describes a line of the index file that is not a
// valid fingerprint.
type CorruptIndexEntryError struct {
	// Line is the 1-based line number.
	Line int

	// Content is the raw line content.
	Content string

	// Err is the parse error.
	Err error
}

// Error implements error.
func (e *CorruptIndexEntryError) Error() string {
	return fmt.Sprintf("corrupt index entry at line %d: %q: %v", e.Line, e.Content, e.Err)
}

// Unwrap returns the underlying parse error.
func (e *CorruptIndexEntryError) Unwrap() error {
	return e.Err
}

// Index is a set of fingerprints. It is safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	hashes map[model.Fingerprint]struct{}
}

// New returns an empty index.
func New() *Index {
	return &Index{hashes: make(map[model.Fingerprint]struct{})}
}

// Contains reports whether fp is in the index.
func (idx *Index) Contains(fp model.Fingerprint) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.hashes[fp]
	return ok
}

// Insert adds fp to the index and reports whether it was newly added.
// Inserting a fingerprint that is already present is a no-op.
func (idx *Index) Insert(fp model.Fingerprint) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.hashes[fp]; ok {
		return false
	}
	idx.hashes[fp] = struct{}{}
	return true
}

// Len returns the number of fingerprints.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.hashes)
}

// Fingerprints returns all fingerprints sorted by hex value.
func (idx *Index) Fingerprints() []model.Fingerprint {
	idx.mu.RLock()
	out := make([]model.Fingerprint, 0, len(idx.hashes))
	for fp := range idx.hashes {
		out = append(out, fp)
	}
	idx.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.Fingerprint) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}

// Load reads the index at path.
// A missing file yields an empty index. Malformed lines are skipped; each one
// is logged as a warning and returned as a *CorruptIndexEntryError so the
// caller can decide whether to compact the file. Blank lines are ignored.
func Load(path string, logger *slog.Logger) (*Index, []*CorruptIndexEntryError, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path) //nolint:gosec // path is the configured output directory
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("hash index not found, starting empty", "path", path)
			return New(), nil, nil
		}
		return nil, nil, fmt.Errorf("failed to open hash index: %w", err)
	}
	defer f.Close()

	idx, corrupt, err := read(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read hash index %s: %w", path, err)
	}

	for _, c := range corrupt {
		logger.Warn("skipping corrupt hash index entry",
			"path", path,
			"line", c.Line,
			"content", c.Content,
		)
	}

	logger.Debug("hash index loaded", "path", path, "entries", idx.Len(), "corrupt", len(corrupt))
	return idx, corrupt, nil
}

// maxContent bounds the Content kept for a corrupt entry.
const maxContent = 128

// read parses index lines from r. Lines of any length are accepted; an
// overlong line is reported as corrupt with its Content truncated.
func read(r io.Reader) (*Index, []*CorruptIndexEntryError, error) {
	idx := New()
	var corrupt []*CorruptIndexEntryError

	br := bufio.NewReader(r)
	line := 0
	for {
		head, overlong, err := readLine(br)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, nil, err
		}
		atEOF := errors.Is(err, io.EOF)
		if atEOF && head == "" && !overlong {
			break
		}
		line++

		text := strings.TrimSpace(head)
		switch {
		case overlong:
			corrupt = append(corrupt, &CorruptIndexEntryError{Line: line, Content: truncate(text), Err: ErrLineTooLong})
		case text == "":
		default:
			fp, perr := model.ParseFingerprint(text)
			if perr != nil {
				corrupt = append(corrupt, &CorruptIndexEntryError{Line: line, Content: truncate(text), Err: perr})
				break
			}
			idx.hashes[fp] = struct{}{}
		}

		if atEOF {
			break
		}
	}

	return idx, corrupt, nil
}

// readLine returns the first bufio buffer's worth of the next line and
// discards the rest. overlong is set when the line did not fit.
func readLine(br *bufio.Reader) (string, bool, error) {
	chunk, err := br.ReadSlice('\n')
	head := strings.TrimSuffix(string(chunk), "\n")
	if !errors.Is(err, bufio.ErrBufferFull) {
		return head, false, err
	}
	for errors.Is(err, bufio.ErrBufferFull) {
		_, err = br.ReadSlice('\n')
	}
	return head, true, err
}

// truncate shortens s to maxContent bytes for reporting.
func truncate(s string) string {
	if len(s) <= maxContent {
		return s
	}
	return s[:maxContent] + "..."
}

// Persist rewrites the whole index file at path with the current contents.
// The file is replaced atomically via a temporary file in the same directory.
func (idx *Index) Persist(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".imgfetch_index-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary index file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	w := bufio.NewWriter(tmp)
	for _, fp := range idx.Fingerprints() {
		if _, err := w.WriteString(fp.String() + "\n"); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("failed to write hash index: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write hash index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync hash index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close hash index: %w", err)
	}
	if err := os.Chmod(tmpPath, fileMode); err != nil {
		return fmt.Errorf("failed to set hash index permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace hash index: %w", err)
	}
	return nil
}

// Append adds a single fingerprint line to the index file at path and syncs
// it to disk. The file is created if it does not exist.
func Append(path string, fp model.Fingerprint) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, fileMode) //nolint:gosec // path is the configured output directory
	if err != nil {
		return fmt.Errorf("failed to open hash index for append: %w", err)
	}

	line := fp.String() + "\n"

	// A hand-edited file may lack the trailing newline.
	if st, err := f.Stat(); err == nil && st.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, st.Size()-1); err == nil && last[0] != '\n' {
			line = "\n" + line
		}
	}

	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append to hash index: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync hash index: %w", err)
	}
	return f.Close()
}
