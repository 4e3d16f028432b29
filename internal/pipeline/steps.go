//go:generate mockgen -destination=./mocks/pipeline.go . Fetcher,Validator,Recorder

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/imgfetch/internal/fetcher"
	"github.com/nao1215/imgfetch/internal/filename"
	"github.com/nao1215/imgfetch/internal/hashindex"
	"github.com/nao1215/imgfetch/internal/metadata"
	"github.com/nao1215/imgfetch/internal/model"
	"github.com/nao1215/imgfetch/internal/store"
	"github.com/nao1215/imgfetch/internal/validator"
)

// ErrIndexPersist is returned when a saved file's fingerprint could not be
// appended to the hash index. The run cannot continue safely after it.
var ErrIndexPersist = errors.New("failed to persist hash index")

// maxWriteAttempts bounds how often PersistStep re-resolves a name after
// losing a race for it.
const maxWriteAttempts = 5

// Fetcher retrieves one URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Response, error)
}

// Validator applies the acceptance policy to a response.
type Validator interface {
	Check(contentType string, size int64, rawURL string) validator.Verdict
}

// FetchStep validates the URL syntax and downloads it.
type FetchStep struct {
	fetcher Fetcher
}

// NewFetchStep creates a FetchStep.
func NewFetchStep(f Fetcher) *FetchStep {
	return &FetchStep{fetcher: f}
}

// Name returns the step name.
func (s *FetchStep) Name() string {
	return "fetch"
}

// Do executes the fetch step.
func (s *FetchStep) Do(ctx context.Context, job *Job) error {
	if _, err := model.ValidateURL(job.URL); err != nil {
		job.Settle(model.Failed(job.Index, job.URL, model.ErrorInvalidURL, err.Error()))
		return nil
	}

	resp, err := s.fetcher.Fetch(ctx, job.URL)
	if err != nil {
		out := model.Failed(job.Index, job.URL, fetcher.KindOf(err), err.Error())
		var fe *fetcher.Error
		if errors.As(err, &fe) {
			out.Detail = fe.Detail()
			out.StatusCode = fe.StatusCode
		}
		job.Settle(out)
		return nil
	}

	job.Response = resp
	return nil
}

// ValidateStep applies the acceptance policy and fingerprints accepted
// content.
type ValidateStep struct {
	validator Validator
}

// NewValidateStep creates a ValidateStep.
func NewValidateStep(v Validator) *ValidateStep {
	return &ValidateStep{validator: v}
}

// Name returns the step name.
func (s *ValidateStep) Name() string {
	return "validate"
}

// Do executes the validate step.
func (s *ValidateStep) Do(_ context.Context, job *Job) error {
	resp := job.Response
	if resp == nil {
		return nil
	}

	verdict := s.validator.Check(resp.ContentType, resp.Size(), job.URL)
	if !verdict.Accepted {
		job.Settle(model.Rejected(job.Index, job.URL, verdict.Reason, verdict.Detail))
		return nil
	}

	job.Fingerprint = model.ComputeFingerprint(resp.Body)
	return nil
}

// MetadataStep extracts an EXIF summary from accepted content. Extraction
// problems are logged and never change the outcome.
type MetadataStep struct {
	extractor metadata.Extractor
	logger    *slog.Logger
}

// NewMetadataStep creates a MetadataStep.
func NewMetadataStep(e metadata.Extractor, logger *slog.Logger) *MetadataStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataStep{extractor: e, logger: logger}
}

// Name returns the step name.
func (s *MetadataStep) Name() string {
	return "metadata"
}

// Do executes the metadata step.
func (s *MetadataStep) Do(_ context.Context, job *Job) error {
	if job.Response == nil {
		return nil
	}

	info, err := s.extractor.Extract(job.Response.Body)
	if err != nil {
		s.logger.Debug("metadata extraction failed", "url", job.URL, "error", err)
		return nil
	}
	job.Metadata = info
	return nil
}

// DedupStep settles content already in the hash index as a duplicate.
type DedupStep struct {
	index *hashindex.Index
}

// NewDedupStep creates a DedupStep.
func NewDedupStep(idx *hashindex.Index) *DedupStep {
	return &DedupStep{index: idx}
}

// Name returns the step name.
func (s *DedupStep) Name() string {
	return "dedup"
}

// Exclusive implements ExclusiveStep.
func (s *DedupStep) Exclusive() bool {
	return true
}

// Do executes the dedup step.
func (s *DedupStep) Do(_ context.Context, job *Job) error {
	if job.Fingerprint.IsZero() {
		return nil
	}
	if s.index.Contains(job.Fingerprint) {
		job.Settle(model.Duplicate(job.Index, job.URL, job.Fingerprint))
	}
	return nil
}

// PersistStep writes accepted, unseen content under a free filename and
// records its fingerprint.
type PersistStep struct {
	store     *store.Store
	index     *hashindex.Index
	indexPath string
	logger    *slog.Logger
}

// NewPersistStep creates a PersistStep that appends to the index file at
// st.IndexPath().
func NewPersistStep(st *store.Store, idx *hashindex.Index, logger *slog.Logger) *PersistStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStep{store: st, index: idx, indexPath: st.IndexPath(), logger: logger}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Exclusive implements ExclusiveStep.
func (s *PersistStep) Exclusive() bool {
	return true
}

// Do executes the persist step. A file that cannot be written fails only
// this URL. A file that was written but whose fingerprint cannot be
// appended to the index is removed again and the error is returned, which
// aborts the run.
func (s *PersistStep) Do(_ context.Context, job *Job) error {
	resp := job.Response
	if resp == nil || job.Fingerprint.IsZero() {
		return nil
	}

	candidate := filename.Candidate(job.URL, resp.ContentDisposition, resp.ContentType)

	name, path, err := s.write(candidate, resp.Body)
	if err != nil {
		job.Settle(model.Failed(job.Index, job.URL, model.ErrorFilesystem, err.Error()))
		return nil
	}

	if err := hashindex.Append(s.indexPath, job.Fingerprint); err != nil {
		if rmErr := s.store.Remove(name); rmErr != nil {
			s.logger.Error("failed to remove file after index failure", "path", path, "error", rmErr)
		}
		return fmt.Errorf("%w: %w", ErrIndexPersist, err)
	}
	s.index.Insert(job.Fingerprint)

	out := model.Saved(job.Index, job.URL, path, job.Fingerprint)
	out.Metadata = job.Metadata
	job.Settle(out)

	s.logger.Info("saved", "url", job.URL, "path", path, "fingerprint", job.Fingerprint.Short())
	return nil
}

// write resolves candidate against the current listing and writes data,
// re-resolving if another process takes the name first.
func (s *PersistStep) write(candidate string, data []byte) (string, string, error) {
	existing, err := s.store.Names()
	if err != nil {
		return "", "", err
	}

	var lastErr error
	for range maxWriteAttempts {
		name := filename.Resolve(candidate, existing)
		path, err := s.store.Write(name, data)
		if err == nil {
			return name, path, nil
		}
		if !errors.Is(err, store.ErrExists) {
			return "", "", err
		}
		lastErr = err
		existing[name] = struct{}{}
	}
	return "", "", lastErr
}
