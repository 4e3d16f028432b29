package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/imgfetch/internal/fetcher"
	"github.com/nao1215/imgfetch/internal/hashindex"
	"github.com/nao1215/imgfetch/internal/metadata"
	"github.com/nao1215/imgfetch/internal/model"
	"github.com/nao1215/imgfetch/internal/store"
	"github.com/nao1215/imgfetch/internal/validator"
)

// ErrOutputDir is returned when the output directory or its hash index
// cannot be used. Nothing is fetched in that case.
var ErrOutputDir = errors.New("output directory unusable")

// OrchestratorConfig holds the collaborators of an Orchestrator. Nil fields
// get defaults: a default Fetcher and Validator, no metadata extraction and
// no recorder.
type OrchestratorConfig struct {
	Fetcher     Fetcher
	Validator   Validator
	Extractor   metadata.Extractor
	Recorder    Recorder
	Concurrency int
	Logger      *slog.Logger
}

// Orchestrator processes URL batches into one output directory.
type Orchestrator struct {
	store     *store.Store
	index     *hashindex.Index
	processor *Processor
	logger    *slog.Logger
}

// NewOrchestrator opens outputDir, creating it if needed, and loads its hash
// index. Corrupt index lines are skipped and the file is rewritten without
// them. Any failure here is run-fatal and wraps ErrOutputDir.
func NewOrchestrator(outputDir string, cfg OrchestratorConfig) (*Orchestrator, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(outputDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutputDir, err)
	}

	idx, corrupt, err := hashindex.Load(st.IndexPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutputDir, err)
	}
	if len(corrupt) > 0 {
		if err := idx.Persist(st.IndexPath()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOutputDir, err)
		}
		logger.Warn("hash index compacted", "path", st.IndexPath(), "dropped_lines", len(corrupt))
	}

	f := cfg.Fetcher
	if f == nil {
		f = fetcher.New(fetcher.WithLogger(logger))
	}
	v := cfg.Validator
	if v == nil {
		v = validator.New()
	}

	p := New(WithLogger(logger))
	p.AddStep(NewFetchStep(f))
	p.AddStep(NewValidateStep(v))
	if cfg.Extractor != nil {
		p.AddStep(NewMetadataStep(cfg.Extractor, logger))
	}
	p.AddSteps(
		NewDedupStep(idx),
		NewPersistStep(st, idx, logger),
	)

	opts := []BatchOption{WithBatchLogger(logger), WithConcurrency(cfg.Concurrency)}
	if cfg.Recorder != nil {
		opts = append(opts, WithRecorder(cfg.Recorder))
	}

	return &Orchestrator{
		store:     st,
		index:     idx,
		processor: NewProcessor(p, opts...),
		logger:    logger,
	}, nil
}

// Run processes urls. See Processor.Run.
func (o *Orchestrator) Run(ctx context.Context, urls []string) ([]model.Outcome, error) {
	return o.processor.Run(ctx, urls)
}

// OutputDir returns the output directory.
func (o *Orchestrator) OutputDir() string {
	return o.store.Dir()
}

// IndexLen returns the number of fingerprints currently known.
func (o *Orchestrator) IndexLen() int {
	return o.index.Len()
}
