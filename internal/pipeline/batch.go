package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/imgfetch/internal/model"
)

// DefaultConcurrency processes one URL at a time, which keeps duplicate
// detection within a batch deterministic.
const DefaultConcurrency = 1

// Recorder receives every outcome of a batch, in input order, after the
// batch finishes. The catalog implements it.
type Recorder interface {
	Record(ctx context.Context, o model.Outcome) error
}

// Processor runs a Pipeline over a batch of URLs.
type Processor struct {
	pipeline    *Pipeline
	concurrency int
	logger      *slog.Logger
	recorder    Recorder
}

// BatchOption configures a Processor.
type BatchOption func(*Processor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *Processor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of URLs in flight.
func WithConcurrency(n int) BatchOption {
	return func(b *Processor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithRecorder sets a Recorder. Recorder errors are logged and never
// change an outcome.
func WithRecorder(r Recorder) BatchOption {
	return func(b *Processor) {
		b.recorder = r
	}
}

// NewProcessor creates a Processor for p.
func NewProcessor(p *Pipeline, opts ...BatchOption) *Processor {
	bp := &Processor{
		pipeline:    p,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// Run processes urls and returns exactly one outcome per URL, in input
// order. The error is the first run-fatal error; after it no new URL is
// started and every URL that did not finish is reported as cancelled.
// Cancelling ctx has the same effect without an error.
func (bp *Processor) Run(ctx context.Context, urls []string) ([]model.Outcome, error) {
	bp.logger.Info("starting batch", "total_urls", len(urls), "concurrency", bp.concurrency)
	startTime := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Each goroutine writes only its own slot.
	results := make([]model.Outcome, len(urls))

	var (
		fatalOnce sync.Once
		fatalErr  error
	)

	g := new(errgroup.Group)
	g.SetLimit(bp.concurrency)

	for i, rawURL := range urls {
		if runCtx.Err() != nil {
			break
		}

		g.Go(func() error {
			job := NewJob(i, rawURL)
			if err := bp.pipeline.Execute(runCtx, job); err != nil {
				fatalOnce.Do(func() {
					fatalErr = err
					cancel()
				})
			}
			results[i] = job.Outcome

			bp.logger.Info("url processed",
				"index", i+1,
				"total", len(urls),
				"url", rawURL,
				"outcome", job.Outcome.Kind,
				"cause", job.Outcome.Cause(),
			)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	for i := range results {
		if results[i].IsZero() {
			results[i] = model.Failed(i, urls[i], model.ErrorCancelled, "run cancelled")
		}
	}

	bp.record(ctx, results)

	bp.logger.Info("batch complete",
		"total_urls", len(urls),
		"elapsed", time.Since(startTime),
	)

	return results, fatalErr
}

func (bp *Processor) record(ctx context.Context, results []model.Outcome) {
	if bp.recorder == nil {
		return
	}
	// Record even when the run was cancelled.
	ctx = context.WithoutCancel(ctx)
	for _, o := range results {
		if err := bp.recorder.Record(ctx, o); err != nil {
			bp.logger.Warn("failed to record outcome", "url", o.URL, "error", err)
		}
	}
}
