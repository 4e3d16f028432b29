package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/imgfetch/internal/fetcher"
	"github.com/nao1215/imgfetch/internal/model"
)

// Step is one stage of URL processing.
type Step interface {
	// Do executes the step. A step that decides the URL's fate calls
	// job.Settle; later steps are then skipped. A returned error is
	// run-fatal and stops the whole batch, so per-URL problems must be
	// settled on the job instead.
	Do(ctx context.Context, job *Job) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// ExclusiveStep is implemented by steps that touch shared batch state.
type ExclusiveStep interface {
	Step

	// Exclusive reports whether the step must run under the pipeline lock.
	Exclusive() bool
}

func isExclusive(step Step) bool {
	es, ok := step.(ExclusiveStep)
	return ok && es.Exclusive()
}

// Job carries one URL through the pipeline.
type Job struct {
	// Index is the URL's position in the batch.
	Index int

	// URL is the URL as supplied.
	URL string

	// Response is set by the fetch step.
	Response *fetcher.Response

	// Fingerprint is set once the response has been accepted.
	Fingerprint model.Fingerprint

	// Metadata is the EXIF summary of the accepted body, if any.
	Metadata *model.ImageMetadata

	// Outcome is the settled result. It is zero until a step settles it.
	Outcome model.Outcome

	started time.Time
}

// NewJob creates a job for the URL at index.
func NewJob(index int, rawURL string) *Job {
	return &Job{Index: index, URL: rawURL, started: time.Now()}
}

// Settle records the job's outcome. Only the first call has an effect.
func (j *Job) Settle(o model.Outcome) {
	if !j.Outcome.IsZero() {
		return
	}
	j.Outcome = o
}

// Done reports whether the outcome has been settled.
func (j *Job) Done() bool {
	return !j.Outcome.IsZero()
}

// finish fills response details and timing into the settled outcome.
func (j *Job) finish() {
	if j.Response != nil {
		if j.Outcome.ContentType == "" {
			j.Outcome.ContentType = j.Response.ContentType
		}
		if j.Outcome.Size == 0 {
			j.Outcome.Size = j.Response.Size()
		}
		if j.Outcome.StatusCode == 0 {
			j.Outcome.StatusCode = j.Response.StatusCode
		}
	}
	if j.Outcome.Fingerprint.IsZero() && !j.Fingerprint.IsZero() && j.Outcome.Kind != model.OutcomeFailed {
		j.Outcome.Fingerprint = j.Fingerprint
	}
	j.Outcome.Duration = time.Since(j.started)
}

// Pipeline runs Steps over a Job in order.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger

	// lock serializes exclusive steps across every job of a batch.
	lock sync.Mutex
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the steps over job until one settles it. It always leaves
// the job settled: a job that passes every step without a verdict, or that
// sees the context cancelled between steps, is settled as failed.
//
// Cancellation is checked before each step, never inside an exclusive
// step, so a file write and its index entry are never split.
//
// The returned error is the run-fatal error of a step, if any.
func (p *Pipeline) Execute(ctx context.Context, job *Job) error {
	locked := false
	unlock := func() {
		if locked {
			p.lock.Unlock()
			locked = false
		}
	}
	defer func() {
		unlock()
		job.finish()
	}()

	for _, step := range p.steps {
		if job.Done() {
			break
		}

		if ctx.Err() != nil {
			p.logger.Debug("job cancelled", "step", step.Name(), "url", job.URL)
			job.Settle(model.Failed(job.Index, job.URL, model.ErrorCancelled, "run cancelled"))
			break
		}

		if isExclusive(step) {
			if !locked {
				p.lock.Lock()
				locked = true
			}
		} else {
			unlock()
		}

		p.logger.Debug("executing step", "step", step.Name(), "url", job.URL)

		if err := step.Do(ctx, job); err != nil {
			p.logger.Error("step failed", "step", step.Name(), "url", job.URL, "error", err)
			job.Settle(model.Failed(job.Index, job.URL, model.ErrorFilesystem, err.Error()))
			return err
		}
	}

	if !job.Done() {
		job.Settle(model.Failed(job.Index, job.URL, model.ErrorFilesystem, "no step produced an outcome"))
	}
	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
