package model

import "time"

// Summary holds the count of each outcome kind in a batch.
type Summary struct {
	Saved     int `json:"saved"`
	Duplicate int `json:"duplicate"`
	Rejected  int `json:"rejected"`
	Failed    int `json:"failed"`
}

// Summarize counts outcomes by kind.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		switch o.Kind {
		case OutcomeSaved:
			s.Saved++
		case OutcomeDuplicate:
			s.Duplicate++
		case OutcomeRejected:
			s.Rejected++
		case OutcomeFailed:
			s.Failed++
		}
	}
	return s
}

// Total returns the number of outcomes counted.
func (s Summary) Total() int {
	return s.Saved + s.Duplicate + s.Rejected + s.Failed
}

// BatchReport is the ordered result of one run.
type BatchReport struct {
	// RunID identifies the run in the catalog.
	RunID string `json:"run_id"`

	// OutputDir is the directory images were saved to.
	OutputDir string `json:"output_dir"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Outcomes holds one entry per input URL, in input order.
	Outcomes []Outcome `json:"outcomes"`

	// Summary counts Outcomes by kind.
	Summary Summary `json:"summary"`

	// Fatal is set when the run stopped on a non-recoverable condition.
	Fatal string `json:"fatal,omitempty"`
}

// NewBatchReport creates a report for the given outcomes and computes its summary.
func NewBatchReport(runID, outputDir string, started time.Time, outcomes []Outcome) *BatchReport {
	return &BatchReport{
		RunID:      runID,
		OutputDir:  outputDir,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Outcomes:   outcomes,
		Summary:    Summarize(outcomes),
	}
}

// Elapsed returns the run duration.
func (r *BatchReport) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
