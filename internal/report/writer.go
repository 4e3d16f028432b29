package report

import (
	"io"

	"github.com/nao1215/imgfetch/internal/model"
)

// Writer renders a batch report.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.BatchReport) (int, error)
}

// MultiWriter writes to multiple Writers in turn.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers and returns the total
// bytes written. It stops on the first error.
func (m *MultiWriter) Write(report *model.BatchReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// savedBytes sums the size of saved outcomes.
func savedBytes(report *model.BatchReport) uint64 {
	var total uint64
	for _, o := range report.Outcomes {
		if o.Kind == model.OutcomeSaved && o.Size > 0 {
			total += uint64(o.Size)
		}
	}
	return total
}
