package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nao1215/imgfetch/internal/model"
)

// SimpleWriter prints one status line per URL in input order, followed by
// a summary line.
type SimpleWriter struct {
	baseWriter

	// verbose adds fingerprints and image metadata under each line.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer.
func (w *SimpleWriter) Write(report *model.BatchReport) (int, error) {
	var sb strings.Builder

	for _, o := range report.Outcomes {
		w.writeOutcome(&sb, o)
	}

	if len(report.Outcomes) > 0 {
		sb.WriteString(strings.Repeat("-", 70))
		sb.WriteString("\n")
	}
	w.writeSummary(&sb, report)

	return io.WriteString(w.output, sb.String())
}

// writeOutcome writes the status line of one URL.
func (w *SimpleWriter) writeOutcome(sb *strings.Builder, o model.Outcome) {
	sb.WriteString(o.StatusLine())
	if o.Kind == model.OutcomeSaved && o.Size > 0 {
		fmt.Fprintf(sb, " (%s)", humanize.Bytes(uint64(o.Size)))
	}
	sb.WriteString("\n")

	if !w.verbose {
		return
	}
	if !o.Fingerprint.IsZero() {
		fmt.Fprintf(sb, "           sha256: %s\n", o.Fingerprint)
	}
	if o.Kind == model.OutcomeSaved && o.ContentType != "" {
		fmt.Fprintf(sb, "           type:   %s\n", o.ContentType)
	}
	if m := o.Metadata; !m.IsEmpty() {
		if camera := strings.TrimSpace(m.CameraMake + " " + m.CameraModel); camera != "" {
			fmt.Fprintf(sb, "           camera: %s\n", camera)
		}
		if m.Software != "" {
			fmt.Fprintf(sb, "           software: %s\n", m.Software)
		}
		if !m.TakenAt.IsZero() {
			fmt.Fprintf(sb, "           taken:  %s (%s)\n", m.TakenAt.Format("2006-01-02 15:04:05"), humanize.Time(m.TakenAt))
		}
		if m.HasGPS {
			sb.WriteString("           gps:    present\n")
		}
	}
}

// writeSummary writes the closing counts line and the fatal error, if any.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.BatchReport) {
	s := report.Summary
	fmt.Fprintf(sb, "saved %d, duplicate %d, rejected %d, failed %d",
		s.Saved, s.Duplicate, s.Rejected, s.Failed)

	if s.Saved > 0 {
		fmt.Fprintf(sb, "; %s written to %s", humanize.Bytes(savedBytes(report)), report.OutputDir)
	}
	if elapsed := report.Elapsed(); elapsed > 0 {
		fmt.Fprintf(sb, " in %s", elapsed.Round(time.Millisecond))
	}
	sb.WriteString("\n")

	if report.Fatal != "" {
		fmt.Fprintf(sb, "aborted: %s\n", report.Fatal)
	}
}
