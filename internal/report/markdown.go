package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/imgfetch/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is meant for sharing a run's results in issues or wikis.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(report *model.BatchReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeOutcomes(md, report)
	w.writeMetadata(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.BatchReport) {
	md.H1("imgfetch Report")
	md.PlainText("")

	rows := [][]string{
		{"Output Directory", markdown.Code(report.OutputDir)},
		{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Duration", report.Elapsed().Round(time.Millisecond).String()},
		{"URLs", strconv.Itoa(report.Summary.Total())},
		{"Status", statusText(report)},
	}
	if report.RunID != "" {
		rows = append([][]string{{"Run ID", markdown.Code(report.RunID)}}, rows...)
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// statusText returns the status text based on report state.
func statusText(report *model.BatchReport) string {
	if report.Fatal != "" {
		return "❌ Aborted - " + report.Fatal
	}
	if report.Summary.Failed > 0 {
		return "⚠️ Completed with failures"
	}
	return "✅ Complete"
}

// writeSummary writes the outcome counts, a pie chart and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.BatchReport) {
	s := report.Summary

	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"🟢 Saved", strconv.Itoa(s.Saved)},
			{"🔵 Duplicate", strconv.Itoa(s.Duplicate)},
			{"🟡 Rejected", strconv.Itoa(s.Rejected)},
			{"🔴 Failed", strconv.Itoa(s.Failed)},
			{"**Total**", "**" + strconv.Itoa(s.Total()) + "**"},
		},
	})
	md.PlainText("")

	if s.Saved > 0 {
		md.PlainTextf("%s written to %s.", humanize.Bytes(savedBytes(report)), markdown.Code(report.OutputDir))
		md.PlainText("")
	}

	if s.Total() > 1 {
		w.writePieChart(md, s)
	}

	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of the outcome distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Outcome Distribution"),
		piechart.WithShowData(true),
	)

	counts := []struct {
		label string
		n     int
	}{
		{"Saved", s.Saved},
		{"Duplicate", s.Duplicate},
		{"Rejected", s.Rejected},
		{"Failed", s.Failed},
	}
	for _, c := range counts {
		if c.n > 0 {
			chart.LabelAndIntValue(c.label, uint64(c.n))
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching how the run went.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.BatchReport) {
	s := report.Summary
	switch {
	case report.Fatal != "":
		md.Cautionf("The run was aborted: %s. URLs that did not finish are reported as cancelled.", report.Fatal)
	case s.Failed > 0:
		md.Warningf("%d URL(s) could not be fetched or stored.", s.Failed)
	case s.Rejected > 0:
		md.Notef("%d response(s) were not accepted as images.", s.Rejected)
	case s.Total() > 0 && s.Saved == s.Total():
		md.Tip("Every URL produced a new image.")
	case s.Total() > 0:
		md.Note("No new content was saved.")
	default:
		md.Note("No URLs were processed.")
	}
	md.PlainText("")
}

// writeOutcomes writes one table row per URL in input order.
func (w *MarkdownWriter) writeOutcomes(md *markdown.Markdown, report *model.BatchReport) {
	md.H2("Outcomes")
	md.PlainText("")

	if len(report.Outcomes) == 0 {
		md.PlainText("No URLs were processed.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Outcomes))
	for i, o := range report.Outcomes {
		rows[i] = []string{
			strconv.Itoa(o.Index + 1),
			truncateString(o.URL, 60),
			kindText(o.Kind),
			orDash(outcomeDetail(o)),
			orDash(o.Path),
			sizeText(o.Size),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"#", "URL", "Result", "Detail", "File", "Size"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeMetadata writes a collapsible section per saved image with EXIF data.
func (w *MarkdownWriter) writeMetadata(md *markdown.Markdown, report *model.BatchReport) {
	var wrote bool
	for _, o := range report.Outcomes {
		m := o.Metadata
		if m.IsEmpty() {
			continue
		}
		if !wrote {
			md.H2("Image Metadata")
			md.PlainText("")
			wrote = true
		}

		var lines []string
		if camera := strings.TrimSpace(m.CameraMake + " " + m.CameraModel); camera != "" {
			lines = append(lines, "Camera: "+camera)
		}
		if m.Software != "" {
			lines = append(lines, "Software: "+m.Software)
		}
		if !m.TakenAt.IsZero() {
			lines = append(lines, "Taken: "+m.TakenAt.Format("2006-01-02 15:04:05"))
		}
		if m.HasGPS {
			lines = append(lines, "GPS coordinates present")
		}
		md.Details(o.Path, strings.Join(lines, "<br>"))
	}
	if wrote {
		md.PlainText("")
	}
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [imgfetch](https://github.com/nao1215/imgfetch)*")
}

// kindText decorates an outcome kind for tables.
func kindText(kind model.OutcomeKind) string {
	switch kind {
	case model.OutcomeSaved:
		return "🟢 saved"
	case model.OutcomeDuplicate:
		return "🔵 duplicate"
	case model.OutcomeRejected:
		return "🟡 rejected"
	case model.OutcomeFailed:
		return "🔴 failed"
	default:
		return string(kind)
	}
}

// outcomeDetail returns the cause and explanation of an outcome, or the
// short fingerprint for duplicates.
func outcomeDetail(o model.Outcome) string {
	switch o.Kind {
	case model.OutcomeDuplicate:
		return "content " + o.Fingerprint.Short()
	case model.OutcomeRejected, model.OutcomeFailed:
		cause := o.Cause()
		if o.Detail != "" {
			cause += ": " + o.Detail
		}
		return truncateString(cause, 60)
	default:
		return ""
	}
}

// sizeText formats a byte count, or "-" when nothing was received.
func sizeText(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
