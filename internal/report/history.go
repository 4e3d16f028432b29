package report

import (
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"

	"github.com/nao1215/imgfetch/internal/database"
)

// HistoryWriter renders catalog contents for the history command.
type HistoryWriter struct {
	baseWriter
	now func() time.Time
}

// NewHistoryWriter creates a HistoryWriter that outputs to the given writer.
func NewHistoryWriter(output io.Writer) *HistoryWriter {
	return &HistoryWriter{
		baseWriter: newBaseWriter(output),
		now:        time.Now,
	}
}

// WriteRuns writes one row per run, newest first as given.
func (w *HistoryWriter) WriteRuns(runs []database.Run) error {
	md := markdown.NewMarkdown(w.output)

	if len(runs) == 0 {
		md.PlainText("No runs recorded yet.")
		return md.Build()
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			shortID(r.ID),
			humanize.RelTime(r.StartedAt, w.now(), "ago", "from now"),
			r.OutputDir,
			strconv.Itoa(r.Summary.Saved),
			strconv.Itoa(r.Summary.Duplicate),
			strconv.Itoa(r.Summary.Rejected),
			strconv.Itoa(r.Summary.Failed),
			runStatus(r),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Run", "Started", "Output", "Saved", "Dup", "Rejected", "Failed", "Status"},
		Rows:   rows,
	})
	return md.Build()
}

// WriteRun writes a run header followed by its recorded fetches.
func (w *HistoryWriter) WriteRun(run *database.Run, fetches []database.FetchRecord) error {
	md := markdown.NewMarkdown(w.output)

	md.H2f("Run %s", run.ID)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Started", run.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", runDuration(run)},
			{"Output Directory", markdown.Code(run.OutputDir)},
			{"Status", runStatus(*run)},
		},
	})
	md.PlainText("")

	if len(fetches) == 0 {
		md.PlainText("No fetches recorded for this run.")
		return md.Build()
	}

	rows := make([][]string, len(fetches))
	for i, f := range fetches {
		detail := f.Cause
		if f.Detail != "" {
			if detail != "" {
				detail += ": "
			}
			detail += f.Detail
		}
		rows[i] = []string{
			strconv.Itoa(f.Index + 1),
			truncateString(f.URL, 60),
			kindText(f.Kind),
			orDash(truncateString(detail, 60)),
			orDash(f.Path),
			sizeText(f.Size),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"#", "URL", "Result", "Detail", "File", "Size"},
		Rows:   rows,
	})
	return md.Build()
}

// WriteMatches writes every recorded fetch of a fingerprint.
func (w *HistoryWriter) WriteMatches(fetches []database.FetchRecord) error {
	md := markdown.NewMarkdown(w.output)

	if len(fetches) == 0 {
		md.PlainText("No fetches recorded for this content.")
		return md.Build()
	}

	rows := make([][]string, len(fetches))
	for i, f := range fetches {
		rows[i] = []string{
			shortID(f.RunID),
			f.RecordedAt.Format("2006-01-02 15:04:05"),
			truncateString(f.URL, 60),
			kindText(f.Kind),
			orDash(f.Path),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Run", "Recorded", "URL", "Result", "File"},
		Rows:   rows,
	})
	return md.Build()
}

func runStatus(r database.Run) string {
	switch {
	case r.Fatal != "":
		return "aborted: " + r.Fatal
	case !r.Finished():
		return "incomplete"
	default:
		return "complete"
	}
}

func runDuration(r *database.Run) string {
	if !r.Finished() {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}

// shortID returns the first UUID group, which is enough for GetRun's
// prefix lookup in practice.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
