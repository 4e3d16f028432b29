package report

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/nao1215/imgfetch/internal/model"
)

// JSONWriter writes batch reports, and history values, as JSON documents.
type JSONWriter struct {
	baseWriter

	prefix, indent string
	version        string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent indents nested elements with indent, each line starting with
// prefix.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.prefix, w.indent = prefix, indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the program version in the document.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter returns a compact JSONWriter on output unless configured
// otherwise.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport is the document written for a batch: the report itself plus
// the version of imgfetch that produced it.
type JSONReport struct {
	Version string `json:"version,omitempty"`

	*model.BatchReport
}

// Write implements Writer.
func (w *JSONWriter) Write(report *model.BatchReport) (int, error) {
	return w.WriteValue(&JSONReport{Version: w.version, BatchReport: report})
}

// WriteValue encodes v as one document terminated by a newline. Nothing is
// written when encoding fails.
func (w *JSONWriter) WriteValue(v any) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if w.prefix != "" || w.indent != "" {
		enc.SetIndent(w.prefix, w.indent)
	}
	if err := enc.Encode(v); err != nil {
		return 0, err
	}
	return w.output.Write(buf.Bytes())
}
