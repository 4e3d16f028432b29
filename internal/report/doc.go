// Package report renders the outcomes of a fetch run.
//
// This package contains writers for different output formats:
//   - SimpleWriter: one status line per URL plus a summary, for terminals
//   - JSONWriter: the whole BatchReport as JSON, for scripts
//   - MarkdownWriter: a shareable Markdown document with tables and a chart
//
// Writers implement the Writer interface and can be combined with
// MultiWriter, for example to print to the terminal and save a Markdown
// file in one go. The history functions render catalog runs.
package report
