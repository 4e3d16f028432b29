// Package database provides the SQLite catalog of fetch runs.
//
// The catalog stores:
//   - Runs, with their output directory, start and finish times and counts
//   - Every per-URL outcome of a run, including fingerprints and EXIF summaries
//
// It backs the history command and lets a fingerprint be traced back to the
// URLs that produced it. The hash index file in each output directory, not
// this database, decides what counts as a duplicate.
//
// SQLite is accessed through modernc.org/sqlite, a CGO-free driver, with WAL
// journaling enabled by default.
package database
