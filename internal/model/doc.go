// Package model defines the core data structures shared across imgfetch.
//
// This package contains the following main types:
//   - Fingerprint: SHA-256 digest of fetched content, the dedup key
//   - Outcome: the per-URL result of a batch (saved, duplicate, rejected, failed)
//   - Summary: counts of each outcome kind
//   - BatchReport: the ordered outcomes of a single run plus run metadata
//
// Multiple packages (pipeline, report, database) use these types, so they
// live here to avoid import cycles. All types serialize to JSON for report
// output and catalog storage.
package model
