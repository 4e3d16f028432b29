// Package hashindex provides the persistent set of content fingerprints that
// imgfetch has already saved.
//
// The index lives in a sidecar file inside the output directory with one
// lowercase hexadecimal SHA-256 fingerprint per line. It is loaded once when
// a run starts, mutated in memory, and each new fingerprint is appended to the
// file right after the corresponding image is written. A crash mid-batch
// therefore loses at most the in-flight image and never records a fingerprint
// whose file was not written.
//
// Malformed lines are skipped with a warning instead of failing the load, so
// partial corruption never disables deduplication for the remaining entries.
package hashindex
