// Package filename derives safe, unique on-disk names for fetched images.
//
// Candidate builds a sanitized base name from a Content-Disposition header or
// the URL path, falling back to a synthetic name derived from a short hash of
// the URL. Resolve then disambiguates the candidate against the names already
// present in the output directory by suffixing a counter before the
// extension. Both functions are pure; the caller supplies the directory
// listing.
package filename
