// Package pipeline turns a list of URLs into one outcome per URL.
//
// Each URL becomes a Job that passes through a Pipeline of Steps: fetch,
// validate and fingerprint, metadata extraction, deduplication against the
// hash index, and persistence to the output directory. A step settles the
// job's outcome when it has nothing more to contribute, and the remaining
// steps are skipped.
//
// Steps that read or change shared state (the hash index and the directory
// listing) report themselves as exclusive. A Pipeline serializes every run of
// its exclusive steps under one lock, held from the first exclusive step to
// the last, so check-then-insert on the index and resolve-then-write on the
// directory stay atomic even when a Processor runs many jobs at once.
//
// The Processor drives a batch with errgroup and a concurrency limit, keeps
// outcomes in input order, and stops scheduling new URLs after a run-fatal
// error or cancellation. Orchestrator wires the whole thing to an output
// directory.
package pipeline
