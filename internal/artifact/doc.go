// Package artifact manages the line-oriented files that pipeline stages
// produce and consume.
//
// An artifact is written once, atomically (temporary file plus rename), so a
// concurrent reader never observes a partially written file. Tool artifacts
// carry the tool's standard output first; diagnostic text (standard error,
// spawn failures) follows a separator line. ReadLines stops at the first
// separator so diagnostics never leak into downstream inputs.
//
// The package also implements the merge engine, which combines several
// artifacts into one deduplicated, lexicographically sorted artifact, and
// the run index writer.
package artifact
