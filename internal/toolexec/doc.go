// Package toolexec runs one external recon tool as a subprocess and records
// the result as an artifact.
//
// The Adapter never returns an error. A missing executable, a spawn failure,
// a non-zero exit status or a timeout all become a model.Outcome, and every
// call writes exactly one file: the tool artifact, or a marker artifact when
// the executable is absent.
package toolexec
