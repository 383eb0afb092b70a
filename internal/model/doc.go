// Package model defines the data structures shared by the pipeline, the
// report writers and the history database.
//
// This package contains the following main types:
//   - Outcome: The settled state of one tool invocation
//   - InvocationResult: The record of one tool invocation
//   - StageReport: The invocations and merged artifacts of one stage
//   - RunReport: The complete record of a run, ending with the run index
//
// The models are serializable to JSON for report output and history storage.
package model
