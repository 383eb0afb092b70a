// Package pipeline runs the fixed recon stage graph against one target.
//
// A run is a single traversal of these steps:
//
//	prepare -> enumerate -> archive_crawl -> probe -> scan -> extract -> fuzz -> finalize
//
// Each stage hands its invocations to the Scheduler, which runs them on a
// bounded worker pool (errgroup.SetLimit), waits for every invocation to
// settle and only then applies the stage's merge. The next stage starts
// after that barrier, so it always reads fully written merged artifacts.
//
// All run state (target, headers, budgets, selection, output directory)
// travels in an explicit RunContext. Tool failures are recorded as
// outcomes in the model.RunReport; the finalize step always runs and writes
// the run index, even after cancellation.
package pipeline
