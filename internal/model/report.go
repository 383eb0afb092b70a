package model

import (
	"slices"
	"time"

	"github.com/nao1215/madrecon/internal/tools"
)

// InvocationResult records one settled tool invocation.
type InvocationResult struct {
	// Tool is the registry identifier of the tool.
	Tool tools.ID `json:"tool"`

	// Outcome is the settled state.
	Outcome Outcome `json:"outcome"`

	// Artifact is the path of the artifact or marker written for this
	// invocation. Exactly one file is written per invocation.
	Artifact string `json:"artifact"`

	// Args are the arguments passed to the tool, without header values.
	Args []string `json:"args,omitempty"`

	// HeaderCount is the number of "-H" headers passed.
	HeaderCount int `json:"header_count,omitempty"`

	// ExitCode is the process exit status, or -1 when it did not exit.
	ExitCode int `json:"exit_code"`

	// Error is the diagnostic for non-success outcomes.
	Error string `json:"error,omitempty"`

	// StartedAt is when the invocation began.
	StartedAt time.Time `json:"started_at"`

	// Duration is how long the invocation took.
	Duration time.Duration `json:"duration"`
}

// StageReport records one pipeline stage.
type StageReport struct {
	// Name is the stage identifier (enumerate, archive, ...).
	Name string `json:"name"`

	// Skipped is true when the stage ran no invocation at all.
	Skipped bool `json:"skipped"`

	// SkipReason explains a skipped stage.
	SkipReason string `json:"skip_reason,omitempty"`

	// Input is the artifact the stage consumed, if any.
	Input string `json:"input,omitempty"`

	// Results holds every invocation of the stage in scheduling order.
	Results []InvocationResult `json:"results,omitempty"`

	// Merged lists the canonical artifacts the stage produced by merging.
	Merged []string `json:"merged,omitempty"`

	// Duration is the wall time from first invocation to barrier release.
	Duration time.Duration `json:"duration"`
}

// Skip marks the stage as skipped.
func (s *StageReport) Skip(reason string) {
	s.Skipped = true
	s.SkipReason = reason
}

// RunReport is the complete record of one pipeline run.
type RunReport struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// Target is the domain under test.
	Target string `json:"target"`

	// OutputDir is the directory all artifacts are written to.
	OutputDir string `json:"output_dir"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Stages are reported in execution order.
	Stages []*StageReport `json:"stages"`

	// Index lists every artifact file name in the output directory.
	Index []string `json:"index"`

	// IndexPath is the path of the written run index.
	IndexPath string `json:"index_path,omitempty"`

	// Cancelled is true when the run was interrupted.
	Cancelled bool `json:"cancelled,omitempty"`

	// StepErrors holds infrastructure errors reported by pipeline steps.
	StepErrors []string `json:"step_errors,omitempty"`

	// PerformedSteps lists the steps that executed, in order.
	PerformedSteps []string `json:"performed_steps,omitempty"`
}

// NewRunReport creates a report for a run against target.
func NewRunReport(id, target, outputDir string) *RunReport {
	return &RunReport{
		ID:        id,
		Target:    target,
		OutputDir: outputDir,
		StartedAt: time.Now(),
		Stages:    make([]*StageReport, 0),
	}
}

// AddStage appends a stage record and returns it.
func (r *RunReport) AddStage(name string) *StageReport {
	s := &StageReport{Name: name}
	r.Stages = append(r.Stages, s)
	return s
}

// Stage returns the stage record with the given name, or nil.
func (r *RunReport) Stage(name string) *StageReport {
	for _, s := range r.Stages {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Produced reports whether a stage of this run wrote path as a merged
// artifact. Files in a reused output directory that no stage of this run
// merged are left over from earlier runs.
func (r *RunReport) Produced(path string) bool {
	for _, s := range r.Stages {
		if slices.Contains(s.Merged, path) {
			return true
		}
	}
	return false
}

// Results returns every invocation of the run in stage order.
func (r *RunReport) Results() []InvocationResult {
	var out []InvocationResult
	for _, s := range r.Stages {
		out = append(out, s.Results...)
	}
	return out
}

// ResultsFor returns every invocation of tool across the run.
func (r *RunReport) ResultsFor(tool tools.ID) []InvocationResult {
	var out []InvocationResult
	for _, res := range r.Results() {
		if res.Tool == tool {
			out = append(out, res)
		}
	}
	return out
}

// Duration returns the run's wall time, or the time elapsed so far.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
