package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/madrecon/internal/model"
)

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, each one recording what it did in the
// shared run report.
type Step interface {
	// Do executes the pipeline step.
	// Tool failures are recorded in the report as outcomes and never
	// returned. An error means the step itself could not do its work
	// (for example the output directory is not writable).
	Do(ctx context.Context, report *model.RunReport) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
// Regular steps run in order until the context is cancelled. Finalizers
// run afterwards in every case, with cancellation stripped from the context,
// so the run index is always written.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// finalizers run after steps, even when the run was cancelled.
	finalizers []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool

	// onStep is called before every step, for progress display.
	onStep func(name string)
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. Failed steps are logged and their errors
// are recorded in the report, but subsequent steps still execute.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// WithStepHook sets a callback invoked with the step name right before
// each step (finalizers included) starts.
func WithStepHook(fn func(name string)) Option {
	return func(p *Pipeline) {
		p.onStep = fn
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:           make([]Step, 0),
		continueOnError: false,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddFinalizer appends a step that runs after all regular steps, even if
// the pipeline was cancelled or stopped on an error.
func (p *Pipeline) AddFinalizer(step Step) {
	p.finalizers = append(p.finalizers, step)
}

// Execute runs all pipeline steps in sequence, then the finalizers.
// It checks for cancellation before each regular step; a step that is
// already running handles cancellation itself.
//
// Returns the context error if the run was cancelled, the first step error
// if continueOnError is false, or nil. Step errors are always recorded in
// report.StepErrors.
func (p *Pipeline) Execute(ctx context.Context, report *model.RunReport) error {
	runErr := p.runSteps(ctx, report)

	// Finalizers must run to completion regardless of how we got here.
	finalCtx := context.WithoutCancel(ctx)
	for _, step := range p.finalizers {
		if err := p.runStep(finalCtx, step, report); err != nil && runErr == nil && !p.continueOnError {
			runErr = err
		}
	}

	return runErr
}

func (p *Pipeline) runSteps(ctx context.Context, report *model.RunReport) error {
	for _, step := range p.steps {
		// Check for cancellation before starting each step
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			report.Cancelled = true
			return ctx.Err()
		default:
		}

		if err := p.runStep(ctx, step, report); err != nil && !p.continueOnError {
			return err
		}
	}

	// The last step may have been interrupted mid-way.
	if err := ctx.Err(); err != nil {
		report.Cancelled = true
		return err
	}
	return nil
}

// runStep executes one step and records it in the report.
func (p *Pipeline) runStep(ctx context.Context, step Step, report *model.RunReport) error {
	p.logger.Info("executing step",
		"step", step.Name(),
		"target", report.Target,
	)
	if p.onStep != nil {
		p.onStep(step.Name())
	}

	err := step.Do(ctx, report)
	if err != nil {
		p.logger.Error("step failed",
			"step", step.Name(),
			"target", report.Target,
			"error", err,
		)
		report.StepErrors = append(report.StepErrors, step.Name()+": "+err.Error())
	} else {
		p.logger.Debug("step completed",
			"step", step.Name(),
			"target", report.Target,
		)
	}

	// Track which steps were performed
	report.PerformedSteps = append(report.PerformedSteps, step.Name())
	return err
}

// StepCount returns the number of steps in the pipeline, finalizers
// included.
func (p *Pipeline) StepCount() int {
	return len(p.steps) + len(p.finalizers)
}

// StepNames returns the names of all steps in execution order, finalizers
// last.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, p.StepCount())
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.finalizers {
		names = append(names, step.Name())
	}
	return names
}
