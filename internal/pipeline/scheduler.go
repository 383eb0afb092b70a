package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/madrecon/internal/model"
	"github.com/nao1215/madrecon/internal/toolexec"
)

// Invoker runs one tool invocation. *toolexec.Adapter implements it.
type Invoker interface {
	Invoke(ctx context.Context, inv toolexec.Invocation) model.InvocationResult
}

// Lane is a group of invocations sharing one worker budget.
type Lane struct {
	// Name identifies the lane in logs.
	Name string

	// Budget is the maximum number of concurrently running invocations.
	// Values below one are treated as one.
	Budget int

	// Invocations are scheduled in order; completion order is not
	// guaranteed.
	Invocations []toolexec.Invocation
}

// Stage is one barrier-delimited phase of the pipeline.
type Stage struct {
	// Name identifies the stage.
	Name string

	// Lanes run concurrently with each other, each under its own budget.
	Lanes []Lane

	// Merge, if set, runs on the calling goroutine once every invocation
	// of every lane has settled. It returns the paths of the merged
	// artifacts it wrote.
	Merge func(results []model.InvocationResult) ([]string, error)
}

// Scheduler runs stages on bounded worker pools.
// Each stage gets its own pools; no pool is shared between stages.
type Scheduler struct {
	invoker Invoker
	logger  *slog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets a custom logger for the scheduler.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// NewScheduler creates a Scheduler that runs invocations through invoker.
func NewScheduler(invoker Invoker, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{invoker: invoker}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// RunStage runs invocations on at most budget concurrent workers and
// blocks until all of them have settled. Results are returned in the order
// of invocations.
func (s *Scheduler) RunStage(ctx context.Context, invocations []toolexec.Invocation, budget int) []model.InvocationResult {
	return s.runLanes(ctx, []Lane{{Name: "default", Budget: budget, Invocations: invocations}})
}

// Run executes stage: all lanes concurrently, then the barrier, then the
// merge step. Results and merged artifacts are recorded in sr.
// Only a merge failure is returned; per-tool failures are outcomes.
func (s *Scheduler) Run(ctx context.Context, stage Stage, sr *model.StageReport) error {
	start := time.Now()

	total := 0
	for _, l := range stage.Lanes {
		total += len(l.Invocations)
	}
	s.logger.Info("starting stage",
		"stage", stage.Name,
		"lanes", len(stage.Lanes),
		"invocations", total,
	)

	results := s.runLanes(ctx, stage.Lanes)
	sr.Results = append(sr.Results, results...)
	defer func() {
		sr.Duration = time.Since(start)
	}()

	s.logger.Info("stage settled",
		"stage", stage.Name,
		"elapsed", time.Since(start),
	)

	if stage.Merge == nil {
		return nil
	}
	merged, err := stage.Merge(results)
	sr.Merged = append(sr.Merged, merged...)
	if err != nil {
		return fmt.Errorf("merge %s: %w", stage.Name, err)
	}
	return nil
}

// runLanes runs every lane concurrently and returns the results of all
// lanes concatenated in lane order.
func (s *Scheduler) runLanes(ctx context.Context, lanes []Lane) []model.InvocationResult {
	perLane := make([][]model.InvocationResult, len(lanes))

	var g errgroup.Group
	for i, lane := range lanes {
		g.Go(func() error {
			perLane[i] = s.runLane(ctx, lane)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // lanes never return errors

	var out []model.InvocationResult
	for _, r := range perLane {
		out = append(out, r...)
	}
	return out
}

// runLane schedules the lane's invocations with errgroup.SetLimit.
func (s *Scheduler) runLane(ctx context.Context, lane Lane) []model.InvocationResult {
	budget := lane.Budget
	if budget < 1 {
		budget = 1
	}

	// Pre-allocate results slice to maintain order
	results := make([]model.InvocationResult, len(lane.Invocations))

	var g errgroup.Group
	g.SetLimit(budget)

	for i, inv := range lane.Invocations {
		g.Go(func() error {
			s.logger.Debug("invoking tool",
				"lane", lane.Name,
				"tool", inv.Tool,
				"index", i+1,
				"total", len(lane.Invocations),
			)

			// Each goroutine owns results[i]; no lock needed.
			results[i] = s.invoker.Invoke(ctx, inv)

			// Don't return error to errgroup: a failed tool must not
			// affect the other invocations of the stage.
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // invocations never return errors
	return results
}
