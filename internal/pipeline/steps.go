package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/madrecon/internal/artifact"
	"github.com/nao1215/madrecon/internal/model"
	"github.com/nao1215/madrecon/internal/toolexec"
	"github.com/nao1215/madrecon/internal/tools"
)

// Step and stage names, in pipeline order.
const (
	StepPrepare      = "prepare"
	StepEnumerate    = "enumerate"
	StepArchiveCrawl = "archive_crawl"
	StepProbe        = "probe"
	StepScan         = "scan"
	StepExtract      = "extract"
	StepFuzz         = "fuzz"
	StepFinalize     = "finalize"
)

// dirPerm is the permission of the output directory.
const dirPerm = 0o750

// mergeInto returns a Stage.Merge that merges the outputs of invs into dest.
func mergeInto(invs []toolexec.Invocation, dest string, opts ...artifact.MergeOption) func([]model.InvocationResult) ([]string, error) {
	return func(_ []model.InvocationResult) ([]string, error) {
		if _, err := artifact.Merge(outputsOf(invs), dest, opts...); err != nil {
			return nil, err
		}
		return []string{dest}, nil
	}
}

// missingInput writes a missing-input marker for every spec and marks the
// stage as skipped.
func missingInput(rc *RunContext, sr *model.StageReport, specs []tools.Spec, reason string) {
	sr.Skip(reason)
	for _, spec := range specs {
		sr.Results = append(sr.Results, rc.marker(spec.ID, artifact.MissingInputName(string(spec.ID)), reason))
	}
}

// PrepareStep creates the output directory.
type PrepareStep struct {
	rc *RunContext
}

// NewPrepareStep creates a PrepareStep.
func NewPrepareStep(rc *RunContext) *PrepareStep {
	return &PrepareStep{rc: rc.withDefaults()}
}

// Name returns the step name.
func (s *PrepareStep) Name() string {
	return StepPrepare
}

// Do creates the output directory if it does not exist.
func (s *PrepareStep) Do(_ context.Context, _ *model.RunReport) error {
	if err := os.MkdirAll(s.rc.OutputDir, dirPerm); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return nil
}

// EnumerateStep runs the subdomain enumerators and merges their output into
// the canonical subdomain artifact.
type EnumerateStep struct {
	rc *RunContext
}

// NewEnumerateStep creates an EnumerateStep.
func NewEnumerateStep(rc *RunContext) *EnumerateStep {
	return &EnumerateStep{rc: rc.withDefaults()}
}

// Name returns the step name.
func (s *EnumerateStep) Name() string {
	return StepEnumerate
}

// Do executes the enumeration stage.
func (s *EnumerateStep) Do(ctx context.Context, report *model.RunReport) error {
	rc := s.rc
	sr := report.AddStage(StepEnumerate)

	specs := rc.eligible(tools.CategoryEnumerate)
	if len(specs) == 0 {
		sr.Skip("no subdomain enumerator selected")
		return nil
	}

	invs := make([]toolexec.Invocation, 0, len(specs))
	for _, spec := range specs {
		invs = append(invs, rc.invocation(spec,
			tools.Input{Domain: rc.Target},
			artifact.Name(string(spec.ID), rc.Target, "")))
	}

	return rc.Scheduler.Run(ctx, Stage{
		Name:  StepEnumerate,
		Lanes: []Lane{{Name: "enumerate", Budget: rc.EnumerateBudget, Invocations: invs}},
		Merge: mergeInto(invs, rc.AllSubs()),
	}, sr)
}

// ArchiveCrawlStep runs the URL archive tools and the crawler. Both consume
// only the domain. Archive output is merged into the canonical URL artifact.
type ArchiveCrawlStep struct {
	rc *RunContext
}

// NewArchiveCrawlStep creates an ArchiveCrawlStep.
func NewArchiveCrawlStep(rc *RunContext) *ArchiveCrawlStep {
	return &ArchiveCrawlStep{rc: rc.withDefaults()}
}

// Name returns the step name.
func (s *ArchiveCrawlStep) Name() string {
	return StepArchiveCrawl
}

// Do executes the archive and crawl stage.
func (s *ArchiveCrawlStep) Do(ctx context.Context, report *model.RunReport) error {
	rc := s.rc
	sr := report.AddStage(StepArchiveCrawl)

	build := func(specs []tools.Spec) []toolexec.Invocation {
		invs := make([]toolexec.Invocation, 0, len(specs))
		for _, spec := range specs {
			invs = append(invs, rc.invocation(spec,
				tools.Input{Domain: rc.Target},
				artifact.Name(string(spec.ID), rc.Target, "")))
		}
		return invs
	}
	archive := build(rc.eligible(tools.CategoryArchive))
	crawl := build(rc.eligible(tools.CategoryCrawl))

	if len(archive) == 0 && len(crawl) == 0 {
		sr.Skip("no archive or crawl tool selected")
		return nil
	}

	stage := Stage{Name: StepArchiveCrawl}
	if len(archive) > 0 {
		stage.Lanes = append(stage.Lanes, Lane{Name: "archive", Budget: rc.ArchiveBudget, Invocations: archive})
		stage.Merge = mergeInto(archive, rc.AllURLs())
	}
	if len(crawl) > 0 {
		stage.Lanes = append(stage.Lanes, Lane{Name: "crawl", Budget: rc.Threads, Invocations: crawl})
	}
	return rc.Scheduler.Run(ctx, stage, sr)
}

// ProbeStep runs the liveness prober over the canonical subdomain artifact
// and derives the live-host artifact from its output.
type ProbeStep struct {
	rc *RunContext
}

// NewProbeStep creates a ProbeStep.
func NewProbeStep(rc *RunContext) *ProbeStep {
	return &ProbeStep{rc: rc.withDefaults()}
}

// Name returns the step name.
func (s *ProbeStep) Name() string {
	return StepProbe
}

// Do executes the probe stage.
func (s *ProbeStep) Do(ctx context.Context, report *model.RunReport) error {
	rc := s.rc
	sr := report.AddStage(StepProbe)

	specs := rc.eligible(tools.CategoryProbe)
	if len(specs) == 0 {
		sr.Skip("httpx is not selected")
		return nil
	}

	input, ok := rc.SubdomainInput(report)
	if !ok {
		missingInput(rc, sr, specs, "subdomain artifact is missing or empty")
		return nil
	}
	sr.Input = input

	invs := make([]toolexec.Invocation, 0, len(specs))
	for _, spec := range specs {
		invs = append(invs, rc.invocation(spec,
			tools.Input{Domain: rc.Target, Path: input},
			artifact.Name(string(spec.ID), artifact.Basename(input), "")))
	}

	return rc.Scheduler.Run(ctx, Stage{
		Name:  StepProbe,
		Lanes: []Lane{{Name: "probe", Budget: rc.Threads, Invocations: invs}},
		Merge: mergeInto(invs, rc.LiveHosts(), artifact.WithTransform(liveHost)),
	}, sr)
}

// liveHost extracts the host name from a prober line such as
// "https://a.example.com [200]".
func liveHost(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	first := fields[0]
	if !strings.Contains(first, "://") {
		return first
	}
	u, err := url.Parse(first)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// ScanStep runs the DNS, port and vulnerability scanners over the live-host
// artifact, falling back to the subdomain artifact.
type ScanStep struct {
	rc *RunContext
}

// NewScanStep creates a ScanStep.
func NewScanStep(rc *RunContext) *ScanStep {
	return &ScanStep{rc: rc.withDefaults()}
}

// Name returns the step name.
func (s *ScanStep) Name() string {
	return StepScan
}

// Do executes the scan stage.
func (s *ScanStep) Do(ctx context.Context, report *model.RunReport) error {
	rc := s.rc
	sr := report.AddStage(StepScan)

	specs := rc.eligible(tools.CategoryScan)
	if len(specs) == 0 {
		sr.Skip("no scanner selected")
		return nil
	}

	input, ok := rc.ScanInput(report)
	if !ok {
		missingInput(rc, sr, specs, "live-host and subdomain artifacts are missing or empty")
		return nil
	}
	sr.Input = input
	if input != rc.LiveHosts() {
		rc.Logger.Info("no live hosts from this run, scanning subdomain list", "input", input)
	}

	invs := make([]toolexec.Invocation, 0, len(specs))
	for _, spec := range specs {
		invs = append(invs, rc.invocation(spec,
			tools.Input{Domain: rc.Target, Path: input},
			artifact.Name(string(spec.ID), artifact.Basename(input), "")))
	}

	return rc.Scheduler.Run(ctx, Stage{
		Name:  StepScan,
		Lanes: []Lane{{Name: "scan", Budget: rc.Threads, Invocations: invs}},
	}, sr)
}

// ExtractStep filters the canonical URL artifact. gf derives one candidate
// list per category; uro and unfurl process the full list; dalfox is then
// chained on the XSS candidates.
type ExtractStep struct {
	rc *RunContext
}

// NewExtractStep creates an ExtractStep.
func NewExtractStep(rc *RunContext) *ExtractStep {
	return &ExtractStep{rc: rc.withDefaults()}
}

// Name returns the step name.
func (s *ExtractStep) Name() string {
	return StepExtract
}

// Do executes the extract stage.
func (s *ExtractStep) Do(ctx context.Context, report *model.RunReport) error {
	rc := s.rc
	sr := report.AddStage(StepExtract)
	start := time.Now()
	defer func() {
		sr.Duration = time.Since(start)
	}()

	specs := rc.eligible(tools.CategoryExtract)
	if len(specs) == 0 {
		sr.Skip("no extract tool selected")
		return nil
	}

	urls := rc.AllURLs()
	if !producedInput(report, urls) {
		missingInput(rc, sr, specs, "URL artifact was not produced by this run or is empty")
		return nil
	}
	sr.Input = urls
	base := artifact.Basename(urls)

	type gfRun struct {
		category string
		output   string
	}
	var (
		invs   []toolexec.Invocation
		gfRuns []gfRun
		dalfox *tools.Spec
	)
	for _, spec := range specs {
		switch spec.ID {
		case tools.Gf:
			for _, category := range rc.GfPatterns {
				inv := rc.invocation(spec,
					tools.Input{Path: urls, Pattern: category},
					artifact.Name(string(spec.ID), base, category))
				invs = append(invs, inv)
				gfRuns = append(gfRuns, gfRun{category: category, output: inv.Output})
			}
		case tools.Dalfox:
			dalfox = &spec
		default:
			invs = append(invs, rc.invocation(spec,
				tools.Input{Path: urls},
				artifact.Name(string(spec.ID), base, "")))
		}
	}

	if len(invs) > 0 {
		err := rc.Scheduler.Run(ctx, Stage{
			Name:  StepExtract,
			Lanes: []Lane{{Name: "extract", Budget: rc.Threads, Invocations: invs}},
			Merge: func(_ []model.InvocationResult) ([]string, error) {
				merged := make([]string, 0, len(gfRuns))
				for _, r := range gfRuns {
					dest := rc.Candidates(r.category)
					if _, err := artifact.Merge([]string{r.output}, dest); err != nil {
						return merged, err
					}
					merged = append(merged, dest)
				}
				return merged, nil
			},
		}, sr)
		if err != nil {
			return err
		}
	}

	if dalfox == nil || ctx.Err() != nil {
		return nil
	}

	xss := rc.Candidates("xss")
	if !producedInput(report, xss) {
		sr.Results = append(sr.Results,
			rc.marker(dalfox.ID, artifact.MissingInputName(string(dalfox.ID)), "no XSS candidates"))
		return nil
	}

	inv := rc.invocation(*dalfox, tools.Input{Path: xss}, artifact.Name(string(dalfox.ID), artifact.Basename(xss), ""))
	sr.Results = append(sr.Results, rc.Scheduler.RunStage(ctx, []toolexec.Invocation{inv}, rc.Threads)...)
	return nil
}

// FuzzStep runs each fuzzer once against the first host of the scan input.
// It only runs when fuzzing is enabled.
type FuzzStep struct {
	rc *RunContext
}

// NewFuzzStep creates a FuzzStep.
func NewFuzzStep(rc *RunContext) *FuzzStep {
	return &FuzzStep{rc: rc.withDefaults()}
}

// Name returns the step name.
func (s *FuzzStep) Name() string {
	return StepFuzz
}

// Do executes the fuzz stage.
func (s *FuzzStep) Do(ctx context.Context, report *model.RunReport) error {
	rc := s.rc
	sr := report.AddStage(StepFuzz)

	if !rc.Fuzz {
		sr.Skip("fuzzing is not enabled")
		return nil
	}
	specs := rc.eligible(tools.CategoryFuzz)
	if len(specs) == 0 {
		sr.Skip("no fuzzer selected")
		return nil
	}

	// The target is resolved lazily: a missing wordlist takes precedence.
	var (
		resolved  bool
		base      string
		host      string
		hostFound bool
	)
	invs := make([]toolexec.Invocation, 0, len(specs))
	for _, spec := range specs {
		wordlist := rc.WordlistFor(spec.ID)
		if wordlist == "" || !artifact.Exists(wordlist) {
			sr.Results = append(sr.Results, rc.marker(spec.ID,
				artifact.MissingWordlistName(string(spec.ID)),
				fmt.Sprintf("wordlist %q not found", wordlist)))
			continue
		}

		if !resolved {
			resolved = true
			base, host, hostFound = s.target(report)
			sr.Input = base
		}
		if !hostFound {
			sr.Results = append(sr.Results, rc.marker(spec.ID,
				artifact.MissingInputName(string(spec.ID)), "no host to fuzz"))
			continue
		}

		name := artifact.Name(string(spec.ID), artifact.Sanitize(host), strconv.FormatInt(rc.Sequence.Next(), 10))
		invs = append(invs, rc.invocation(spec, tools.Input{
			Domain:   rc.Target,
			URL:      fuzzURL(spec.ID, base),
			Wordlist: wordlist,
		}, name))
	}

	if len(invs) == 0 {
		sr.Skip("no fuzzer could run")
		return nil
	}

	return rc.Scheduler.Run(ctx, Stage{
		Name:  StepFuzz,
		Lanes: []Lane{{Name: "fuzz", Budget: rc.Threads, Invocations: invs}},
	}, sr)
}

// target returns the fuzzing base URL and host built from the first
// non-blank line of the scan input.
func (s *FuzzStep) target(report *model.RunReport) (base, host string, ok bool) {
	input, ok := s.rc.ScanInput(report)
	if !ok {
		return "", "", false
	}
	line, ok, err := artifact.FirstLine(input)
	if err != nil || !ok {
		return "", "", false
	}
	return fuzzBase(line)
}

// fuzzBase turns "a.example.com [200]" into "https://a.example.com".
func fuzzBase(line string) (base, host string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", "", false
	}
	raw := fields[0]
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", false
	}
	return strings.TrimRight(raw, "/"), u.Host, true
}

// fuzzURL builds the URL argument of a fuzzer. ffuf needs the FUZZ keyword.
func fuzzURL(id tools.ID, base string) string {
	if id == tools.Ffuf {
		return base + "/FUZZ"
	}
	return base
}

// FinalizeStep writes the run index.
type FinalizeStep struct {
	rc *RunContext
}

// NewFinalizeStep creates a FinalizeStep.
func NewFinalizeStep(rc *RunContext) *FinalizeStep {
	return &FinalizeStep{rc: rc.withDefaults()}
}

// Name returns the step name.
func (s *FinalizeStep) Name() string {
	return StepFinalize
}

// Do lists every artifact of the output directory into the run index.
func (s *FinalizeStep) Do(_ context.Context, report *model.RunReport) error {
	defer func() {
		report.FinishedAt = time.Now()
	}()

	names, err := artifact.WriteIndex(s.rc.OutputDir)
	if err != nil {
		return err
	}
	report.Index = names
	report.IndexPath = s.rc.Path(artifact.IndexName)
	return nil
}

// DefaultPipeline creates the fixed recon pipeline:
// enumerate, archive/crawl, probe, scan, extract, fuzz, then finalize.
//
// The pipeline continues past step errors so the run index is always
// produced. opts are applied after the defaults.
func DefaultPipeline(rc *RunContext, opts ...Option) *Pipeline {
	rc.withDefaults()

	base := []Option{
		WithLogger(rc.Logger),
		WithContinueOnError(true),
	}
	p := New(append(base, opts...)...)

	p.AddSteps(
		NewPrepareStep(rc),
		NewEnumerateStep(rc),
		NewArchiveCrawlStep(rc),
		NewProbeStep(rc),
		NewScanStep(rc),
		NewExtractStep(rc),
		NewFuzzStep(rc),
	)
	p.AddFinalizer(NewFinalizeStep(rc))

	return p
}
