package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nao1215/madrecon/internal/artifact"
	"github.com/nao1215/madrecon/internal/model"
	"github.com/nao1215/madrecon/internal/selection"
	"github.com/nao1215/madrecon/internal/toolexec"
	"github.com/nao1215/madrecon/internal/tools"
)

// Default worker budgets of the fixed-budget stages.
const (
	DefaultEnumerateBudget = 3
	DefaultArchiveBudget   = 2
	DefaultThreads         = 4
)

// DefaultGfPatterns are the gf categories extracted from the URL artifact.
var DefaultGfPatterns = []string{"xss", "sqli", "ssrf", "redirect", "lfi"}

// RunContext carries everything the stages of one run share. It is built
// once from validated configuration and never mutated by the steps.
type RunContext struct {
	// Target is the normalized domain under test.
	Target string

	// Headers are raw "Name: value" headers for header-aware tools.
	Headers []string

	// OutputDir receives every artifact of the run.
	OutputDir string

	// Threads is the user worker budget (crawl, probe, scan, extract, fuzz).
	Threads int

	// EnumerateBudget and ArchiveBudget are the fixed budgets of the
	// enumeration and archive lanes.
	EnumerateBudget int
	ArchiveBudget   int

	// Selection decides which tools may run.
	Selection selection.Set

	// Fuzz enables the fuzz stage.
	Fuzz bool

	// Wordlist is the default fuzzing wordlist; Wordlists overrides it per
	// fuzzer.
	Wordlist  string
	Wordlists map[tools.ID]string

	// GfPatterns are the gf categories to extract.
	GfPatterns []string

	// Scheduler runs the stages.
	Scheduler *Scheduler

	// Sequence disambiguates artifacts of tools that may run repeatedly.
	Sequence *artifact.Sequence

	// Logger is used by the steps.
	Logger *slog.Logger
}

// withDefaults fills zero values.
func (rc *RunContext) withDefaults() *RunContext {
	if rc.Threads < 1 {
		rc.Threads = DefaultThreads
	}
	if rc.EnumerateBudget < 1 {
		rc.EnumerateBudget = DefaultEnumerateBudget
	}
	if rc.ArchiveBudget < 1 {
		rc.ArchiveBudget = DefaultArchiveBudget
	}
	if rc.GfPatterns == nil {
		rc.GfPatterns = DefaultGfPatterns
	}
	if rc.Sequence == nil {
		rc.Sequence = artifact.NewSequence()
	}
	if rc.Logger == nil {
		rc.Logger = slog.Default()
	}
	if rc.Scheduler == nil {
		rc.Scheduler = NewScheduler(
			toolexec.NewAdapter(toolexec.WithLogger(rc.Logger)),
			WithSchedulerLogger(rc.Logger),
		)
	}
	return rc
}

// Path returns the path of the artifact name in the output directory.
func (rc *RunContext) Path(name string) string {
	return filepath.Join(rc.OutputDir, name)
}

// AllSubs is the canonical subdomain artifact.
func (rc *RunContext) AllSubs() string {
	return rc.Path("all_subs_" + rc.Target + artifact.Ext)
}

// AllURLs is the canonical URL artifact.
func (rc *RunContext) AllURLs() string {
	return rc.Path("all_urls_" + rc.Target + artifact.Ext)
}

// ProbeOutput is the raw prober artifact.
func (rc *RunContext) ProbeOutput() string {
	return rc.Path(artifact.Name(string(tools.Httpx), artifact.Basename(rc.AllSubs()), ""))
}

// LiveHosts is the live-host artifact derived from the prober output.
func (rc *RunContext) LiveHosts() string {
	return rc.Path("live_hosts_" + rc.Target + artifact.Ext)
}

// Candidates is the URL subset matching a gf category.
func (rc *RunContext) Candidates(category string) string {
	return rc.Path(category + "_candidates_" + rc.Target + artifact.Ext)
}

// SubdomainInput returns the subdomain artifact when this run may consume
// it: the enumerate stage merged it, or no enumerator ran and a list is
// already present in the output directory (the --httpx-only case).
func (rc *RunContext) SubdomainInput(report *model.RunReport) (path string, ok bool) {
	path = rc.AllSubs()
	if !artifact.Usable(path) {
		return "", false
	}
	if report.Produced(path) {
		return path, true
	}
	if st := report.Stage(StepEnumerate); st == nil || st.Skipped {
		return path, true
	}
	return "", false
}

// ScanInput chooses the scan stage input: the live-host artifact if the
// probe stage of this run wrote it with a non-blank line, otherwise the
// subdomain artifact. ok is false when neither qualifies.
func (rc *RunContext) ScanInput(report *model.RunReport) (path string, ok bool) {
	if p := rc.LiveHosts(); producedInput(report, p) {
		return p, true
	}
	return rc.SubdomainInput(report)
}

// producedInput reports whether path was merged by this run and has a
// non-blank line.
func producedInput(report *model.RunReport, path string) bool {
	return report.Produced(path) && artifact.Usable(path)
}

// WordlistFor returns the wordlist path of a fuzzer.
func (rc *RunContext) WordlistFor(id tools.ID) string {
	if p, ok := rc.Wordlists[id]; ok && p != "" {
		return p
	}
	return rc.Wordlist
}

// eligible returns the tools of category that pass the selection filter.
func (rc *RunContext) eligible(c tools.Category) []tools.Spec {
	return rc.Selection.Filter(tools.ByCategory(c))
}

// invocation builds an invocation writing to the artifact name.
func (rc *RunContext) invocation(spec tools.Spec, in tools.Input, name string) toolexec.Invocation {
	return toolexec.Build(spec, in, rc.Headers, rc.OutputDir, name)
}

// marker records a tool that was not attempted because a prerequisite is
// missing. The marker artifact is the permanent record of the skip.
func (rc *RunContext) marker(id tools.ID, name, reason string) model.InvocationResult {
	res := model.InvocationResult{
		Tool:     id,
		Outcome:  model.OutcomeMissingPrerequisite,
		Artifact: rc.Path(name),
		ExitCode: -1,
		Error:    reason,
	}
	if err := artifact.WriteFile(res.Artifact, []byte(fmt.Sprintf("%s skipped: %s\n", id, reason))); err != nil {
		res.Error = fmt.Sprintf("%s; %v", reason, err)
	}
	rc.Logger.Warn("tool skipped", "tool", id, "reason", reason)
	return res
}

// outputsOf returns the intended artifact paths of invocations. Absent
// tools leave these paths unwritten, so their markers are never merged.
func outputsOf(invs []toolexec.Invocation) []string {
	paths := make([]string, 0, len(invs))
	for _, inv := range invs {
		paths = append(paths, inv.Output)
	}
	return paths
}
