package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/madrecon/internal/model"
)

// SimpleWriter outputs human-readable text reports for the terminal.
// Plain ASCII is used so the output can be piped to files.
type SimpleWriter struct {
	baseWriter

	// showEmpty lists skipped stages with no invocations.
	showEmpty bool

	// verbose adds arguments, exit codes and the artifact index.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show stages without invocations.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		showEmpty:  true,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the run report in human-readable format.
func (w *SimpleWriter) Write(report *model.RunReport) (int, error) {
	var sb strings.Builder
	summary := report.Summarize()

	w.writeHeader(&sb, report, summary)
	w.writeSummary(&sb, summary)
	w.writeStages(&sb, report)
	w.writeErrors(&sb, report)
	if w.verbose {
		w.writeIndex(&sb, report)
	}
	w.writeFooter(&sb, report)

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.RunReport, summary model.Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          MADRECON RUN REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Target:         %s\n", report.Target)
	fmt.Fprintf(sb, "Run ID:         %s\n", report.ID)
	fmt.Fprintf(sb, "Output:         %s\n", report.OutputDir)
	fmt.Fprintf(sb, "Started:        %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:       %s\n", formatDuration(report.Duration()))
	fmt.Fprintf(sb, "Status:         %s\n", runStatus(report, summary))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, summary model.Summary) {
	writeSection(sb, "OUTCOME SUMMARY")

	for _, o := range model.AllOutcomes() {
		fmt.Fprintf(sb, "  %-22s %d\n", strings.ToUpper(o.String())+":", summary.Counts[o])
	}
	sb.WriteString("  " + strings.Repeat("-", 25) + "\n")
	fmt.Fprintf(sb, "  %-22s %d\n", "TOTAL:", summary.Invocations)
	fmt.Fprintf(sb, "  %-22s %d run, %d skipped\n", "STAGES:", summary.StagesRun, summary.StagesSkipped)
	fmt.Fprintf(sb, "  %-22s %d\n", "ARTIFACTS:", summary.Artifacts)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeStages(sb *strings.Builder, report *model.RunReport) {
	writeSection(sb, "STAGES")

	for _, st := range report.Stages {
		if st.Skipped && len(st.Results) == 0 && !w.showEmpty {
			continue
		}

		fmt.Fprintf(sb, "%s", stageTitle(st.Name))
		if st.Skipped {
			fmt.Fprintf(sb, " (skipped: %s)", st.SkipReason)
		} else if st.Duration > 0 {
			fmt.Fprintf(sb, " (%s)", formatDuration(st.Duration))
		}
		sb.WriteString("\n")

		if st.Input != "" {
			fmt.Fprintf(sb, "  input:  %s\n", artifactName(st.Input))
		}
		for _, res := range st.Results {
			fmt.Fprintf(sb, "  %s %-12s %s\n", outcomeIndicator(res.Outcome), res.Tool, artifactName(res.Artifact))
			if res.Error != "" {
				fmt.Fprintf(sb, "      %s\n", res.Error)
			}
			if w.verbose {
				fmt.Fprintf(sb, "      args: %s (exit %d, %s)\n", strings.Join(res.Args, " "), res.ExitCode, formatDuration(res.Duration))
			}
		}
		for _, m := range st.Merged {
			fmt.Fprintf(sb, "  => %s\n", artifactName(m))
		}
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writeErrors(sb *strings.Builder, report *model.RunReport) {
	if len(report.StepErrors) == 0 {
		return
	}
	writeSection(sb, "ERRORS")
	for _, e := range report.StepErrors {
		fmt.Fprintf(sb, "  - %s\n", e)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeIndex(sb *strings.Builder, report *model.RunReport) {
	writeSection(sb, "ARTIFACT INDEX")
	if len(report.Index) == 0 {
		sb.WriteString("  (empty)\n\n")
		return
	}
	for _, name := range report.Index {
		fmt.Fprintf(sb, "  %s\n", name)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder, report *model.RunReport) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	if report.IndexPath != "" {
		fmt.Fprintf(sb, "Index written to %s\n", report.IndexPath)
	}
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// outcomeIndicator returns a fixed-width tag for an outcome.
func outcomeIndicator(o model.Outcome) string {
	switch o {
	case model.OutcomeSuccess:
		return "[OK]  "
	case model.OutcomeToolAbsent:
		return "[MISS]"
	case model.OutcomeExecutionError:
		return "[ERR] "
	case model.OutcomeMissingPrerequisite:
		return "[SKIP]"
	default:
		return "[?]   "
	}
}
