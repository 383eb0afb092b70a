package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/madrecon/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for sharing.
type MarkdownWriter struct {
	baseWriter

	version string
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithVersion sets the version shown in the footer.
func WithVersion(version string) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		w.version = version
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the run report in Markdown format.
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := report.Summarize()

	w.writeHeader(md, report, summary)
	w.writeSummary(md, report, summary)
	w.writeStages(md, report)
	w.writeIndex(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.RunReport, summary model.Summary) {
	md.H1("madrecon Run Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Target", "`" + report.Target + "`"},
			{"Run ID", "`" + report.ID + "`"},
			{"Output Directory", "`" + report.OutputDir + "`"},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", formatDuration(report.Duration())},
			{"Status", runStatus(report, summary)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.RunReport, summary model.Summary) {
	md.H2("Outcome Summary")
	md.PlainText("")

	rows := make([][]string, 0, len(model.AllOutcomes())+1)
	for _, o := range model.AllOutcomes() {
		rows = append(rows, []string{outcomeLabel(o), strconv.Itoa(summary.Counts[o])})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(summary.Invocations) + "**"})
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Invocations"},
		Rows:   rows,
	})
	md.PlainText("")

	if summary.Invocations > 0 {
		w.writePieChart(md, summary)
	}

	switch {
	case report.Cancelled:
		md.Warningf("The run was cancelled. %d invocation(s) settled before the interrupt.", summary.Invocations)
	case len(report.StepErrors) > 0:
		md.Cautionf("%d step error(s) occurred: %s", len(report.StepErrors), strings.Join(report.StepErrors, "; "))
	case summary.Counts[model.OutcomeToolAbsent] > 0:
		md.Importantf("%d tool(s) were not found on PATH. Run `madrecon tools` to see which.", summary.Counts[model.OutcomeToolAbsent])
	case summary.Failures() > 0:
		md.Note("Some invocations did not succeed. Their artifacts carry the diagnostics.")
	default:
		md.Tip("Every invocation succeeded.")
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of the outcome distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Invocation Outcomes"),
		piechart.WithShowData(true),
	)

	for _, o := range model.AllOutcomes() {
		if n := summary.Counts[o]; n > 0 {
			chart.LabelAndIntValue(o.String(), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeStages(md *markdown.Markdown, report *model.RunReport) {
	md.H2("Stages")
	md.PlainText("")

	for _, st := range report.Stages {
		md.PlainText("### " + stageTitle(st.Name))
		md.PlainText("")

		if st.Skipped {
			md.PlainTextf("Skipped: %s", st.SkipReason)
			md.PlainText("")
		}
		if st.Input != "" {
			md.PlainTextf("Input: `%s`", artifactName(st.Input))
			md.PlainText("")
		}

		if len(st.Results) > 0 {
			rows := make([][]string, len(st.Results))
			for i, res := range st.Results {
				diag := res.Error
				if diag == "" {
					diag = "-"
				}
				rows[i] = []string{
					string(res.Tool),
					outcomeLabel(res.Outcome),
					"`" + artifactName(res.Artifact) + "`",
					formatDuration(res.Duration),
					truncateString(diag, 60),
				}
			}
			md.Table(markdown.TableSet{
				Header: []string{"Tool", "Outcome", "Artifact", "Duration", "Diagnostic"},
				Rows:   rows,
			})
			md.PlainText("")
		}

		if len(st.Merged) > 0 {
			merged := make([]string, len(st.Merged))
			for i, m := range st.Merged {
				merged[i] = "`" + artifactName(m) + "`"
			}
			md.PlainText("Merged:")
			md.PlainText("")
			md.BulletList(merged...)
			md.PlainText("")
		}
	}
}

func (w *MarkdownWriter) writeIndex(md *markdown.Markdown, report *model.RunReport) {
	if len(report.Index) == 0 {
		return
	}
	md.Details("Artifact index ("+strconv.Itoa(len(report.Index))+" files)", strings.Join(report.Index, "\n"))
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	if w.version != "" {
		md.PlainTextf("*Report generated by [madrecon](https://github.com/nao1215/madrecon) %s*", w.version)
		return
	}
	md.PlainTextf("*Report generated by [madrecon](https://github.com/nao1215/madrecon)*")
}

func outcomeLabel(o model.Outcome) string {
	switch o {
	case model.OutcomeSuccess:
		return "✅ " + o.String()
	case model.OutcomeToolAbsent:
		return "⚪ " + o.String()
	case model.OutcomeExecutionError:
		return "🔴 " + o.String()
	case model.OutcomeMissingPrerequisite:
		return "🟡 " + o.String()
	default:
		return o.String()
	}
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
