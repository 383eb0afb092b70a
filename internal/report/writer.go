package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/madrecon/internal/model"
)

// Writer defines the interface for run report output.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.RunReport) (int, error)
}

// Format selects a report writer.
type Format string

const (
	// FormatText is the human-readable terminal summary.
	FormatText Format = "text"
	// FormatJSON is the machine-readable report.
	FormatJSON Format = "json"
	// FormatMarkdown is a Markdown document for sharing.
	FormatMarkdown Format = "markdown"
)

// NewWriter returns the writer for format. version is embedded in formats
// that carry metadata.
func NewWriter(format Format, output io.Writer, version string) (Writer, error) {
	switch format {
	case FormatText, "":
		return NewSimpleWriter(output), nil
	case FormatJSON:
		return NewFullJSONWriter(output, version, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output, WithVersion(version)), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// MultiWriter writes to multiple Writers. Our Writer writes reports, not
// raw bytes, so io.MultiWriter does not fit.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.RunReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

var titler = cases.Title(language.English)

// stageTitle turns a stage name such as "archive_crawl" into "Archive Crawl".
func stageTitle(name string) string {
	return titler.String(strings.ReplaceAll(name, "_", " "))
}

// runStatus describes how the run ended.
func runStatus(report *model.RunReport, summary model.Summary) string {
	switch {
	case report.Cancelled:
		return "Cancelled (partial results)"
	case len(report.StepErrors) > 0:
		return "Completed with errors"
	case summary.Failures() > 0:
		return "Completed with soft failures"
	default:
		return "Complete"
	}
}

// formatDuration rounds d for display.
func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

// artifactName returns the base name of an artifact path.
func artifactName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
