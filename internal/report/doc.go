// Package report renders a finished run for people and tools.
//
// Writers:
//   - SimpleWriter: plain text summary for the terminal
//   - JSONWriter / FullJSONWriter: the run report as JSON
//   - MarkdownWriter: a shareable document with an outcome pie chart
//
// All writers implement Writer and can be combined with MultiWriter.
package report
