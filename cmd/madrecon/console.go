package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/nao1215/madrecon/internal/model"
	"github.com/nao1215/madrecon/internal/tools"
)

// console prints operator progress. Tools of one stage run concurrently,
// so every write holds mu.
type console struct {
	mu  sync.Mutex
	out io.Writer

	stage   *color.Color
	running *color.Color
	ok      *color.Color
	warn    *color.Color
	fail    *color.Color
}

func newConsole(out io.Writer, noColor bool) *console {
	c := &console{
		out:     out,
		stage:   color.New(color.FgCyan, color.Bold),
		running: color.New(color.FgBlue),
		ok:      color.New(color.FgGreen, color.Bold),
		warn:    color.New(color.FgYellow, color.Bold),
		fail:    color.New(color.FgRed, color.Bold),
	}
	if noColor {
		for _, col := range []*color.Color{c.stage, c.running, c.ok, c.warn, c.fail} {
			col.DisableColor()
		}
	}
	return c
}

// Step announces a pipeline step.
func (c *console) Step(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stage.Fprintf(c.out, "\n==> %s\n", name) //nolint:errcheck // console output
}

// Running announces a spawned tool. It matches toolexec.ProgressFunc.
func (c *console) Running(_ tools.ID, command string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running.Fprint(c.out, "[+] Running: ") //nolint:errcheck // console output
	fmt.Fprintln(c.out, command)
}

// Infof prints an informational line.
func (c *console) Infof(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ok.Fprint(c.out, "[*] ") //nolint:errcheck // console output
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Warnf prints a warning line.
func (c *console) Warnf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warn.Fprint(c.out, "[!] ") //nolint:errcheck // console output
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Summary prints the one-line outcome counts of a finished run.
func (c *console) Summary(s model.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out)
	c.ok.Fprintf(c.out, "%d succeeded", s.Counts[model.OutcomeSuccess]) //nolint:errcheck // console output
	fmt.Fprint(c.out, ", ")
	c.warn.Fprintf(c.out, "%d absent", s.Counts[model.OutcomeToolAbsent]) //nolint:errcheck // console output
	fmt.Fprint(c.out, ", ")
	c.warn.Fprintf(c.out, "%d missing input", s.Counts[model.OutcomeMissingPrerequisite]) //nolint:errcheck // console output
	fmt.Fprint(c.out, ", ")
	c.fail.Fprintf(c.out, "%d failed", s.Counts[model.OutcomeExecutionError]) //nolint:errcheck // console output
	fmt.Fprintf(c.out, " (%d artifacts)\n", s.Artifacts)
}
