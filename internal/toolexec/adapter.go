package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/madrecon/internal/artifact"
	"github.com/nao1215/madrecon/internal/model"
	"github.com/nao1215/madrecon/internal/tools"
)

// DefaultWaitDelay bounds how long Wait blocks on output pipes after the
// process was killed.
const DefaultWaitDelay = 5 * time.Second

// LookPathFunc resolves an executable name to a path.
type LookPathFunc func(file string) (string, error)

// ProgressFunc is called right before a tool process is spawned. command is
// the command line with header values masked.
type ProgressFunc func(tool tools.ID, command string)

// Invocation is one concrete execution of a tool.
type Invocation struct {
	// Tool is the registry identifier.
	Tool tools.ID

	// Args is the fully built argument list, without header flags.
	Args []string

	// Headers are raw "Name: value" headers. They are passed only to
	// header-aware tools.
	Headers []string

	// Output is the artifact path.
	Output string

	// StdinPath, if set, is fed to the process on standard input.
	StdinPath string
}

// Build creates the invocation of spec for in. The artifact is written to
// dir/name.
func Build(spec tools.Spec, in tools.Input, headers []string, dir, name string) Invocation {
	inv := Invocation{
		Tool:    spec.ID,
		Args:    spec.Args(in),
		Headers: headers,
		Output:  filepath.Join(dir, name),
	}
	if spec.Stdin {
		inv.StdinPath = in.Path
	}
	return inv
}

// Adapter invokes external tools.
type Adapter struct {
	lookPath  LookPathFunc
	timeout   time.Duration
	waitDelay time.Duration
	env       []string
	logger    *slog.Logger
	progress  ProgressFunc
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLookPath replaces exec.LookPath.
func WithLookPath(fn LookPathFunc) Option {
	return func(a *Adapter) {
		a.lookPath = fn
	}
}

// WithTimeout sets a deadline for every tool process. Zero means none.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = d
	}
}

// WithEnv appends "KEY=value" entries to the environment of every tool.
func WithEnv(env ...string) Option {
	return func(a *Adapter) {
		a.env = append(a.env, env...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithProgress sets the callback announcing every spawned tool.
func WithProgress(fn ProgressFunc) Option {
	return func(a *Adapter) {
		a.progress = fn
	}
}

// NewAdapter creates an Adapter.
func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		lookPath:  exec.LookPath,
		waitDelay: DefaultWaitDelay,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Invoke runs inv and writes its artifact.
func (a *Adapter) Invoke(ctx context.Context, inv Invocation) (res model.InvocationResult) {
	start := time.Now()
	res = model.InvocationResult{
		Tool:      inv.Tool,
		Args:      inv.Args,
		Artifact:  inv.Output,
		ExitCode:  -1,
		StartedAt: start,
	}
	defer func() {
		res.Duration = time.Since(start)
	}()

	spec, ok := tools.Lookup(inv.Tool)
	if !ok {
		res.Outcome = model.OutcomeExecutionError
		res.Error = fmt.Sprintf("%v: %s", tools.ErrUnknownTool, inv.Tool)
		a.writeDiagnostic(&res, artifact.ToolOutput{Diagnostic: res.Error})
		return res
	}

	path, err := a.lookPath(spec.Binary)
	if err != nil {
		return a.absent(res, spec, err)
	}

	headerArgs := spec.HeaderArgs(inv.Headers)
	res.HeaderCount = len(headerArgs) / 2
	argv := append(append([]string{}, inv.Args...), headerArgs...)

	if a.progress != nil {
		a.progress(inv.Tool, Display(spec.Binary, inv.Args, res.HeaderCount))
	}

	out, exitCode, runErr := a.run(ctx, path, argv, inv.StdinPath)
	res.ExitCode = exitCode
	if runErr != nil {
		res.Outcome = model.OutcomeExecutionError
		res.Error = runErr.Error()
		out.Diagnostic = res.Error
	} else {
		res.Outcome = model.OutcomeSuccess
	}

	if err := artifact.WriteFile(inv.Output, out.Bytes()); err != nil {
		res.Outcome = model.OutcomeExecutionError
		res.Error = err.Error()
	}

	a.logger.Debug("tool finished",
		"tool", inv.Tool,
		"outcome", res.Outcome,
		"exit_code", res.ExitCode,
		"artifact", res.Artifact,
		"duration", time.Since(start),
	)
	return res
}

// run spawns the process and waits for it.
func (a *Adapter) run(ctx context.Context, path string, argv []string, stdinPath string) (artifact.ToolOutput, int, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, path, argv...) //nolint:gosec // tool binaries come from the fixed registry
	cmd.WaitDelay = a.waitDelay
	if len(a.env) > 0 {
		cmd.Env = append(os.Environ(), a.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if stdinPath != "" {
		f, err := os.Open(stdinPath) //nolint:gosec // input artifacts are built by the pipeline
		if err != nil {
			return artifact.ToolOutput{}, -1, fmt.Errorf("open standard input: %w", err)
		}
		defer f.Close()
		cmd.Stdin = f
	}

	err := cmd.Run()
	out := artifact.ToolOutput{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return out, 0, nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return out, exitCode, fmt.Errorf("killed after timeout of %s", a.timeout)
	case errors.Is(ctx.Err(), context.Canceled):
		return out, exitCode, errors.New("killed: run cancelled")
	case exitErr != nil:
		return out, exitCode, fmt.Errorf("exited with status %d", exitCode)
	default:
		return out, exitCode, fmt.Errorf("spawn failed: %w", err)
	}
}

// absent writes the "<tool>_missing.txt" marker next to the intended
// artifact.
func (a *Adapter) absent(res model.InvocationResult, spec tools.Spec, lookErr error) model.InvocationResult {
	res.Outcome = model.OutcomeToolAbsent
	res.Artifact = filepath.Join(filepath.Dir(res.Artifact), artifact.MissingName(string(spec.ID)))
	res.Error = fmt.Sprintf("%s is not installed: %v", spec.ID, lookErr)

	msg := fmt.Sprintf("%s is not installed (executable %q not found in PATH)\n", spec.ID, spec.Binary)
	if err := artifact.WriteFile(res.Artifact, []byte(msg)); err != nil {
		res.Error = fmt.Sprintf("%s; %v", res.Error, err)
	}

	a.logger.Warn("tool not installed", "tool", spec.ID, "binary", spec.Binary)
	return res
}

func (a *Adapter) writeDiagnostic(res *model.InvocationResult, out artifact.ToolOutput) {
	if err := artifact.WriteFile(res.Artifact, out.Bytes()); err != nil {
		res.Error = fmt.Sprintf("%s; %v", res.Error, err)
	}
}

// Display renders a command line for progress output. Header values are
// never shown; each header is rendered as "-H <header>".
func Display(binary string, args []string, headerCount int) string {
	var sb strings.Builder
	sb.WriteString(binary)
	for _, arg := range args {
		sb.WriteByte(' ')
		sb.WriteString(arg)
	}
	for range headerCount {
		sb.WriteString(" -H <header>")
	}
	return sb.String()
}
