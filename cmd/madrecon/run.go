package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nao1215/madrecon/internal/config"
	"github.com/nao1215/madrecon/internal/database"
	"github.com/nao1215/madrecon/internal/log"
	"github.com/nao1215/madrecon/internal/model"
	"github.com/nao1215/madrecon/internal/pipeline"
	"github.com/nao1215/madrecon/internal/report"
	"github.com/nao1215/madrecon/internal/target"
	"github.com/nao1215/madrecon/internal/toolexec"
	"github.com/nao1215/madrecon/internal/tools"
	"github.com/nao1215/madrecon/internal/tor"
)

// errInterrupted is returned when the run was cancelled by a signal. The
// artifacts written so far and the run index are kept.
var errInterrupted = errors.New("run interrupted")

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <domain>",
		Short: "Run the recon pipeline against a domain",
		Long: `Run executes every recon stage against one target domain.

Each tool writes its output to <output>/<tool>_<target>.txt. A tool that is
not installed leaves a <tool>_missing.txt marker, and the pipeline carries
on. outputs_index.txt lists every artifact at the end of the run.

Examples:
  # Full run with defaults
  madrecon run example.com

  # Authenticated run with a bug bounty header, skipping amass
  madrecon run -H "X-Bug-Bounty: alice" --exclude amass example.com

  # Only query the Wayback Machine
  madrecon run --wayback-only example.com

  # Enable fuzzing with a custom wordlist through Tor
  madrecon run --fuzz --wordlist ./words.txt --tor example.com

  # Write a Markdown report
  madrecon run --markdown --report report.md example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runRunCmd,
	}

	cmd.Flags().StringArrayP("header", "H", nil,
		`Custom header for header-aware tools, "Name: value" (repeatable)`)
	cmd.Flags().StringP("output", "o", config.DefaultOutputDir,
		"Output directory for artifacts")
	cmd.Flags().IntP("threads", "t", config.DefaultThreads,
		"Worker budget of the crawl, probe, scan, extract and fuzz stages")
	cmd.Flags().StringSlice("include", nil,
		"Run only these tools (comma-separated)")
	cmd.Flags().StringSlice("exclude", nil,
		"Never run these tools (comma-separated)")
	cmd.Flags().Bool("wayback-only", false,
		"Shorthand for --include waybackurls")
	cmd.Flags().Bool("httpx-only", false,
		"Shorthand for --include httpx")
	cmd.Flags().Bool("fuzz", false,
		"Enable the fuzz stage")
	cmd.Flags().String("wordlist", config.DefaultWordlist(),
		"Fuzzing wordlist")
	cmd.Flags().Duration("tool-timeout", 0,
		"Kill any tool running longer than this (0 = no limit)")

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .madrecon in current or home directory)")

	cmd.Flags().BoolP("json", "j", false,
		"Print the run report as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Print the run report as Markdown (mutually exclusive with --json)")
	cmd.Flags().String("report", "",
		"Write the run report to this file instead of stdout")
	cmd.Flags().Bool("no-history", false,
		"Do not record the run in the history database")

	cmd.Flags().String("proxy", "",
		"Route tool traffic through this SOCKS5 proxy (host:port)")
	cmd.Flags().Bool("tor", false,
		"Route tool traffic through an embedded Tor daemon")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")
	cmd.Flags().String("tor-socks-addr", "",
		"SOCKS listen address of the embedded Tor daemon (default: a free port)")

	return cmd
}

func runRunCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	// Validate already accepted the target.
	cfg.Target, _ = target.Normalize(cfg.Target) //nolint:errcheck // validated above

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runRecon(ctx, cfg, logger, cmd.OutOrStdout(), newConsole(cmd.ErrOrStderr(), cfg.NoColor))
}

// getBoolFlag retrieves a boolean flag from the command or the root's
// persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// buildConfig creates a Config from defaults, the config file and the
// flags, in that order of precedence (flags win).
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicit path must exist; the implicit lookup may find nothing.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		if err := file.Apply(cfg); err != nil {
			return nil, fmt.Errorf("configuration error in %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if len(args) > 0 {
		cfg.Target = args[0]
	}

	headers, err := flags.GetStringArray("header")
	if err != nil {
		return nil, err
	}
	cfg.Headers = append(cfg.Headers, headers...)

	if flags.Changed("output") {
		if cfg.OutputDir, err = flags.GetString("output"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("threads") {
		if cfg.Threads, err = flags.GetInt("threads"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("include") {
		if cfg.Include, err = toolFlag(cmd, "include"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("exclude") {
		if cfg.Exclude, err = toolFlag(cmd, "exclude"); err != nil {
			return nil, err
		}
	}
	if cfg.WaybackOnly, err = flags.GetBool("wayback-only"); err != nil {
		return nil, err
	}
	if cfg.HttpxOnly, err = flags.GetBool("httpx-only"); err != nil {
		return nil, err
	}
	if flags.Changed("fuzz") {
		if cfg.Fuzz, err = flags.GetBool("fuzz"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("wordlist") {
		if cfg.Wordlist, err = flags.GetString("wordlist"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("tool-timeout") {
		if cfg.ToolTimeout, err = flags.GetDuration("tool-timeout"); err != nil {
			return nil, err
		}
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return nil, err
	}
	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory

	if flags.Changed("proxy") {
		if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
			return nil, err
		}
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.TorSocksAddr, err = flags.GetString("tor-socks-addr"); err != nil {
		return nil, err
	}

	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")
	cfg.NoColor = getBoolFlag(cmd, "no-color")

	return cfg, nil
}

// toolFlag parses a tool list flag against the registry.
func toolFlag(cmd *cobra.Command, name string) ([]tools.ID, error) {
	values, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		return nil, err
	}
	ids, err := tools.Parse(values)
	if err != nil {
		return nil, fmt.Errorf("configuration error: --%s: %w: %w", name, config.ErrUnknownTool, err)
	}
	return ids, nil
}

// setupLogger creates the secure structured logger.
func setupLogger(w io.Writer, verbose, jsonFormat bool) *slog.Logger {
	if jsonFormat {
		return log.NewSecureJSONLogger(w, verbose)
	}
	return log.NewSecureLogger(w, verbose)
}

// runRecon executes the pipeline for a validated configuration and writes
// the run report to out.
func runRecon(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer, con *console) error {
	logger.Info("starting run",
		"target", cfg.Target,
		"headers", cfg.Headers,
		"output", cfg.OutputDir,
		"threads", cfg.Threads,
		"include", cfg.Include,
		"exclude", cfg.Exclude,
	)

	env, cleanup, err := setupProxy(ctx, cfg, logger, con)
	if err != nil {
		return err
	}
	defer cleanup()

	adapterOpts := []toolexec.Option{
		toolexec.WithLogger(logger),
		toolexec.WithProgress(con.Running),
		toolexec.WithEnv(env...),
	}
	if cfg.ToolTimeout > 0 {
		adapterOpts = append(adapterOpts, toolexec.WithTimeout(cfg.ToolTimeout))
	}

	rc := &pipeline.RunContext{
		Target:          cfg.Target,
		Headers:         cfg.Headers,
		OutputDir:       cfg.OutputDir,
		Threads:         cfg.Threads,
		EnumerateBudget: cfg.EnumerateBudget,
		ArchiveBudget:   cfg.ArchiveBudget,
		Selection:       cfg.Selection(),
		Fuzz:            cfg.Fuzz,
		Wordlist:        cfg.Wordlist,
		Wordlists:       cfg.Wordlists,
		GfPatterns:      cfg.GfPatterns,
		Scheduler: pipeline.NewScheduler(
			toolexec.NewAdapter(adapterOpts...),
			pipeline.WithSchedulerLogger(logger),
		),
		Logger: logger,
	}

	runReport := model.NewRunReport(uuid.NewString(), cfg.Target, cfg.OutputDir)
	con.Infof("Run %s against %s, artifacts in %s", runReport.ID, cfg.Target, cfg.OutputDir)

	p := pipeline.DefaultPipeline(rc, pipeline.WithStepHook(con.Step))
	runErr := p.Execute(ctx, runReport)

	con.Summary(runReport.Summarize())
	if runReport.IndexPath != "" {
		con.Infof("Index: %s", runReport.IndexPath)
	}

	// The run is recorded and reported even when it was interrupted.
	saveCtx := context.WithoutCancel(ctx)
	if cfg.SaveToDB {
		if err := saveRun(saveCtx, cfg.DBDir, runReport, logger); err != nil {
			con.Warnf("history not saved: %v", err)
		}
	}

	if err := outputReport(cfg, runReport, out); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if runReport.Cancelled || errors.Is(runErr, context.Canceled) {
		return errInterrupted
	}
	return nil
}

// setupProxy prepares the proxy environment for the tools. The returned
// cleanup stops the embedded Tor daemon, if one was started.
func setupProxy(ctx context.Context, cfg *config.Config, logger *slog.Logger, con *console) ([]string, func(), error) {
	noop := func() {}

	switch {
	case cfg.ProxyAddress != "":
		p, err := tor.NewProxy(cfg.ProxyAddress)
		if err != nil {
			return nil, noop, fmt.Errorf("configuration error: %w", err)
		}
		if status := p.CheckConnection(ctx); status != tor.ProxyStatusOK {
			return nil, noop, fmt.Errorf("proxy check failed: %s: %w", status, status.Error())
		}
		if err := p.CheckRoute(ctx, net.JoinHostPort(cfg.Target, "443")); err != nil {
			con.Warnf("target not reachable through proxy: %v", err)
		}
		logger.Info("proxy verified", "proxy", p.Address())
		con.Infof("Tool traffic routed through %s", p.URL())
		return p.Env(), noop, nil

	case cfg.UseTor:
		con.Infof("Starting embedded Tor daemon (this may take 1-3 minutes)...")
		torOpts := []tor.EmbeddedTorOption{tor.WithStartupTimeout(cfg.TorStartupTimeout)}
		if cfg.TorSocksAddr != "" {
			torOpts = append(torOpts, tor.WithSocksAddr(cfg.TorSocksAddr))
		}
		embedded := tor.NewEmbeddedTor(torOpts...)
		if err := embedded.Start(ctx); err != nil {
			return nil, noop, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		cleanup := func() {
			logger.Info("stopping embedded Tor daemon")
			if err := embedded.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}

		p, err := embedded.Proxy()
		if err != nil {
			cleanup()
			return nil, noop, err
		}
		if status := p.CheckConnection(ctx); status != tor.ProxyStatusOK {
			cleanup()
			return nil, noop, fmt.Errorf("embedded Tor proxy check failed: %s", status)
		}
		logger.Info("embedded Tor daemon started",
			"socksAddr", embedded.SocksAddr(),
			"controlAddr", embedded.ControlAddr(),
		)
		con.Infof("Tool traffic routed through Tor at %s", p.URL())
		return p.Env(), cleanup, nil

	default:
		return nil, noop, nil
	}
}

// saveRun records the run in the history database.
func saveRun(ctx context.Context, dbDir string, runReport *model.RunReport, logger *slog.Logger) error {
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.SaveRun(ctx, runReport); err != nil {
		return err
	}
	logger.Info("run saved to history", "id", runReport.ID, "db", db.Path())
	return nil
}

// reportFormat returns the report format selected by the flags.
func reportFormat(cfg *config.Config) report.Format {
	switch {
	case cfg.JSONReport:
		return report.FormatJSON
	case cfg.MarkdownReport:
		return report.FormatMarkdown
	default:
		return report.FormatText
	}
}

// outputReport writes the run report to the report file or to out.
func outputReport(cfg *config.Config, runReport *model.RunReport, out io.Writer) error {
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}

		// Reports name the target and its hosts; keep them private.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
	}

	w, err := report.NewWriter(reportFormat(cfg), out, getVersion())
	if err != nil {
		return err
	}
	_, err = w.Write(runReport)
	return err
}
