package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/madrecon/internal/pipeline"
	"github.com/nao1215/madrecon/internal/selection"
	"github.com/nao1215/madrecon/internal/target"
	"github.com/nao1215/madrecon/internal/tools"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "madrecon"

	// DefaultOutputDir is the artifact directory, relative to the working
	// directory.
	DefaultOutputDir = "recon_output"

	// DefaultThreads is the user worker budget of the crawl, probe, scan,
	// extract and fuzz stages.
	DefaultThreads = pipeline.DefaultThreads

	// DefaultEnumerateBudget is the worker budget of the subdomain
	// enumerators, independent of the thread count.
	DefaultEnumerateBudget = pipeline.DefaultEnumerateBudget

	// DefaultArchiveBudget is the worker budget of the URL archive tools.
	DefaultArchiveBudget = pipeline.DefaultArchiveBudget

	// DefaultWordlistName is the file name of the default fuzzing wordlist
	// inside the XDG data directory.
	DefaultWordlistName = "common.txt"

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// DefaultGfPatterns returns the gf categories extracted from archived URLs.
func DefaultGfPatterns() []string {
	return append([]string(nil), pipeline.DefaultGfPatterns...)
}

// Config holds all configuration options for a run.
// It is populated from the config file and CLI flags, validated once, and
// then passed down explicitly.
type Config struct {
	// Target is the domain under test.
	Target string

	// Headers are raw "Name: value" headers passed to header-aware tools,
	// config file headers first.
	Headers []string

	// OutputDir receives every artifact of the run.
	OutputDir string

	// Threads is the user worker budget.
	Threads int

	// EnumerateBudget and ArchiveBudget are the fixed stage budgets.
	EnumerateBudget int
	ArchiveBudget   int

	// Include and Exclude select tools. Exclude always wins; an empty
	// Include means every tool.
	Include []tools.ID
	Exclude []tools.ID

	// WaybackOnly and HttpxOnly are shorthands for a single-tool Include.
	WaybackOnly bool
	HttpxOnly   bool

	// Fuzz enables the fuzz stage.
	Fuzz bool

	// Wordlist is the default fuzzing wordlist. Wordlists overrides it per
	// fuzzer.
	Wordlist  string
	Wordlists map[tools.ID]string

	// GfPatterns are the gf categories to extract.
	GfPatterns []string

	// ToolTimeout bounds every tool process. Zero means no timeout.
	ToolTimeout time.Duration

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// LogJSON selects the JSON log handler.
	LogJSON bool

	// NoColor disables colored progress output.
	NoColor bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, .madrecon is searched in the current directory and then in
	// the user's home directory.
	ConfigFilePath string

	// JSONReport and MarkdownReport select the run report format. They are
	// mutually exclusive; the default is plain text.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// DBDir is the directory of the run history database.
	// Defaults to the XDG data directory.
	DBDir string

	// SaveToDB indicates whether to save the run to the history database.
	SaveToDB bool

	// UseTor starts an embedded Tor daemon and routes tool traffic through
	// it.
	UseTor bool

	// ProxyAddress is an external SOCKS5 proxy ("host:port") for tool
	// traffic.
	ProxyAddress string

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon. Only used when UseTor is true.
	TorStartupTimeout time.Duration

	// TorSocksAddr pins the SOCKS listen address of the embedded Tor
	// daemon. Empty lets the OS pick a free port.
	TorSocksAddr string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		OutputDir:         DefaultOutputDir,
		Threads:           DefaultThreads,
		EnumerateBudget:   DefaultEnumerateBudget,
		ArchiveBudget:     DefaultArchiveBudget,
		Wordlist:          DefaultWordlist(),
		Wordlists:         make(map[tools.ID]string),
		GfPatterns:        DefaultGfPatterns(),
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
		TorStartupTimeout: DefaultTorStartupTimeout,
	}
}

// XDGDataDir returns the XDG data directory for madrecon.
// On Linux: ~/.local/share/madrecon
// On macOS: ~/Library/Application Support/madrecon
// On Windows: %LOCALAPPDATA%\madrecon
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for madrecon.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DefaultWordlist returns the conventional fuzzing wordlist path.
func DefaultWordlist() string {
	return filepath.Join(XDGDataDir(), "wordlists", DefaultWordlistName)
}

// Selection returns the tool selection of the run, with the only-mode
// shorthands expanded.
func (c *Config) Selection() selection.Set {
	include := c.Include
	switch {
	case c.WaybackOnly:
		include = []tools.ID{tools.Waybackurls}
	case c.HttpxOnly:
		include = []tools.ID{tools.Httpx}
	}
	return selection.New(include, c.Exclude)
}

// ProxyEnabled reports whether tool traffic is proxied.
func (c *Config) ProxyEnabled() bool {
	return c.UseTor || c.ProxyAddress != ""
}

// Validate checks if the configuration is valid.
// It returns the first problem found, wrapping one of the sentinel errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Target) == "" {
		return ErrNoTarget
	}
	if _, err := target.Normalize(c.Target); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}

	if c.Threads <= 0 {
		return ErrInvalidThreads
	}
	if c.EnumerateBudget <= 0 || c.ArchiveBudget <= 0 {
		return ErrInvalidBudget
	}

	if c.ToolTimeout < 0 {
		return ErrInvalidTimeout
	}
	if c.UseTor && c.TorStartupTimeout <= 0 {
		return fmt.Errorf("%w: tor startup timeout must be positive", ErrInvalidTimeout)
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	only := 0
	for _, set := range []bool{c.WaybackOnly, c.HttpxOnly, len(c.Include) > 0} {
		if set {
			only++
		}
	}
	if only > 1 {
		return ErrConflictingOnlyFlags
	}

	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingProxy
	}

	if err := validateTools(c.Include, c.Exclude); err != nil {
		return err
	}
	for id := range c.Wordlists {
		spec, ok := tools.Lookup(id)
		if !ok || spec.Category != tools.CategoryFuzz {
			return fmt.Errorf("%w: %q is not a fuzzer", ErrUnknownTool, id)
		}
	}

	for _, h := range c.Headers {
		if !validHeader(h) {
			return fmt.Errorf("%w: %q", ErrInvalidHeader, h)
		}
	}

	return nil
}

// validateTools checks that every identifier is in the registry.
func validateTools(lists ...[]tools.ID) error {
	for _, list := range lists {
		values := make([]string, len(list))
		for i, id := range list {
			values[i] = string(id)
		}
		if _, err := tools.Parse(values); err != nil {
			return fmt.Errorf("%w: %w", ErrUnknownTool, err)
		}
	}
	return nil
}

// validHeader reports whether h looks like "Name: value".
func validHeader(h string) bool {
	name, _, ok := strings.Cut(h, ":")
	name = strings.TrimSpace(name)
	return ok && name != "" && !strings.ContainsAny(name, " \t")
}
