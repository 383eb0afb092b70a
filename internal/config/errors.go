package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() before any tool runs.
// Callers use errors.Is() to tell them apart.
var (
	// ErrNoTarget is returned when no target domain is specified.
	ErrNoTarget = errors.New("no target specified: provide a domain")

	// ErrInvalidTarget is returned when the target is not a valid domain.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrInvalidThreads is returned when the worker budget is not positive.
	ErrInvalidThreads = errors.New("invalid threads: must be positive")

	// ErrInvalidBudget is returned when a fixed stage budget is not positive.
	ErrInvalidBudget = errors.New("invalid stage budget: must be positive")

	// ErrInvalidTimeout is returned when a timeout is negative, or when the
	// Tor startup timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingOnlyFlags is returned when --wayback-only, --httpx-only
	// and --include are combined.
	ErrConflictingOnlyFlags = errors.New("conflicting selection: --wayback-only, --httpx-only and --include are mutually exclusive")

	// ErrConflictingProxy is returned when both --tor and --proxy are given.
	ErrConflictingProxy = errors.New("conflicting proxy: --tor and --proxy cannot be used together")

	// ErrUnknownTool is returned when include, exclude or a wordlist
	// override names a tool outside the registry.
	ErrUnknownTool = errors.New("configuration names an unknown tool")

	// ErrInvalidHeader is returned when a header is not in "Name: value" form.
	ErrInvalidHeader = errors.New("invalid header: expected \"Name: value\"")
)
