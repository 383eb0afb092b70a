// Package log provides secure logging on top of log/slog.
//
// The SecureHandler masks sensitive information before it reaches the
// output:
//   - Custom request headers ("Authorization: Bearer ...") keep their name
//     but lose their value
//   - Attributes named like credentials (token, cookie, password, ...)
//   - Values that look like JWTs, bearer or basic credentials, API keys
//   - Passwords embedded in URLs such as proxy addresses
//
// Even in verbose mode, sensitive values are masked so logs can be shared.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("run started",
//	    "headers", cfg.Headers, // ["Authorization: ***REDACTED***"]
//	    "target", cfg.Target,
//	)
//
// The logger is also handed to tornago when the embedded Tor daemon is used.
package log
