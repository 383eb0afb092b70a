// Package database provides SQLite-based run history for madrecon.
//
// RunDB stores, per pipeline run:
//   - the run metadata (ID, target, output directory, timing)
//   - the complete run report as JSON
//   - one row per tool invocation with its outcome
//
// It uses modernc.org/sqlite, a CGO-free driver, so the binary stays easy
// to cross-compile. The database lives in $XDG_DATA_HOME/madrecon by
// default.
package database
