package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/madrecon/internal/model"
)

// FileName is the name of the history database inside its directory.
const FileName = "madrecon.db"

// ErrRunNotFound is returned when no run matches the requested ID.
var ErrRunNotFound = errors.New("run not found")

// RunDB stores the history of pipeline runs in SQLite.
//
// Each run is kept as its full JSON report plus one row per invocation so
// that history listings and per-tool statistics do not have to decode
// every report.
type RunDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a RunDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s: %w", dbPath, err)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file. A run saving history while
	// "madrecon history" reads it waits for the lock instead of failing.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}
	dsn += "&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Path returns the path of the database file.
func (rdb *RunDB) Path() string {
	return rdb.dbPath
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

func (rdb *RunDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		output_dir TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		cancelled INTEGER NOT NULL DEFAULT 0,
		summary_json TEXT,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS invocations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		stage TEXT NOT NULL,
		tool TEXT NOT NULL,
		outcome TEXT NOT NULL,
		artifact TEXT,
		exit_code INTEGER,
		duration_ms INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_inv_run ON invocations(run_id);
	CREATE INDEX IF NOT EXISTS idx_inv_tool ON invocations(tool);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a finished run. Saving the same run ID again replaces the
// previous record.
func (rdb *RunDB) SaveRun(ctx context.Context, report *model.RunReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}
	summaryJSON, err := json.Marshal(report.Summarize())
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM invocations WHERE run_id = ?`, report.ID); err != nil {
		return fmt.Errorf("failed to clear invocations: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (id, target, output_dir, started_at, finished_at, cancelled, summary_json, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		target = excluded.target,
		output_dir = excluded.output_dir,
		started_at = excluded.started_at,
		finished_at = excluded.finished_at,
		cancelled = excluded.cancelled,
		summary_json = excluded.summary_json,
		report_json = excluded.report_json
	`,
		report.ID,
		report.Target,
		report.OutputDir,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.Cancelled,
		string(summaryJSON),
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO invocations (run_id, stage, tool, outcome, artifact, exit_code, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare invocation insert: %w", err)
	}
	defer stmt.Close()

	for _, stage := range report.Stages {
		for _, res := range stage.Results {
			_, err := stmt.ExecContext(ctx,
				report.ID,
				stage.Name,
				string(res.Tool),
				res.Outcome.String(),
				res.Artifact,
				res.ExitCode,
				res.Duration.Milliseconds(),
			)
			if err != nil {
				return fmt.Errorf("failed to save invocation %s: %w", res.Tool, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun returns the stored report of the run with the given ID, or
// ErrRunNotFound.
func (rdb *RunDB) GetRun(ctx context.Context, id string) (*model.RunReport, error) {
	var reportJSON string
	err := rdb.db.QueryRowContext(ctx, `SELECT report_json FROM runs WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.RunReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// RunMetadata summarizes a stored run without loading its report.
type RunMetadata struct {
	// ID is the run identifier.
	ID string

	// Target is the domain of the run.
	Target string

	// OutputDir is where the run wrote its artifacts.
	OutputDir string

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time
	FinishedAt time.Time

	// Cancelled is true when the run was interrupted.
	Cancelled bool

	// Summary holds the outcome counts of the run.
	Summary model.Summary
}

// ListRuns returns the runs against target, newest first. An empty target
// lists every run.
func (rdb *RunDB) ListRuns(ctx context.Context, target string) ([]RunMetadata, error) {
	query := `
	SELECT id, target, output_dir, started_at, finished_at, cancelled, summary_json
	FROM runs
	WHERE 1=1
	`
	args := make([]any, 0, 1)
	if target != "" {
		query += " AND target = ?"
		args = append(args, target)
	}
	query += " ORDER BY started_at DESC"

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var started string
		var finished, summaryJSON sql.NullString

		if err := rows.Scan(&meta.ID, &meta.Target, &meta.OutputDir, &started, &finished, &meta.Cancelled, &summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		meta.StartedAt = parseTimestamp(started)
		if finished.Valid {
			meta.FinishedAt = parseTimestamp(finished.String)
		}
		if summaryJSON.Valid && summaryJSON.String != "" {
			if err := json.Unmarshal([]byte(summaryJSON.String), &meta.Summary); err != nil {
				meta.Summary = model.Summary{}
			}
		}
		if meta.Summary.Counts == nil {
			meta.Summary.Counts = make(map[model.Outcome]int)
		}

		results = append(results, meta)
	}

	return results, rows.Err()
}

// ListTargets returns every target with at least one stored run.
func (rdb *RunDB) ListTargets(ctx context.Context) ([]string, error) {
	rows, err := rdb.db.QueryContext(ctx, `SELECT DISTINCT target FROM runs ORDER BY target`)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []string
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, target)
	}

	return targets, rows.Err()
}

// ToolStat counts the outcomes of one tool across stored runs.
type ToolStat struct {
	Tool    string
	Outcome model.Outcome
	Count   int
}

// ToolStats aggregates invocation outcomes per tool, optionally limited to
// one target.
func (rdb *RunDB) ToolStats(ctx context.Context, target string) ([]ToolStat, error) {
	query := `
	SELECT i.tool, i.outcome, COUNT(*)
	FROM invocations i JOIN runs r ON r.id = i.run_id
	WHERE 1=1
	`
	args := make([]any, 0, 1)
	if target != "" {
		query += " AND r.target = ?"
		args = append(args, target)
	}
	query += " GROUP BY i.tool, i.outcome ORDER BY i.tool, i.outcome"

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool stats: %w", err)
	}
	defer rows.Close()

	var stats []ToolStat
	for rows.Next() {
		var st ToolStat
		var outcome string
		if err := rows.Scan(&st.Tool, &outcome, &st.Count); err != nil {
			return nil, fmt.Errorf("failed to scan tool stat: %w", err)
		}
		parsed, err := model.ParseOutcome(outcome)
		if err != nil {
			return nil, err
		}
		st.Outcome = parsed
		stats = append(stats, st)
	}

	return stats, rows.Err()
}

// DeleteRun removes a run and its invocations.
func (rdb *RunDB) DeleteRun(ctx context.Context, id string) error {
	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM invocations WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete invocations: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return tx.Commit()
}

// timestampLayout is fixed width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timestampLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp parses s with the first matching format, or returns the
// zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
