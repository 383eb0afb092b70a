package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/madrecon/internal/config"
	"github.com/nao1215/madrecon/internal/database"
	"github.com/nao1215/madrecon/internal/model"
	"github.com/nao1215/madrecon/internal/report"
	"github.com/nao1215/madrecon/internal/target"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [domain]",
		Short: "Show previous runs",
		Long: `History lists the runs recorded in the history database.

Every 'madrecon run' is stored with its full report unless --no-history is
given. Without a domain, runs against every target are listed.

Examples:
  # List every recorded run
  madrecon history

  # List runs against one domain
  madrecon history example.com

  # Show the report of one run
  madrecon history --id 3f0c1a52-...

  # Show which tools failed most often against a domain
  madrecon history --stats example.com

  # List every target in the database
  madrecon history --targets`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("id", "", "Show the report of the run with this ID")
	cmd.Flags().Bool("targets", false, "List every target with recorded runs")
	cmd.Flags().Bool("stats", false, "Show invocation outcomes per tool")
	cmd.Flags().String("delete", "", "Delete the run with this ID")
	cmd.Flags().BoolP("json", "j", false, "Show the run report as JSON (with --id)")
	cmd.Flags().BoolP("markdown", "m", false, "Show the run report as Markdown (with --id)")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "History database directory")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	runID, err := flags.GetString("id")
	if err != nil {
		return err
	}
	listTargets, err := flags.GetBool("targets")
	if err != nil {
		return err
	}
	stats, err := flags.GetBool("stats")
	if err != nil {
		return err
	}
	deleteID, err := flags.GetString("delete")
	if err != nil {
		return err
	}
	jsonOut, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOut, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOut && markdownOut {
		return config.ErrConflictingReportFormats
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}

	// Validate before opening the database.
	var domain string
	if len(args) > 0 {
		if domain, err = target.Normalize(args[0]); err != nil {
			return fmt.Errorf("invalid domain: %w", err)
		}
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case deleteID != "":
		if err := db.DeleteRun(ctx, deleteID); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted run %s\n", deleteID)
		return nil
	case runID != "":
		format := report.FormatText
		if jsonOut {
			format = report.FormatJSON
		} else if markdownOut {
			format = report.FormatMarkdown
		}
		return showRun(ctx, db, runID, format, out)
	case listTargets:
		return listRecordedTargets(ctx, db, out)
	case stats:
		return showToolStats(ctx, db, domain, out)
	default:
		return listRuns(ctx, db, domain, out)
	}
}

func showRun(ctx context.Context, db *database.RunDB, id string, format report.Format, out io.Writer) error {
	runReport, err := db.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			return fmt.Errorf("%w (use 'madrecon history' to list runs)", err)
		}
		return err
	}

	w, err := report.NewWriter(format, out, getVersion())
	if err != nil {
		return err
	}
	_, err = w.Write(runReport)
	return err
}

func listRuns(ctx context.Context, db *database.RunDB, domain string, out io.Writer) error {
	runs, err := db.ListRuns(ctx, domain)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		if domain != "" {
			fmt.Fprintf(out, "No runs recorded for %s\n", domain)
		} else {
			fmt.Fprintln(out, "No runs recorded")
		}
		return nil
	}

	fmt.Fprintf(out, "%-36s  %-24s  %-19s  %8s  %s\n", "ID", "TARGET", "STARTED", "DURATION", "OUTCOMES")
	for _, r := range runs {
		fmt.Fprintf(out, "%-36s  %-24s  %-19s  %8s  %s\n",
			r.ID,
			r.Target,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			runDuration(r),
			outcomeCounts(r.Summary, r.Cancelled),
		)
	}
	return nil
}

func runDuration(r database.RunMetadata) string {
	if r.FinishedAt.IsZero() {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}

func outcomeCounts(s model.Summary, cancelled bool) string {
	text := fmt.Sprintf("ok=%d absent=%d missing=%d failed=%d",
		s.Counts[model.OutcomeSuccess],
		s.Counts[model.OutcomeToolAbsent],
		s.Counts[model.OutcomeMissingPrerequisite],
		s.Counts[model.OutcomeExecutionError],
	)
	if cancelled {
		text += " (cancelled)"
	}
	return text
}

func listRecordedTargets(ctx context.Context, db *database.RunDB, out io.Writer) error {
	targets, err := db.ListTargets(ctx)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	for _, t := range targets {
		fmt.Fprintln(out, t)
	}
	return nil
}

func showToolStats(ctx context.Context, db *database.RunDB, domain string, out io.Writer) error {
	stats, err := db.ToolStats(ctx, domain)
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		fmt.Fprintln(out, "No invocations recorded")
		return nil
	}

	fmt.Fprintf(out, "%-12s  %-22s  %s\n", "TOOL", "OUTCOME", "COUNT")
	for _, s := range stats {
		fmt.Fprintf(out, "%-12s  %-22s  %d\n", s.Tool, s.Outcome, s.Count)
	}
	return nil
}
