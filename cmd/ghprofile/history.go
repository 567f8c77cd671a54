package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/ghprofile/internal/config"
	"github.com/nao1215/ghprofile/internal/database"
	"github.com/nao1215/ghprofile/internal/model"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit is the number of runs listed without --limit.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past runs or show one of them",
		Long: `History lists the runs stored in the history database, newest first.

With a run ID it prints the full report of that run again.

Examples:
  # Last 20 runs
  ghprofile history

  # Runs of one account
  ghprofile history -u octocat --limit 5

  # Show a run as Markdown
  ghprofile history 3f2b... --report-format markdown

  # Keep only the 10 latest runs of an account
  ghprofile history -u octocat --prune 10`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().StringP(config.FlagUsername, "u", "", "Only list runs of this account")
	cmd.Flags().IntP("limit", "l", defaultHistoryLimit, "Maximum number of runs to list (0 for all)")
	cmd.Flags().String("report-format", config.ReportFormatSimple, "Report format of a single run: simple, markdown or json")
	cmd.Flags().Int("prune", -1, "Delete all but the N latest runs of --username")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the history database")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	username, err := cmd.Flags().GetString(config.FlagUsername)
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("report-format")
	if err != nil {
		return err
	}
	prune, err := cmd.Flags().GetInt("prune")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if _, err := os.Stat(filepath.Join(dbDir, database.FileName)); os.IsNotExist(err) {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()

	if prune >= 0 {
		if username == "" {
			return fmt.Errorf("--prune needs --%s", config.FlagUsername)
		}
		deleted, err := db.PruneRuns(ctx, username, prune)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d run(s) of %s.\n", deleted, username)
		return nil
	}

	if len(args) == 1 {
		runReport, err := db.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		if runReport == nil {
			return fmt.Errorf("run not found: %s", args[0])
		}

		switch format {
		case config.ReportFormatSimple, config.ReportFormatMarkdown, config.ReportFormatJSON:
		default:
			return fmt.Errorf("configuration error: %w", config.ErrInvalidReportFormat)
		}

		cfg := config.NewConfig()
		cfg.ReportFormat = format
		cfg.Verbose = getVerboseFlag(cmd)
		_, err = newReportWriter(cfg, out).Write(runReport)
		return err
	}

	runs, err := db.ListRuns(ctx, username, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	return writeRunList(out, runs, time.Now())
}

// writeRunList prints one line per run with humanized times.
func writeRunList(w io.Writer, runs []database.RunSummary, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSER\tRESULT\tTRANSPORT\tSTARTED\tDURATION")
	for _, r := range runs {
		result := "ok"
		switch {
		case r.State == model.StateFailed:
			result = "failed"
		case !r.Succeeded:
			result = fmt.Sprintf("%d failed", r.Failures)
		}
		if r.DryRun {
			result += " (dry run)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.Username,
			result,
			r.Transport,
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			r.Duration().Round(time.Millisecond),
		)
	}
	return tw.Flush()
}
