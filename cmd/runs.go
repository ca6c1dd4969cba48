package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-cli/internal/journal"
	"github.com/sells-group/enrich-cli/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect enrichment run history",
	Long:  "Commands for listing and viewing past enrichment runs recorded in the journal.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrichment runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		j, err := openJournal(ctx)
		if err != nil {
			return err
		}
		defer j.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		workbook, _ := cmd.Flags().GetString("workbook")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := j.ListRuns(ctx, journal.Filter{
			Status:   model.RunStatus(status),
			Workbook: workbook,
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run, including its skips",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		j, err := openJournal(ctx)
		if err != nil {
			return err
		}
		defer j.Close() //nolint:errcheck

		run, err := j.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		skips, err := j.ListSkips(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show skips")
		}

		out := struct {
			*model.Run
			SkipDetails []model.SkipRecord `json:"skip_details,omitempty"`
		}{Run: run, SkipDetails: skips}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, interrupted, aborted)")
	runsListCmd.Flags().String("workbook", "", "filter by workbook path")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList renders runs as a table, newest first as the journal
// returns them.
func formatRunsList(w io.Writer, runs []model.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKBOOK\tSTATUS\tSTARTED\tMERGED\tSKIPPED")

	for _, r := range runs {
		merged, skipped := "-", "-"
		if r.Summary != nil {
			merged = fmt.Sprintf("%d", r.Summary.Merged)
			skipped = fmt.Sprintf("%d", r.Summary.Skipped)
		}
		fmt.Fprintf(tw, "%.8s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.Workbook,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			merged,
			skipped,
		)
	}

	tw.Flush()
}
