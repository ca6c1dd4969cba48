package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/journal"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/notion"
)

var reviewDatabase string

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Push fields needing human attention to Notion",
	Long:  "Exports institutions with provider disagreements or low-confidence consolidated fields to a Notion review database, one page per institution.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if reviewDatabase != "" {
			cfg.Notion.ReviewDB = reviewDatabase
		}
		if err := cfg.Validate("review"); err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return err
		}

		var records []*model.Institution
		_ = st.Iterate(func(inst *model.Institution) error {
			records = append(records, inst)
			return nil
		})

		runID := latestRunID(cmd, st.Path())

		entries := buildReviewEntries(records, runID)
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "Nothing needs review.")
			return nil
		}

		client := notion.NewClient(cfg.Notion.Token)
		created, updated, err := notion.ExportReview(ctx, client, cfg.Notion.ReviewDB, entries)
		if err != nil {
			return eris.Wrap(err, "export review")
		}

		zap.L().Info("review export complete",
			zap.Int("created", created),
			zap.Int("updated", updated),
			zap.String("database", cfg.Notion.ReviewDB),
		)
		return nil
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewDatabase, "database", "", "Notion review database ID (default from config)")
	rootCmd.AddCommand(reviewCmd)
}

// latestRunID looks up the most recent run for the workbook so review pages
// can link back to it. A missing or empty journal is not an error; the
// entries just carry no run reference.
func latestRunID(cmd *cobra.Command, workbook string) string {
	j, err := openJournal(cmd.Context())
	if err != nil {
		return ""
	}
	defer j.Close() //nolint:errcheck

	runs, err := j.ListRuns(cmd.Context(), journal.Filter{Workbook: workbook, Limit: 1})
	if err != nil || len(runs) == 0 {
		return ""
	}
	return runs[0].ID
}

// buildReviewEntries selects the institutions a human should look at: any
// record whose notes carry a disagreement marker, or with a consolidated
// field that never reached high confidence. Verified and manual fields are
// trusted and never queue a review on their own.
func buildReviewEntries(records []*model.Institution, runID string) []notion.ReviewEntry {
	var entries []notion.ReviewEntry

	for _, inst := range records {
		var reasons []string

		if strings.Contains(inst.Field(model.FieldNotes).Value, "Divergência") {
			reasons = append(reasons, "providers disagreed")
		}

		lowConf := 0
		for _, k := range model.EnrichableFields {
			if k == model.FieldNotes {
				continue
			}
			fv := inst.Field(k)
			if fv.Source == model.SourceConsolidated && fv.Confidence < model.ConfidenceHigh {
				lowConf++
			}
		}
		if lowConf > 0 {
			reasons = append(reasons, fmt.Sprintf("%d field(s) below high confidence", lowConf))
		}

		if len(reasons) == 0 {
			continue
		}

		entry := notion.ReviewEntry{
			Institution: inst.Name,
			RunID:       runID,
			Reason:      strings.Join(reasons, "; "),
		}
		for _, k := range model.EnrichableFields {
			fv := inst.Field(k)
			if fv.Absent() {
				continue
			}
			entry.Fields = append(entry.Fields, notion.ReviewField{
				Label:      k.Header(),
				Value:      fv.Value,
				Confidence: fv.Confidence.String(),
				Source:     fv.Source,
			})
		}
		entries = append(entries, entry)
	}

	return entries
}
