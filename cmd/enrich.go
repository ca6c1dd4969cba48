package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-cli/internal/model"
)

var (
	enrichConcurrency int
	enrichPolicyPath  string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run the enrichment pipeline over the workbook",
	Long:  "Queries every configured search provider for each institution, consolidates the evidence through Claude, and merges the results under the never-regress-confidence policy.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if enrichConcurrency > 0 {
			cfg.Enrich.Concurrency = enrichConcurrency
		}
		if enrichPolicyPath != "" {
			cfg.Enrich.PolicyPath = enrichPolicyPath
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Driver.Run(ctx)
		if summary != nil {
			formatSummary(os.Stdout, summary)
		}
		return err
	},
}

func init() {
	enrichCmd.Flags().IntVar(&enrichConcurrency, "concurrency", 0, "worker pool size (default from config)")
	enrichCmd.Flags().StringVar(&enrichPolicyPath, "policy", "", "field policy YAML path (default from config)")
	rootCmd.AddCommand(enrichCmd)
}

// formatSummary prints the end-of-run accounting: counters, every skipped
// institution with its reason, and per-provider failure counts.
func formatSummary(w io.Writer, s *model.RunSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Processed:\t%d\n", s.Processed)
	fmt.Fprintf(tw, "Merged:\t%d\n", s.Merged)
	fmt.Fprintf(tw, "Skipped:\t%d\n", s.Skipped)
	fmt.Fprintf(tw, "Field changes:\t%d\n", s.FieldChanges)
	fmt.Fprintf(tw, "Disagreements:\t%d\n", s.Disagreements)
	tw.Flush()

	if len(s.Skips) > 0 {
		fmt.Fprintln(w, "\nSkipped institutions:")
		for _, sk := range s.Skips {
			fmt.Fprintf(w, "  %s: %s\n", sk.Institution, sk.Reason)
		}
	}

	if len(s.ProviderFailures) > 0 {
		names := make([]string, 0, len(s.ProviderFailures))
		for name := range s.ProviderFailures {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(w, "\nProvider failures:")
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %d\n", name, s.ProviderFailures[name])
		}
	}
}
