package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-cli/internal/model"
)

var listValues bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List institutions and their field fill state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}

		var records []*model.Institution
		_ = st.Iterate(func(inst *model.Institution) error {
			records = append(records, inst)
			return nil
		})

		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No institutions found.")
			return nil
		}

		formatInstitutionList(os.Stdout, records, listValues)
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listValues, "values", false, "print field values instead of confidence levels")
	rootCmd.AddCommand(listCmd)
}

// listFields is the column set of the list table. Observações is left out:
// notes hold URLs and disagreement markers that do not fit a table cell.
var listFields = []model.FieldKey{
	model.FieldDirection,
	model.FieldEmail,
	model.FieldPhone,
	model.FieldAddress,
	model.FieldPostalCode,
}

// formatInstitutionList renders one row per institution. Each field cell
// shows the confidence level (or the value with --values); absent fields
// show "-". The FILLED column counts non-absent fields.
func formatInstitutionList(w io.Writer, records []*model.Institution, values bool) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprint(tw, "INSTITUTION")
	for _, k := range listFields {
		fmt.Fprintf(tw, "\t%s", k.Header())
	}
	fmt.Fprintln(tw, "\tFILLED")

	for _, inst := range records {
		fmt.Fprint(tw, inst.Name)
		filled := 0
		for _, k := range listFields {
			fv := inst.Field(k)
			switch {
			case fv.Absent():
				fmt.Fprint(tw, "\t-")
			case values:
				fmt.Fprintf(tw, "\t%s", truncate(fv.Value, 28))
				filled++
			default:
				fmt.Fprintf(tw, "\t%s", fv.Confidence)
				filled++
			}
		}
		fmt.Fprintf(tw, "\t%d/%d\n", filled, len(listFields))
	}

	tw.Flush()
}

// truncate shortens s to at most n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
