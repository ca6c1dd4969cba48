package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the workbook as CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}

		if exportOut == "" || exportOut == "-" {
			return st.ExportCSV(os.Stdout)
		}

		f, err := os.Create(exportOut)
		if err != nil {
			return eris.Wrap(err, "create export file")
		}
		defer f.Close()

		if err := st.ExportCSV(f); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("out", exportOut),
			zap.Int("institutions", st.Len()),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "-", "output CSV path (- for stdout)")
	rootCmd.AddCommand(exportCmd)
}
