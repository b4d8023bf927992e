package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/painminer/internal/report"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export clusters, pains, and costs to an Excel workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out, _ := cmd.Flags().GetString("out")
		days, _ := cmd.Flags().GetInt("days")

		if err := report.NewExporter(st).Export(ctx, out, days); err != nil {
			return eris.Wrap(err, "export")
		}
		fmt.Fprintf(os.Stdout, "wrote %s\n", out)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "painminer.xlsx", "output file path")
	exportCmd.Flags().Int("days", 30, "days of cost history to include")
	rootCmd.AddCommand(exportCmd)
}
