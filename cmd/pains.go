package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/painminer/internal/model"
	"github.com/sells-group/painminer/internal/store"
)

var painsCmd = &cobra.Command{
	Use:   "pains",
	Short: "List extracted pains",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		industry, _ := cmd.Flags().GetString("industry")
		source, _ := cmd.Flags().GetString("source")
		minSev, _ := cmd.Flags().GetInt("min-severity")
		limit, _ := cmd.Flags().GetInt("limit")

		pains, err := st.ListPains(ctx, store.PainFilter{
			Industry:    industry,
			Source:      model.Source(source),
			MinSeverity: minSev,
			Limit:       limit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEVERITY\tWTP\tSOURCE\tINDUSTRY\tTITLE")
		for _, p := range pains {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.Severity, p.WillingnessToPay, p.Source, p.Industry, p.Title)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "\n%d pains\n", len(pains))
		return nil
	},
}

func init() {
	painsCmd.Flags().String("industry", "", "filter by industry")
	painsCmd.Flags().String("source", "", "filter by source")
	painsCmd.Flags().Int("min-severity", 0, "minimum severity (1-10)")
	painsCmd.Flags().Int("limit", 50, "max pains to list")
	rootCmd.AddCommand(painsCmd)
}
