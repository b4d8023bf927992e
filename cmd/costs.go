package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Show daily LLM spend and pain yield",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		days, _ := cmd.Flags().GetInt("days")
		to := time.Now().UTC()
		from := to.AddDate(0, 0, -days)

		if err := st.RecomputeDailyStats(ctx, from, to); err != nil {
			return err
		}
		stats, err := st.DailyStats(ctx, from, to)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DAY\tCALLS\tTOKENS\tCOST\tPAINS")
		var total float64
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t$%.4f\t%d\n",
				s.Day.Format("2006-01-02"), s.Calls, s.Tokens, s.CostUSD, s.PainsFound)
			total += s.CostUSD
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "\ntotal: $%.4f over %d days\n", total, days)
		return nil
	},
}

func init() {
	costsCmd.Flags().Int("days", 30, "how many days back to report")
	rootCmd.AddCommand(costsCmd)
}
