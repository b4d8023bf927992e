package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List collection runs, or show one in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if len(args) == 1 {
			run, err := st.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			if run == nil {
				return eris.Errorf("runs: run %s not found", args[0])
			}
			spend, err := st.RunCost(ctx, run.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Run %s\n", run.ID)
			fmt.Fprintf(os.Stdout, "  status:      %s\n", run.Status)
			fmt.Fprintf(os.Stdout, "  started:     %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
			if run.FinishedAt != nil {
				fmt.Fprintf(os.Stdout, "  finished:    %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintf(os.Stdout, "  items seen:  %d\n", run.ItemsSeen)
			fmt.Fprintf(os.Stdout, "  classified:  %d\n", run.ItemsClassified)
			fmt.Fprintf(os.Stdout, "  failures:    %d\n", run.Failures)
			fmt.Fprintf(os.Stdout, "  cost:        $%.4f\n", spend)
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tSEEN\tCLASSIFIED\tFAILURES\tSTARTED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
				r.ID, r.Status, r.ItemsSeen, r.ItemsClassified, r.Failures,
				r.StartedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "max runs to list")
	rootCmd.AddCommand(runsCmd)
}
