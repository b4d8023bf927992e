package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/painminer/internal/store"
)

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "List pain clusters with verdicts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		minSize, _ := cmd.Flags().GetInt("min-size")
		limit, _ := cmd.Flags().GetInt("limit")

		clusters, err := st.ListClusters(ctx, store.ClusterFilter{
			MinSize: minSize,
			Limit:   limit,
		})
		if err != nil {
			return err
		}

		analyzed, err := st.AnalyzedClusterIDs(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SCORE\tSIZE\tSEVERITY\tWTP\tANALYZED\tINDUSTRIES\tNAME")
		for _, c := range clusters {
			mark := ""
			if analyzed[c.ID] {
				mark = "yes"
			}
			fmt.Fprintf(w, "%.1f\t%d\t%.1f\t%s\t%s\t%s\t%s\n",
				c.OpportunityScore, c.Size, c.AvgSeverity, c.AvgWTP, mark,
				strings.Join(c.TopIndustries, ","), c.Name)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "\n%d clusters\n", len(clusters))
		return nil
	},
}

func init() {
	clustersCmd.Flags().Int("min-size", 0, "minimum cluster size")
	clustersCmd.Flags().Int("limit", 50, "max clusters to list")
	rootCmd.AddCommand(clustersCmd)
}
