package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/painminer/internal/cluster"
	"github.com/sells-group/painminer/internal/embed"
	"github.com/sells-group/painminer/internal/tracker"
	"github.com/sells-group/painminer/pkg/anthropic"
	"github.com/sells-group/painminer/pkg/jina"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Embed pains and recompute clusters",
	Long:  "Ensures every stored pain has an up-to-date embedding, runs density clustering over them, scores each cluster, and atomically replaces the previous clustering.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Jina.Key == "" {
			return eris.New("jina API key is required (PAINMINER_JINA_KEY)")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var tr *tracker.Tracker
		if runID, _ := cmd.Flags().GetString("run"); runID != "" {
			tr, err = tracker.Resume(ctx, st, initCalculator(), runID)
		} else {
			tr, err = tracker.Begin(ctx, st, initCalculator())
		}
		if err != nil {
			return err
		}

		weights, err := cluster.LoadWeights(cfg.Cluster.WeightsFile)
		if err != nil {
			return err
		}

		jinaOpts := []jina.Option{jina.WithModel(cfg.Jina.Model)}
		if cfg.Jina.BaseURL != "" {
			jinaOpts = append(jinaOpts, jina.WithBaseURL(cfg.Jina.BaseURL))
		}
		index := embed.New(st, jina.NewClient(cfg.Jina.Key, jinaOpts...), tr, embed.Config{
			Model:     cfg.Jina.Model,
			BatchSize: cfg.Jina.BatchSize,
		})

		engine := cluster.NewEngine(st, index, anthropic.NewClient(cfg.Anthropic.Key), tr, cluster.Config{
			Eps:              cfg.Cluster.Eps,
			MinClusterSize:   cfg.Cluster.MinClusterSize,
			JaccardThreshold: cfg.Cluster.JaccardThreshold,
			NamingModel:      cfg.Anthropic.NamingModel,
			Weights:          weights,
		})

		clusters, err := engine.Recompute(ctx, tr.RunID())
		if err != nil {
			return eris.Wrap(err, "cluster")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SCORE\tSIZE\tSEVERITY\tWTP\tNAME")
		for _, c := range clusters {
			fmt.Fprintf(w, "%.2f\t%d\t%.1f\t%s\t%s\n", c.OpportunityScore, c.Size, c.AvgSeverity, c.AvgWTP, c.Name)
		}
		if err := w.Flush(); err != nil {
			return eris.Wrap(err, "cluster: flush output")
		}
		fmt.Fprintf(os.Stdout, "\n%d clusters\n", len(clusters))
		return nil
	},
}

func init() {
	clusterCmd.Flags().String("run", "", "attach costs to an existing run instead of starting a new one")
	rootCmd.AddCommand(clusterCmd)
}
