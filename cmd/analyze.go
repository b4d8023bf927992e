package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/painminer/internal/analyze"
	"github.com/sells-group/painminer/internal/model"
	"github.com/sells-group/painminer/internal/tracker"
	"github.com/sells-group/painminer/pkg/anthropic"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run deep analysis on the top-scoring clusters",
	Long:  "Selects the highest-opportunity clusters that have not been analyzed yet and asks Claude for a full verdict on each. Analyses are append-only; use --force to re-analyze.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Anthropic.Key == "" {
			return eris.New("anthropic API key is required (PAINMINER_ANTHROPIC_KEY)")
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

		top, _ := cmd.Flags().GetInt("top")
		if top == 0 {
			top = cfg.Analyze.TopK
		}
		force, _ := cmd.Flags().GetBool("force")

		analyzer := analyze.New(anthropic.NewClient(cfg.Anthropic.Key), st, tr, analyze.Config{
			Model:           cfg.Anthropic.AnalyzeModel,
			MaxTokens:       int64(cfg.Anthropic.MaxTokens),
			TopK:            top,
			MinClusterSize:  cfg.Cluster.MinClusterSize,
			MaxContextPains: cfg.Analyze.MaxContextPains,
			MaxAttempts:     cfg.Classify.MaxAttempts,
			Force:           force || cfg.Analyze.Force,
		})

		if clusterID, _ := cmd.Flags().GetString("cluster"); clusterID != "" {
			c, err := st.GetCluster(ctx, clusterID)
			if err != nil {
				return err
			}
			if c == nil {
				return eris.Errorf("analyze: cluster %s not found", clusterID)
			}
			if err := tr.StartPhase(ctx); err != nil {
				return err
			}
			da, err := analyzer.AnalyzeCluster(ctx, *c, tr.RunID())
			if finErr := tr.FinishPhase(ctx, err); finErr != nil && err == nil {
				err = finErr
			}
			if err != nil {
				return eris.Wrap(err, "analyze")
			}
			printAnalysis(*da, c.Name)
			return nil
		}

		results, err := analyzer.Run(ctx, tr.RunID(), cfg.Pipeline.Workers)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}
		for _, da := range results {
			c, err := st.GetCluster(ctx, da.ClusterID)
			name := da.ClusterID
			if err == nil && c != nil {
				name = c.Name
			}
			printAnalysis(da, name)
		}
		_, spend := tr.Spend()
		fmt.Fprintf(os.Stdout, "%d clusters analyzed, $%.4f spent\n", len(results), spend)
		return nil
	},
}

func printAnalysis(da model.DeepAnalysis, name string) {
	fmt.Fprintf(os.Stdout, "%s [%s, %d/10]\n  %s\n", name, da.Verdict, da.AttractivenessScore, da.MainArgument)
}

func init() {
	analyzeCmd.Flags().Int("top", 0, "number of top clusters to analyze (default from config)")
	analyzeCmd.Flags().Bool("force", false, "re-analyze clusters that already have a verdict")
	analyzeCmd.Flags().String("cluster", "", "analyze a single cluster by id")
	analyzeCmd.Flags().String("run", "", "attach costs to an existing run instead of starting a new one")
	rootCmd.AddCommand(analyzeCmd)
}
