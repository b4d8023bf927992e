package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/painminer/internal/classify"
	"github.com/sells-group/painminer/internal/collector"
	"github.com/sells-group/painminer/internal/ingest"
	"github.com/sells-group/painminer/internal/pipeline"
	"github.com/sells-group/painminer/internal/tracker"
	"github.com/sells-group/painminer/pkg/anthropic"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Ingest and classify raw items from source feeds",
	Long:  "Reads JSONL feed files, normalizes and deduplicates items, classifies each via Claude, and records the run with full cost accounting. Ctrl-C finishes in-flight calls and closes the run as partial.",
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

		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Collect.Dir
		}
		sources, _ := cmd.Flags().GetStringSlice("sources")
		if len(sources) == 0 {
			sources = cfg.Collect.Sources
		}
		limit, _ := cmd.Flags().GetInt("limit")
		if limit == 0 {
			limit = cfg.Collect.Limit
		}

		collectors, err := collector.ForSources(dir, sources)
		if err != nil {
			return err
		}

		tr, err := tracker.Begin(ctx, st, initCalculator())
		if err != nil {
			return err
		}

		llm := anthropic.NewClient(cfg.Anthropic.Key)
		classifier := classify.New(llm, st, tr, classify.Config{
			Model:       cfg.Anthropic.ClassifyModel,
			MaxTokens:   int64(cfg.Anthropic.MaxTokens),
			Temperature: cfg.Classify.Temperature,
			MaxAttempts: cfg.Classify.MaxAttempts,
		})
		ingestor := ingest.New(st, ingest.NewNormalizer(cfg.Collect.MinLen, cfg.Collect.MaxLen))

		p := pipeline.New(collectors, ingestor, classifier, tr, pipeline.Config{
			Workers:      cfg.Pipeline.Workers,
			SourceRate:   cfg.Pipeline.SourceRate,
			SourceBurst:  cfg.Pipeline.SourceBurst,
			CollectLimit: limit,
		})

		summary, err := p.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "collect")
		}

		fmt.Fprintf(os.Stdout, "Run %s finished: %s\n", summary.RunID, summary.Status)
		fmt.Fprintf(os.Stdout, "  items seen:       %d\n", summary.ItemsSeen)
		fmt.Fprintf(os.Stdout, "  pains extracted:  %d\n", summary.ItemsClassified)
		fmt.Fprintf(os.Stdout, "  failures:         %d\n", summary.ItemsFailed)
		fmt.Fprintf(os.Stdout, "  cost:             $%.4f\n", summary.TotalCostUSD)
		return nil
	},
}

func init() {
	collectCmd.Flags().String("dir", "", "feed directory (default from config)")
	collectCmd.Flags().StringSlice("sources", nil, "sources to collect (default: all)")
	collectCmd.Flags().Int("limit", 0, "max items per source (0 = no cap)")
	rootCmd.AddCommand(collectCmd)
}
