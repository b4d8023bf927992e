// Package analyze runs LLM deep analysis over the highest-scoring clusters
// and records a go/maybe/no_go verdict per cluster. Analyses are append-only
// so re-runs preserve the audit trail.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/painminer/internal/model"
	"github.com/sells-group/painminer/internal/resilience"
	"github.com/sells-group/painminer/internal/store"
	"github.com/sells-group/painminer/internal/tracker"
	"github.com/sells-group/painminer/pkg/anthropic"
)

// Config holds analyzer construction parameters.
type Config struct {
	Model           string
	MaxTokens       int64
	TopK            int
	MinClusterSize  int
	MaxContextPains int
	MaxAttempts     int

	// Force re-analyzes clusters that already have a verdict. The prior
	// rows stay; a new one is appended.
	Force bool
}

// Analyzer issues deep analysis calls for selected clusters.
type Analyzer struct {
	llm     anthropic.Client
	store   store.Store
	tracker *tracker.Tracker
	cfg     Config
	retry   resilience.RetryConfig
}

func New(llm anthropic.Client, st store.Store, tr *tracker.Tracker, cfg Config) *Analyzer {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.MaxContextPains <= 0 {
		cfg.MaxContextPains = 10
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	retry.OnRetry = resilience.RetryLogger("anthropic", "deep_analysis")
	return &Analyzer{llm: llm, store: st, tracker: tr, cfg: cfg, retry: retry}
}

// SelectTop returns the clusters due for analysis: top-K by opportunity
// score, minimum size applied, already-analyzed clusters skipped unless
// Force is set.
func (a *Analyzer) SelectTop(ctx context.Context) ([]model.Cluster, error) {
	clusters, err := a.store.ListClusters(ctx, store.ClusterFilter{
		MinSize: a.cfg.MinClusterSize,
		Limit:   a.cfg.TopK,
	})
	if err != nil {
		return nil, eris.Wrap(err, "analyze: list clusters")
	}
	if a.cfg.Force {
		return clusters, nil
	}

	analyzed, err := a.store.AnalyzedClusterIDs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "analyze: analyzed ids")
	}
	fresh := clusters[:0]
	for _, c := range clusters {
		if !analyzed[c.ID] {
			fresh = append(fresh, c)
		}
	}
	return fresh, nil
}

// AnalyzeCluster runs one deep analysis call and appends the result.
func (a *Analyzer) AnalyzeCluster(ctx context.Context, cluster model.Cluster, runID string) (*model.DeepAnalysis, error) {
	pains, err := a.store.PainsByCluster(ctx, cluster.ID, a.cfg.MaxContextPains)
	if err != nil {
		return nil, eris.Wrap(err, "analyze: cluster pains")
	}
	if len(pains) == 0 {
		return nil, eris.Errorf("analyze: cluster %s has no pains", cluster.ID)
	}

	prompt := buildPrompt(cluster, pains)

	payload, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*model.AnalysisPayload, error) {
		resp, err := a.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     a.cfg.Model,
			MaxTokens: a.cfg.MaxTokens,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return nil, eris.Wrap(err, "analyze: create message")
		}

		var payload model.AnalysisPayload
		parseErr := json.Unmarshal([]byte(cleanJSON(resp.Text)), &payload)
		if parseErr == nil {
			parseErr = payload.Validate()
		}

		if trackErr := a.tracker.RecordClaude(ctx, "deep_analysis", resp.Model,
			resp.Usage.InputTokens, resp.Usage.OutputTokens, parseErr == nil); trackErr != nil {
			return nil, trackErr
		}
		if parseErr != nil {
			return nil, resilience.NewSchemaError(parseErr)
		}
		return &payload, nil
	})
	if err != nil {
		return nil, err
	}

	da := payload.ToDeepAnalysis(uuid.New().String(), cluster.ID, runID, a.cfg.Model, time.Now())
	if err := a.store.InsertDeepAnalysis(ctx, da); err != nil {
		return nil, eris.Wrap(err, "analyze: insert")
	}

	zap.L().Info("cluster analyzed",
		zap.String("cluster_id", cluster.ID),
		zap.String("verdict", string(da.Verdict)),
		zap.Int("attractiveness", da.AttractivenessScore))

	return &da, nil
}

// Run analyzes every due cluster, at most workers calls in flight. A failed
// cluster is logged and skipped; it never aborts the others. A run the
// tracker began for this pass is driven to a terminal status; a resumed
// collection run only accumulates ledger rows.
func (a *Analyzer) Run(ctx context.Context, runID string, workers int) ([]model.DeepAnalysis, error) {
	if err := a.tracker.StartPhase(ctx); err != nil {
		return nil, eris.Wrap(err, "analyze: start run")
	}
	analyses, err := a.run(ctx, runID, workers)
	if finErr := a.tracker.FinishPhase(ctx, err); finErr != nil && err == nil {
		return nil, eris.Wrap(finErr, "analyze: finish run")
	}
	return analyses, err
}

func (a *Analyzer) run(ctx context.Context, runID string, workers int) ([]model.DeepAnalysis, error) {
	clusters, err := a.SelectTop(ctx)
	if err != nil {
		return nil, err
	}
	if len(clusters) == 0 {
		zap.L().Info("no clusters due for analysis")
		return nil, nil
	}
	if workers <= 0 {
		workers = 3
	}

	results := make([]*model.DeepAnalysis, len(clusters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, c := range clusters {
		i, c := i, c
		g.Go(func() error {
			da, err := a.AnalyzeCluster(gctx, c, runID)
			if err != nil {
				zap.L().Error("deep analysis failed",
					zap.String("cluster_id", c.ID),
					zap.Error(err))
				return nil // don't abort other clusters
			}
			results[i] = da
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "analyze: run")
	}

	out := make([]model.DeepAnalysis, 0, len(results))
	for _, da := range results {
		if da != nil {
			out = append(out, *da)
		}
	}
	return out, nil
}

const analysisTemplate = `You are an expert in product analytics and business idea validation.

Here is a cluster of business pains from various sources:

**Cluster Name:** %s
**Number of mentions:** %d
**Average severity (1-10):** %.1f
**Sources:** %s

**Sample pains from this cluster:**
%s

---

Analyze this cluster and respond in JSON format:

{
    "competitors": [
        {"name": "Tool Name", "price_range": "$X-Y/mo", "weakness": "Why it doesn't fully solve the problem"}
    ],
    "why_still_painful": "Why people still complain despite existing solutions",
    "target_role": "Specific role (e.g., 'Marketing Manager at SMB')",
    "target_company_size": "Company size (e.g., '10-50 employees')",
    "target_industries": ["industry1", "industry2"],
    "market_size": "small|medium|large",
    "root_cause": "Why this problem exists",
    "mvp_description": "One paragraph describing minimum viable product",
    "core_features": ["feature1", "feature2", "feature3"],
    "out_of_scope": ["what NOT to build in v1"],
    "where_to_find_customers": ["channel1", "channel2"],
    "best_channel": "The single best channel to find first customers",
    "price_range": "Acceptable price range (e.g., '$29-99/mo')",
    "risks": ["risk1", "risk2", "risk3"],
    "verdict": "go|maybe|no_go",
    "attractiveness_score": 1-10,
    "main_argument": "The main reason for this verdict"
}

Be specific and actionable. Don't use generic advice.
Return ONLY valid JSON, no markdown code blocks.`

// buildPrompt assembles the bounded cluster context for the analysis call.
func buildPrompt(cluster model.Cluster, pains []model.Pain) string {
	var samples strings.Builder
	for i, p := range pains {
		desc := p.Description
		if len(desc) > 300 {
			desc = desc[:300]
		}
		fmt.Fprintf(&samples, "%d. [%s] %s\n   %s\n\n", i+1, p.Source, p.Title, desc)
	}

	counts := make(map[model.Source]int)
	for _, p := range pains {
		counts[p.Source]++
	}
	sources := make([]string, 0, len(counts))
	for s, n := range counts {
		sources = append(sources, fmt.Sprintf("%s: %d", s, n))
	}
	sort.Strings(sources)

	return fmt.Sprintf(analysisTemplate,
		cluster.Name, cluster.Size, cluster.AvgSeverity,
		strings.Join(sources, ", "), strings.TrimRight(samples.String(), "\n"))
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
