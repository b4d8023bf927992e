package analyze

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/painminer/internal/cost"
	"github.com/sells-group/painminer/internal/model"
	"github.com/sells-group/painminer/internal/store"
	"github.com/sells-group/painminer/internal/tracker"
	"github.com/sells-group/painminer/pkg/anthropic"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const analysisJSON = `{
	"competitors": [{"name": "Acme", "price_range": "$50/mo", "weakness": "clunky UI"}],
	"why_still_painful": "incumbents target enterprise",
	"target_role": "office manager",
	"target_company_size": "10-50",
	"target_industries": ["construction"],
	"market_size": "medium",
	"root_cause": "fragmented tooling",
	"mvp_description": "a scheduling board",
	"core_features": ["board", "notifications"],
	"out_of_scope": ["payroll"],
	"where_to_find_customers": ["trade forums"],
	"best_channel": "communities",
	"price_range": "$30-80/mo",
	"risks": ["incumbent response"],
	"verdict": "go",
	"attractiveness_score": 8,
	"main_argument": "high wtp, weak competition"
}`

type analysisLLM struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (f *analysisLLM) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return &anthropic.MessageResponse{
		Model: "claude-sonnet",
		Text:  f.responses[i],
		Usage: anthropic.TokenUsage{InputTokens: 2000, OutputTokens: 800},
	}, nil
}

func newAnalyzeHarness(t *testing.T, llm anthropic.Client, cfg Config) (*Analyzer, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	tr, err := tracker.Begin(context.Background(), st, cost.NewCalculator(cost.DefaultRates()))
	require.NoError(t, err)

	cfg.Model = "claude-sonnet"
	a := New(llm, st, tr, cfg)
	a.retry.InitialBackoff = time.Millisecond
	a.retry.MaxBackoff = time.Millisecond
	return a, st
}

// seedCluster creates a cluster with n member pains.
func seedCluster(t *testing.T, st store.Store, id string, score float64, n int) model.Cluster {
	t.Helper()
	ctx := context.Background()

	members, _ := st.ClusterMembers(ctx)
	clusters, err := st.ListClusters(ctx, store.ClusterFilter{})
	require.NoError(t, err)

	var painIDs []string
	for i := 0; i < n; i++ {
		painID := fmt.Sprintf("%s-p%d", id, i)
		require.NoError(t, st.InsertPain(ctx, model.Pain{
			ID:                 painID,
			RawItemRef:         "reddit/" + painID,
			Source:             model.SourceReddit,
			Industry:           "construction",
			Role:               "pm",
			Title:              "pain " + painID,
			Description:        "desc",
			Severity:           7,
			Frequency:          model.FrequencyWeekly,
			ImpactType:         model.ImpactTime,
			WillingnessToPay:   model.WTPHigh,
			SolutionComplexity: model.ComplexityMedium,
			KeyQuotes:          []string{"q"},
			Tags:               []string{"t"},
			CreatedAt:          time.Now().UTC(),
		}))
		painIDs = append(painIDs, painID)
	}

	c := model.Cluster{
		ID:               id,
		RunID:            "run-0",
		Name:             "Cluster " + id,
		Signature:        model.ClusterSignature(painIDs),
		Size:             n,
		AvgSeverity:      7,
		AvgWTP:           model.WTPHigh,
		TopIndustries:    []string{"construction"},
		OpportunityScore: score,
		CreatedAt:        time.Now().UTC(),
	}

	var allMembers []model.Membership
	for cid, pids := range members {
		for _, pid := range pids {
			allMembers = append(allMembers, model.Membership{PainID: pid, ClusterID: cid, RunID: "run-0"})
		}
	}
	for _, pid := range painIDs {
		allMembers = append(allMembers, model.Membership{PainID: pid, ClusterID: id, RunID: "run-0"})
	}
	require.NoError(t, st.SwapClusters(ctx, "run-0", append(clusters, c), allMembers))
	return c
}

func TestSelectTop_OrdersAndLimits(t *testing.T) {
	a, st := newAnalyzeHarness(t, &analysisLLM{responses: []string{analysisJSON}}, Config{TopK: 2, MinClusterSize: 3})
	seedCluster(t, st, "low", 5, 3)
	seedCluster(t, st, "high", 50, 3)
	seedCluster(t, st, "mid", 20, 3)
	seedCluster(t, st, "small", 99, 2) // below min size

	top, err := a.SelectTop(context.Background())
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "high", top[0].ID)
	assert.Equal(t, "mid", top[1].ID)
}

func TestSelectTop_SkipsAnalyzedUnlessForced(t *testing.T) {
	a, st := newAnalyzeHarness(t, &analysisLLM{responses: []string{analysisJSON}}, Config{TopK: 10, MinClusterSize: 3})
	ctx := context.Background()
	c := seedCluster(t, st, "c1", 10, 3)
	seedCluster(t, st, "c2", 5, 3)

	_, err := a.AnalyzeCluster(ctx, c, "run-1")
	require.NoError(t, err)

	top, err := a.SelectTop(ctx)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "c2", top[0].ID)

	a.cfg.Force = true
	top, err = a.SelectTop(ctx)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestAnalyzeCluster_PersistsAppendOnly(t *testing.T) {
	a, st := newAnalyzeHarness(t, &analysisLLM{responses: []string{analysisJSON}}, Config{})
	ctx := context.Background()
	c := seedCluster(t, st, "c1", 10, 3)

	first, err := a.AnalyzeCluster(ctx, c, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictGo, first.Verdict)
	assert.Equal(t, 8, first.AttractivenessScore)
	assert.Equal(t, "claude-sonnet", first.ModelUsed)

	second, err := a.AnalyzeCluster(ctx, c, "run-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	all, err := st.ListDeepAnalyses(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAnalyzeCluster_SchemaRetry(t *testing.T) {
	llm := &analysisLLM{responses: []string{"garbage", analysisJSON}}
	a, st := newAnalyzeHarness(t, llm, Config{MaxAttempts: 3})
	c := seedCluster(t, st, "c1", 10, 3)

	da, err := a.AnalyzeCluster(context.Background(), c, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictGo, da.Verdict)
	assert.Equal(t, 2, llm.calls)
}

func TestAnalyzeCluster_ExhaustedRetriesFails(t *testing.T) {
	llm := &analysisLLM{responses: []string{`{"verdict": "perhaps"}`}}
	a, st := newAnalyzeHarness(t, llm, Config{MaxAttempts: 2})
	c := seedCluster(t, st, "c1", 10, 3)

	_, err := a.AnalyzeCluster(context.Background(), c, "run-1")
	require.Error(t, err)
	assert.Equal(t, 2, llm.calls)

	all, err := st.ListDeepAnalyses(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAnalyzeCluster_EmptyClusterFails(t *testing.T) {
	a, _ := newAnalyzeHarness(t, &analysisLLM{responses: []string{analysisJSON}}, Config{})
	_, err := a.AnalyzeCluster(context.Background(), model.Cluster{ID: "ghost"}, "run-1")
	assert.ErrorContains(t, err, "no pains")
}

func TestRun_AnalyzesAllDueClusters(t *testing.T) {
	a, st := newAnalyzeHarness(t, &analysisLLM{responses: []string{analysisJSON}}, Config{TopK: 10, MinClusterSize: 3})
	seedCluster(t, st, "c1", 10, 3)
	seedCluster(t, st, "c2", 20, 3)

	results, err := a.Run(context.Background(), "run-1", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRun_ClosesItsOwnRun(t *testing.T) {
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() { st.Close() })

	tr, err := tracker.Begin(ctx, st, cost.NewCalculator(cost.DefaultRates()))
	require.NoError(t, err)

	a := New(&analysisLLM{responses: []string{analysisJSON}}, st, tr, Config{
		Model: "claude-sonnet", TopK: 10, MinClusterSize: 3,
	})
	seedCluster(t, st, "c1", 10, 3)

	_, err = a.Run(ctx, tr.RunID(), 2)
	require.NoError(t, err)

	run, err := st.GetRun(ctx, tr.RunID())
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.Status)

	// A pass with nothing due still walks its run to a terminal state.
	tr2, err := tracker.Begin(ctx, st, cost.NewCalculator(cost.DefaultRates()))
	require.NoError(t, err)
	a2 := New(&analysisLLM{responses: []string{analysisJSON}}, st, tr2, Config{
		Model: "claude-sonnet", TopK: 10, MinClusterSize: 3,
	})
	_, err = a2.Run(ctx, tr2.RunID(), 2)
	require.NoError(t, err)

	run2, err := st.GetRun(ctx, tr2.RunID())
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run2.Status)
}

func TestRun_NothingDue(t *testing.T) {
	a, _ := newAnalyzeHarness(t, &analysisLLM{responses: []string{analysisJSON}}, Config{})
	results, err := a.Run(context.Background(), "run-1", 2)
	require.NoError(t, err)
	assert.Empty(t, results)
}
