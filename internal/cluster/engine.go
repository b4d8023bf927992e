// Package cluster recomputes opportunity groups over the full pain set.
// Each pass runs density-based clustering from scratch, matches the result
// against the previous pass by member-set similarity to keep stable ids, and
// swaps the new state in atomically.
package cluster

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/painminer/internal/embed"
	"github.com/sells-group/painminer/internal/model"
	"github.com/sells-group/painminer/internal/resilience"
	"github.com/sells-group/painminer/internal/store"
	"github.com/sells-group/painminer/internal/tracker"
	"github.com/sells-group/painminer/pkg/anthropic"
)

// Config holds engine tuning parameters.
type Config struct {
	Eps              float64
	MinClusterSize   int
	JaccardThreshold float64
	NamingModel      string
	Weights          Weights
}

// Engine runs one clustering pass end to end.
type Engine struct {
	store   store.Store
	index   *embed.Index
	llm     anthropic.Client
	tracker *tracker.Tracker
	cfg     Config
}

func NewEngine(st store.Store, index *embed.Index, llm anthropic.Client, tr *tracker.Tracker, cfg Config) *Engine {
	if cfg.Eps <= 0 {
		cfg.Eps = 0.30
	}
	if cfg.MinClusterSize <= 0 {
		cfg.MinClusterSize = 3
	}
	if cfg.JaccardThreshold <= 0 {
		cfg.JaccardThreshold = 0.5
	}
	if cfg.Weights.WTP == nil {
		cfg.Weights = DefaultWeights()
	}
	return &Engine{store: st, index: index, llm: llm, tracker: tr, cfg: cfg}
}

// Recompute rebuilds the full cluster set and swaps it into the store.
// Returns the new clusters sorted by opportunity score descending. A run the
// tracker began for this pass is driven to a terminal status; a resumed
// collection run only accumulates ledger rows.
func (e *Engine) Recompute(ctx context.Context, runID string) ([]model.Cluster, error) {
	if err := e.tracker.StartPhase(ctx); err != nil {
		return nil, eris.Wrap(err, "cluster: start run")
	}
	clusters, err := e.recompute(ctx, runID)
	if finErr := e.tracker.FinishPhase(ctx, err); finErr != nil && err == nil {
		return nil, eris.Wrap(finErr, "cluster: finish run")
	}
	return clusters, err
}

func (e *Engine) recompute(ctx context.Context, runID string) ([]model.Cluster, error) {
	pains, err := e.store.ListPains(ctx, store.PainFilter{Limit: 100000})
	if err != nil {
		return nil, eris.Wrap(err, "cluster: list pains")
	}
	if len(pains) == 0 {
		zap.L().Info("no pains to cluster")
		return nil, e.store.SwapClusters(ctx, runID, nil, nil)
	}

	vectors, err := e.index.Ensure(ctx, pains)
	if err != nil {
		return nil, eris.Wrap(err, "cluster: ensure embeddings")
	}

	painByID := make(map[string]model.Pain, len(pains))
	ids := make([]string, 0, len(pains))
	for _, p := range pains {
		painByID[p.ID] = p
		ids = append(ids, p.ID)
	}

	groups := DBSCAN(ids, vectors, e.cfg.Eps, e.cfg.MinClusterSize)
	zap.L().Info("clustering pass",
		zap.Int("pains", len(pains)),
		zap.Int("embedded", len(vectors)),
		zap.Int("clusters", len(groups)))

	prior, err := e.store.ClusterMembers(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "cluster: prior members")
	}

	now := time.Now().UTC()
	clusters := make([]model.Cluster, 0, len(groups))
	var members []model.Membership
	claimed := make(map[string]bool, len(prior))

	for _, group := range groups {
		groupPains := make([]model.Pain, 0, len(group))
		for _, id := range group {
			groupPains = append(groupPains, painByID[id])
		}

		id := e.matchPrior(group, prior, claimed)
		if id == "" {
			id = uuid.New().String()
		}

		st := computeStats(groupPains, e.cfg.Weights)
		name := e.nameCluster(ctx, groupPains)

		clusters = append(clusters, model.Cluster{
			ID:               id,
			RunID:            runID,
			Name:             name,
			Signature:        model.ClusterSignature(group),
			Size:             len(group),
			AvgSeverity:      st.AvgSeverity,
			AvgWTP:           st.AvgWTP,
			TopIndustries:    st.TopIndustries,
			OpportunityScore: st.Score,
			CreatedAt:        now,
		})
		for _, painID := range group {
			members = append(members, model.Membership{
				PainID:    painID,
				ClusterID: id,
				RunID:     runID,
			})
		}
	}

	if err := e.store.SwapClusters(ctx, runID, clusters, members); err != nil {
		return nil, eris.Wrap(err, "cluster: swap")
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].OpportunityScore != clusters[j].OpportunityScore {
			return clusters[i].OpportunityScore > clusters[j].OpportunityScore
		}
		return clusters[i].ID < clusters[j].ID
	})
	return clusters, nil
}

// matchPrior finds the best previous cluster by Jaccard similarity of member
// sets, reusing its id when similarity clears the threshold. Each prior id is
// claimed at most once; prior ids are scanned in sorted order so ties resolve
// the same way every pass.
func (e *Engine) matchPrior(group []string, prior map[string][]string, claimed map[string]bool) string {
	priorIDs := make([]string, 0, len(prior))
	for id := range prior {
		priorIDs = append(priorIDs, id)
	}
	sort.Strings(priorIDs)

	bestID := ""
	bestSim := 0.0
	for _, id := range priorIDs {
		if claimed[id] {
			continue
		}
		sim := model.Jaccard(group, prior[id])
		if sim > bestSim {
			bestSim = sim
			bestID = id
		}
	}
	if bestID != "" && bestSim >= e.cfg.JaccardThreshold {
		claimed[bestID] = true
		return bestID
	}
	return ""
}

const namingTemplate = `Here are several business problem descriptions from one cluster:

%s

Give a short name (3-6 words) for this cluster of problems.
Just the name, no explanation.

Examples of good names:
- "Invoice management difficulties"
- "Manual CRM data entry"
- "Meeting scheduling problems"
- "Tool integration issues"
- "Customer support bottlenecks"`

// nameCluster asks the naming model for a human-readable theme. Naming is
// cosmetic: on failure the cluster falls back to its most common tags rather
// than failing the pass.
func (e *Engine) nameCluster(ctx context.Context, pains []model.Pain) string {
	fallback := fallbackName(pains)
	if e.llm == nil || e.cfg.NamingModel == "" {
		return fallback
	}

	samples := make([]string, 0, 5)
	for _, p := range pains {
		samples = append(samples, p.Title+": "+p.Description)
		if len(samples) == 5 {
			break
		}
	}
	prompt := fmt.Sprintf(namingTemplate, strings.Join(samples, "\n---\n"))

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.OnRetry = resilience.RetryLogger("anthropic", "cluster_name")

	name, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		resp, err := e.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.cfg.NamingModel,
			MaxTokens: 50,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return "", eris.Wrap(err, "cluster: naming call")
		}
		if trackErr := e.tracker.RecordClaude(ctx, "cluster_name", resp.Model,
			resp.Usage.InputTokens, resp.Usage.OutputTokens, true); trackErr != nil {
			return "", trackErr
		}
		return strings.Trim(strings.TrimSpace(resp.Text), `"`), nil
	})
	if err != nil || name == "" {
		zap.L().Warn("cluster naming failed, using tag fallback", zap.Error(err))
		return fallback
	}
	return name
}

// fallbackName joins the three most common member tags.
func fallbackName(pains []model.Pain) string {
	counts := make(map[string]int)
	for _, p := range pains {
		for _, tag := range p.Tags {
			counts[tag]++
		}
	}
	top := topByCount(counts, 3)
	if len(top) == 0 {
		return "Unnamed cluster"
	}
	return strings.Join(top, " / ")
}
