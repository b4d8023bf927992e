// Package tracker records per-call LLM spend and drives the collection run
// state machine. Every external call gets a ledger row whether it succeeded
// or not, so run totals reconcile against the provider invoice.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/painminer/internal/cost"
	"github.com/sells-group/painminer/internal/model"
	"github.com/sells-group/painminer/internal/store"
)

// legal run status transitions
var transitions = map[model.RunStatus][]model.RunStatus{
	model.RunPending: {model.RunRunning},
	model.RunRunning: {model.RunCompleted, model.RunFailed, model.RunPartial},
}

// Tracker ties one collection run to the cost ledger.
type Tracker struct {
	store store.Store
	calc  *cost.Calculator
	run   *model.CollectionRun
	owned bool

	mu    sync.Mutex
	calls int
	spend float64
}

// Begin creates a new run row and returns a tracker bound to it. The tracker
// owns the run: phase helpers will drive its status to a terminal state.
func Begin(ctx context.Context, st store.Store, calc *cost.Calculator) (*Tracker, error) {
	run, err := st.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: create run")
	}
	return &Tracker{store: st, calc: calc, run: run, owned: true}, nil
}

// Resume binds a tracker to an existing run, used by stages that run after
// collection (clustering, analysis) under the same run id. The run's status
// is left alone; only ledger rows attach to it.
func Resume(ctx context.Context, st store.Store, calc *cost.Calculator, runID string) (*Tracker, error) {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: get run")
	}
	if run == nil {
		return nil, eris.Errorf("tracker: run not found: %s", runID)
	}
	return &Tracker{store: st, calc: calc, run: run}, nil
}

// RunID returns the bound run id.
func (t *Tracker) RunID() string {
	return t.run.ID
}

func (t *Tracker) transition(ctx context.Context, to model.RunStatus) error {
	allowed := false
	for _, s := range transitions[t.run.Status] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return eris.Errorf("tracker: illegal transition %s -> %s", t.run.Status, to)
	}
	if err := t.store.UpdateRunStatus(ctx, t.run.ID, to); err != nil {
		return eris.Wrap(err, "tracker: update run status")
	}
	t.run.Status = to
	return nil
}

// Start moves the run from pending to running.
func (t *Tracker) Start(ctx context.Context) error {
	return t.transition(ctx, model.RunRunning)
}

// Finish closes the run with final counters. Status must be a terminal state.
func (t *Tracker) Finish(ctx context.Context, status model.RunStatus, seen, classified, failures int) error {
	allowed := false
	for _, s := range transitions[t.run.Status] {
		if s == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return eris.Errorf("tracker: illegal transition %s -> %s", t.run.Status, status)
	}
	if err := t.store.FinishRun(ctx, t.run.ID, status, seen, classified, failures); err != nil {
		return eris.Wrap(err, "tracker: finish run")
	}
	t.run.Status = status
	t.run.ItemsSeen = seen
	t.run.ItemsClassified = classified
	t.run.Failures = failures
	return nil
}

// StartPhase moves an owned pending run to running. A tracker resumed onto an
// earlier run is a no-op: that run already went through its own lifecycle.
func (t *Tracker) StartPhase(ctx context.Context) error {
	if !t.owned {
		return nil
	}
	return t.Start(ctx)
}

// FinishPhase closes an owned run: failed when runErr is set, partial when the
// context was canceled, completed otherwise. Counters already recorded on the
// run are preserved. No-op for resumed runs.
func (t *Tracker) FinishPhase(ctx context.Context, runErr error) error {
	if !t.owned {
		return nil
	}
	status := model.RunCompleted
	switch {
	case runErr != nil:
		status = model.RunFailed
	case ctx.Err() != nil:
		status = model.RunPartial
	}
	return t.Finish(context.WithoutCancel(ctx), status,
		t.run.ItemsSeen, t.run.ItemsClassified, t.run.Failures)
}

func (t *Tracker) record(ctx context.Context, entry model.LLMCost) error {
	if err := t.store.InsertCost(ctx, entry); err != nil {
		return eris.Wrap(err, "tracker: insert cost")
	}
	t.mu.Lock()
	t.calls++
	t.spend += entry.CostUSD
	t.mu.Unlock()
	return nil
}

// RecordClaude appends a ledger entry for one Anthropic call. Failed attempts
// still spend tokens, so callers record every attempt.
func (t *Tracker) RecordClaude(ctx context.Context, operation, modelName string, inputTokens, outputTokens int64, succeeded bool) error {
	return t.record(ctx, model.LLMCost{
		ID:           uuid.New().String(),
		RunID:        t.run.ID,
		Operation:    operation,
		Model:        modelName,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      t.calc.Claude(modelName, inputTokens, outputTokens),
		Succeeded:    succeeded,
		Timestamp:    time.Now().UTC(),
	})
}

// RecordEmbedding appends a ledger entry for one embeddings call.
func (t *Tracker) RecordEmbedding(ctx context.Context, modelName string, tokens int64, succeeded bool) error {
	return t.record(ctx, model.LLMCost{
		ID:           uuid.New().String(),
		RunID:        t.run.ID,
		Operation:    "embed",
		Model:        modelName,
		InputTokens:  tokens,
		CostUSD:      t.calc.Embedding(tokens),
		Succeeded:    succeeded,
		Timestamp:    time.Now().UTC(),
	})
}

// Spend returns the in-memory call count and dollar total recorded through
// this tracker instance.
func (t *Tracker) Spend() (calls int, usd float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls, t.spend
}

// Summary assembles the user-visible run outcome from the store.
func (t *Tracker) Summary(ctx context.Context) (*model.RunSummary, error) {
	run, err := t.store.GetRun(ctx, t.run.ID)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: get run")
	}
	if run == nil {
		return nil, eris.Errorf("tracker: run not found: %s", t.run.ID)
	}
	total, err := t.store.RunCost(ctx, t.run.ID)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: run cost")
	}
	clusters, err := t.store.ListClusters(ctx, store.ClusterFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "tracker: list clusters")
	}
	analyzed, err := t.store.AnalyzedClusterIDs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: analyzed clusters")
	}

	zap.L().Info("run summary",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Float64("cost_usd", total))

	return &model.RunSummary{
		RunID:            run.ID,
		Status:           run.Status,
		ItemsSeen:        run.ItemsSeen,
		ItemsClassified:  run.ItemsClassified,
		ItemsFailed:      run.Failures,
		ClustersFormed:   len(clusters),
		ClustersAnalyzed: len(analyzed),
		TotalCostUSD:     total,
	}, nil
}
