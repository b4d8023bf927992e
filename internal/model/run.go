package model

import "time"

// CollectionRun tracks one execution of the ingestion/classification pipeline.
// State machine: pending → running → {completed, failed, partial}.
type CollectionRun struct {
	ID              string     `json:"id"`
	Status          RunStatus  `json:"status"`
	ItemsSeen       int        `json:"items_seen"`
	ItemsClassified int        `json:"items_classified"`
	Failures        int        `json:"failures"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// LLMCost is one append-only ledger entry per external call, success or
// failure.
type LLMCost struct {
	ID           string    `json:"id"`
	RunID        string    `json:"run_id"`
	Operation    string    `json:"operation"`
	Model        string    `json:"model"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Succeeded    bool      `json:"succeeded"`
	Timestamp    time.Time `json:"ts"`
}

// DailyStat is a derived rollup over LLMCost and Pain rows for one day.
// Never a source of truth; always recomputable.
type DailyStat struct {
	Day        time.Time `json:"day"`
	Calls      int       `json:"calls"`
	Tokens     int64     `json:"tokens"`
	CostUSD    float64   `json:"cost_usd"`
	PainsFound int       `json:"pains_found"`
}

// RunSummary is the user-visible outcome of a full pipeline run.
type RunSummary struct {
	RunID            string    `json:"run_id"`
	Status           RunStatus `json:"status"`
	ItemsSeen        int       `json:"items_seen"`
	ItemsClassified  int       `json:"items_classified"`
	ItemsFailed      int       `json:"items_failed"`
	ClustersFormed   int       `json:"clusters_formed"`
	ClustersAnalyzed int       `json:"clusters_analyzed"`
	TotalCostUSD     float64   `json:"total_cost_usd"`
}
