package store

import (
	"context"
	"time"

	"github.com/sells-group/painminer/internal/model"
)

// PainFilter specifies criteria for listing pains.
type PainFilter struct {
	Industry    string       `json:"industry,omitempty"`
	Source      model.Source `json:"source,omitempty"`
	MinSeverity int          `json:"min_severity,omitempty"`
	MaxSeverity int          `json:"max_severity,omitempty"`
	Limit       int          `json:"limit,omitempty"`
}

// ClusterFilter specifies criteria for listing clusters.
type ClusterFilter struct {
	MinSize int `json:"min_size,omitempty"`
	Limit   int `json:"limit,omitempty"`
}

// Store defines the persistence interface for the pain mining pipeline.
// Cross-worker coordination happens through these transactional operations,
// not in-memory locks.
type Store interface {
	// Raw items. UpsertRawItem inserts the item as pending if its
	// (source, external_id) identity is new and returns the item's current
	// status either way.
	UpsertRawItem(ctx context.Context, item model.RawItem) (model.ItemStatus, error)
	MarkRawItem(ctx context.Context, source model.Source, externalID string, status model.ItemStatus, reason string) error

	// Pains are immutable once inserted.
	InsertPain(ctx context.Context, pain model.Pain) error
	ListPains(ctx context.Context, filter PainFilter) ([]model.Pain, error)
	PainsByCluster(ctx context.Context, clusterID string, limit int) ([]model.Pain, error)

	// Embedding cache, keyed by pain id with a content hash guard.
	Embedding(ctx context.Context, painID string) (*model.Embedding, error)
	SetEmbedding(ctx context.Context, emb model.Embedding) error
	ListEmbeddings(ctx context.Context) ([]model.Embedding, error)

	// Clusters. SwapClusters atomically replaces the live cluster set via
	// the staging tables; readers never observe a half-rebuilt clustering.
	SwapClusters(ctx context.Context, runID string, clusters []model.Cluster, members []model.Membership) error
	ListClusters(ctx context.Context, filter ClusterFilter) ([]model.Cluster, error)
	GetCluster(ctx context.Context, id string) (*model.Cluster, error)
	ClusterMembers(ctx context.Context) (map[string][]string, error)

	// Deep analyses are append-only.
	InsertDeepAnalysis(ctx context.Context, da model.DeepAnalysis) error
	ListDeepAnalyses(ctx context.Context, clusterID string) ([]model.DeepAnalysis, error)
	AnalyzedClusterIDs(ctx context.Context) (map[string]bool, error)

	// Collection runs.
	CreateRun(ctx context.Context) (*model.CollectionRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, seen, classified, failures int) error
	GetRun(ctx context.Context, runID string) (*model.CollectionRun, error)
	ListRuns(ctx context.Context, limit int) ([]model.CollectionRun, error)

	// Cost ledger.
	InsertCost(ctx context.Context, cost model.LLMCost) error
	RunCost(ctx context.Context, runID string) (float64, error)
	RecomputeDailyStats(ctx context.Context, from, to time.Time) error
	DailyStats(ctx context.Context, from, to time.Time) ([]model.DailyStat, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
