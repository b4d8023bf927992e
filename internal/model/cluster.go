package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Embedding is the cached vector representation of one pain.
type Embedding struct {
	PainID      string    `json:"pain_id"`
	ContentHash string    `json:"content_hash"`
	Vector      []float64 `json:"vector"`
	Model       string    `json:"model"`
	CreatedAt   time.Time `json:"created_at"`
}

// Cluster is a group of semantically similar pains representing one
// opportunity. Membership can change across runs; identity persists through
// signature similarity.
type Cluster struct {
	ID               string    `json:"id"`
	RunID            string    `json:"run_id"`
	Name             string    `json:"name"`
	Signature        string    `json:"signature"`
	Size             int       `json:"size"`
	AvgSeverity      float64   `json:"avg_severity"`
	AvgWTP           WTP       `json:"avg_wtp"`
	TopIndustries    []string  `json:"top_industries"`
	OpportunityScore float64   `json:"opportunity_score"`
	CreatedAt        time.Time `json:"created_at"`
}

// Membership links a pain to the cluster it belongs to in a given run.
// Noise points have no membership row.
type Membership struct {
	PainID    string `json:"pain_id"`
	ClusterID string `json:"cluster_id"`
	RunID     string `json:"run_id"`
}

// ClusterSignature computes the stable fingerprint of a member set: a SHA-256
// over the sorted member pain ids. Order of the input does not matter.
func ClusterSignature(painIDs []string) string {
	sorted := make([]string, len(painIDs))
	copy(sorted, painIDs)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}

// Jaccard returns the Jaccard similarity of two id sets.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	inter := 0
	for _, id := range b {
		if set[id] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
