package model

import "time"

// RawItem is one piece of text harvested by a collector. Identity is
// (Source, ExternalID); re-ingesting the same identity never duplicates
// downstream work.
type RawItem struct {
	Source     Source            `json:"source"`
	ExternalID string            `json:"external_id"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	FetchedAt  time.Time         `json:"fetched_at"`
}

// Identity returns the stable dedup key for the item.
func (r RawItem) Identity() string {
	return string(r.Source) + "/" + r.ExternalID
}
