package cluster

import (
	"math"
	"sort"

	"github.com/sells-group/painminer/internal/model"
)

// stats aggregates the member pains of one cluster.
type stats struct {
	AvgSeverity   float64
	AvgWTP        model.WTP
	TopIndustries []string
	Score         float64
}

// computeStats derives aggregate fields and the opportunity score for a
// group of pains. Score = avg_severity * wtp_weight * log(1 + size) *
// frequency_weight; wtp and frequency weights are member means over the
// configured tables.
func computeStats(pains []model.Pain, w Weights) stats {
	if len(pains) == 0 {
		return stats{AvgWTP: model.WTPLow}
	}

	var sevSum, wtpSum, freqSum float64
	industryCount := make(map[string]int)
	for _, p := range pains {
		sevSum += float64(p.Severity)
		wtpSum += w.WTP[p.WillingnessToPay]
		freqSum += w.Frequency[p.Frequency]
		industryCount[p.Industry]++
	}
	n := float64(len(pains))
	avgSeverity := sevSum / n
	wtpWeight := wtpSum / n
	freqWeight := freqSum / n

	return stats{
		AvgSeverity:   avgSeverity,
		AvgWTP:        wtpLabel(wtpWeight),
		TopIndustries: topByCount(industryCount, 3),
		Score:         avgSeverity * wtpWeight * math.Log1p(n) * freqWeight,
	}
}

// wtpLabel maps a mean numeric WTP back to the nearest label on the default
// 0..3 scale.
func wtpLabel(avg float64) model.WTP {
	switch {
	case avg < 0.5:
		return model.WTPNone
	case avg < 1.5:
		return model.WTPLow
	case avg < 2.5:
		return model.WTPMedium
	default:
		return model.WTPHigh
	}
}

// topByCount returns up to n keys by count descending with name as the
// tie-break.
func topByCount(counts map[string]int, n int) []string {
	type entry struct {
		name  string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for name, count := range counts {
		entries = append(entries, entry{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}
