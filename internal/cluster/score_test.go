package cluster

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/painminer/internal/model"
)

func scorePain(severity int, wtp model.WTP, freq model.Frequency, industry string) model.Pain {
	return model.Pain{
		Severity:         severity,
		WillingnessToPay: wtp,
		Frequency:        freq,
		Industry:         industry,
	}
}

func TestComputeStats_Score(t *testing.T) {
	pains := []model.Pain{
		scorePain(8, model.WTPHigh, model.FrequencyDaily, "construction"),
		scorePain(6, model.WTPHigh, model.FrequencyDaily, "construction"),
	}

	s := computeStats(pains, DefaultWeights())
	assert.InDelta(t, 7, s.AvgSeverity, 1e-9)
	assert.Equal(t, model.WTPHigh, s.AvgWTP)
	// 7 * 3 * log(3) * 3
	assert.InDelta(t, 7*3*math.Log1p(2)*3, s.Score, 1e-9)
}

func TestComputeStats_ZeroWTPZeroesScore(t *testing.T) {
	pains := []model.Pain{
		scorePain(9, model.WTPNone, model.FrequencyDaily, "saas"),
	}
	s := computeStats(pains, DefaultWeights())
	assert.Zero(t, s.Score)
	assert.Equal(t, model.WTPNone, s.AvgWTP)
}

func TestComputeStats_SizeGrowsScoreSublinearly(t *testing.T) {
	small := make([]model.Pain, 3)
	large := make([]model.Pain, 30)
	for i := range small {
		small[i] = scorePain(7, model.WTPMedium, model.FrequencyWeekly, "retail")
	}
	for i := range large {
		large[i] = scorePain(7, model.WTPMedium, model.FrequencyWeekly, "retail")
	}

	a := computeStats(small, DefaultWeights())
	b := computeStats(large, DefaultWeights())
	assert.Greater(t, b.Score, a.Score)
	assert.Less(t, b.Score, a.Score*10) // log1p, not linear
}

func TestComputeStats_TopIndustries(t *testing.T) {
	pains := []model.Pain{
		scorePain(5, model.WTPLow, model.FrequencyRare, "saas"),
		scorePain(5, model.WTPLow, model.FrequencyRare, "saas"),
		scorePain(5, model.WTPLow, model.FrequencyRare, "retail"),
		scorePain(5, model.WTPLow, model.FrequencyRare, "retail"),
		scorePain(5, model.WTPLow, model.FrequencyRare, "construction"),
		scorePain(5, model.WTPLow, model.FrequencyRare, "legal"),
	}
	s := computeStats(pains, DefaultWeights())
	// Count descending, name ascending on ties, capped at three.
	assert.Equal(t, []string{"retail", "saas", "construction"}, s.TopIndustries)
}

func TestComputeStats_Empty(t *testing.T) {
	s := computeStats(nil, DefaultWeights())
	assert.Zero(t, s.Score)
}

func TestWTPLabel(t *testing.T) {
	assert.Equal(t, model.WTPNone, wtpLabel(0.2))
	assert.Equal(t, model.WTPLow, wtpLabel(1.0))
	assert.Equal(t, model.WTPMedium, wtpLabel(2.0))
	assert.Equal(t, model.WTPHigh, wtpLabel(2.8))
}

func TestDefaultWeights_OrderedByIntensity(t *testing.T) {
	w := DefaultWeights()
	assert.Less(t, w.WTP[model.WTPNone], w.WTP[model.WTPLow])
	assert.Less(t, w.WTP[model.WTPLow], w.WTP[model.WTPMedium])
	assert.Less(t, w.WTP[model.WTPMedium], w.WTP[model.WTPHigh])
	assert.Less(t, w.Frequency[model.FrequencyRare], w.Frequency[model.FrequencyDaily])
}

func TestLoadWeights_EmptyPathReturnsDefaults(t *testing.T) {
	w, err := LoadWeights("")
	require.NoError(t, err)
	assert.Equal(t, DefaultWeights(), w)
}

func TestLoadWeights_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	content := "wtp:\n  high: 5\nfrequency:\n  daily: 4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	w, err := LoadWeights(path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, w.WTP[model.WTPHigh])
	assert.Equal(t, 4.0, w.Frequency[model.FrequencyDaily])
	// Unset entries keep their defaults.
	assert.Equal(t, 2.0, w.WTP[model.WTPMedium])
	assert.Equal(t, 2.0, w.Frequency[model.FrequencyWeekly])
}

func TestLoadWeights_MissingFileFails(t *testing.T) {
	_, err := LoadWeights(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestTopByCount_CapsAndTieBreaks(t *testing.T) {
	counts := map[string]int{"d": 1, "c": 2, "b": 2, "a": 1}
	assert.Equal(t, []string{"b", "c", "a"}, topByCount(counts, 3))
	assert.Equal(t, []string{"b", "c", "a", "d"}, topByCount(counts, 10))
}
