package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculator_Claude(t *testing.T) {
	calc := NewCalculator(Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {Input: 0.80, Output: 4.00},
		},
	})

	// 1M input + 1M output tokens at list price.
	assert.InDelta(t, 4.80, calc.Claude("claude-haiku-4-5-20251001", 1_000_000, 1_000_000), 1e-9)

	// Partial usage scales linearly.
	assert.InDelta(t, 0.0048, calc.Claude("claude-haiku-4-5-20251001", 1000, 1000), 1e-9)
}

func TestCalculator_ClaudeUnknownModelIsFree(t *testing.T) {
	calc := NewCalculator(DefaultRates())
	assert.Zero(t, calc.Claude("claude-nonexistent", 5000, 5000))
}

func TestCalculator_Embedding(t *testing.T) {
	calc := NewCalculator(Rates{Jina: JinaRate{PerMTok: 0.02}})
	assert.InDelta(t, 0.02, calc.Embedding(1_000_000), 1e-9)
	assert.Zero(t, calc.Embedding(0))
}

func TestDefaultRates_CoverConfiguredModels(t *testing.T) {
	rates := DefaultRates()
	assert.NotEmpty(t, rates.Anthropic)
	assert.Greater(t, rates.Jina.PerMTok, 0.0)
	for model, r := range rates.Anthropic {
		assert.Greater(t, r.Input, 0.0, model)
		assert.Greater(t, r.Output, r.Input, model)
	}
}
