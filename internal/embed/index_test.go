package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/painminer/internal/cost"
	"github.com/sells-group/painminer/internal/model"
	"github.com/sells-group/painminer/internal/resilience"
	"github.com/sells-group/painminer/internal/store"
	"github.com/sells-group/painminer/internal/tracker"
	"github.com/sells-group/painminer/pkg/jina"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeEmbedder returns a unit vector per text; fail makes every call error.
type fakeEmbedder struct {
	calls int
	fail  bool
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) (*jina.EmbedResponse, error) {
	f.calls++
	if f.fail {
		return nil, resilience.NewTransientError(errors.New("upstream down"), http.StatusServiceUnavailable)
	}
	data := make([]jina.EmbedData, len(texts))
	for i := range texts {
		data[i] = jina.EmbedData{Index: i, Embedding: []float64{float64(len(texts[i])), 1}}
	}
	return &jina.EmbedResponse{
		Model: "jina-embeddings-v3",
		Data:  data,
		Usage: jina.EmbedUsage{TotalTokens: int64(100 * len(texts))},
	}, nil
}

func newHarness(t *testing.T, client jina.Client, batchSize int) (*Index, store.Store, *tracker.Tracker) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	calc := cost.NewCalculator(cost.Rates{Jina: cost.JinaRate{PerMTok: 0.02}})
	tr, err := tracker.Begin(context.Background(), st, calc)
	require.NoError(t, err)

	ix := New(st, client, tr, Config{BatchSize: batchSize})
	ix.retry.MaxAttempts = 2
	ix.retry.InitialBackoff = time.Millisecond
	ix.retry.MaxBackoff = time.Millisecond
	return ix, st, tr
}

func storedPain(t *testing.T, st store.Store, id, title string) model.Pain {
	t.Helper()
	p := model.Pain{
		ID:                 id,
		RawItemRef:         "reddit/" + id,
		Source:             model.SourceReddit,
		Industry:           "saas",
		Role:               "founder",
		Title:              title,
		Description:        "desc",
		Severity:           6,
		Frequency:          model.FrequencyWeekly,
		ImpactType:         model.ImpactTime,
		WillingnessToPay:   model.WTPMedium,
		SolutionComplexity: model.ComplexityMedium,
		KeyQuotes:          []string{"quote"},
		Tags:               []string{"tag"},
		CreatedAt:          time.Now().UTC(),
	}
	require.NoError(t, st.InsertPain(context.Background(), p))
	return p
}

func TestContentHash_Stable(t *testing.T) {
	assert.Equal(t, ContentHash("abc"), ContentHash("abc"))
	assert.NotEqual(t, ContentHash("abc"), ContentHash("abd"))
	assert.Len(t, ContentHash("abc"), 64)
}

func TestEnsure_ComputesAndCaches(t *testing.T) {
	client := &fakeEmbedder{}
	ix, st, tr := newHarness(t, client, 64)
	ctx := context.Background()

	p1 := storedPain(t, st, "p1", "pain one")
	p2 := storedPain(t, st, "p2", "pain two")

	vectors, err := ix.Ensure(ctx, []model.Pain{p1, p2})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, 1, client.calls)

	// Second pass serves entirely from cache.
	vectors, err = ix.Ensure(ctx, []model.Pain{p1, p2})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, 1, client.calls)

	calls, spend := tr.Spend()
	assert.Equal(t, 1, calls)
	assert.Greater(t, spend, 0.0)
}

func TestEnsure_RecomputesWhenContentChanges(t *testing.T) {
	client := &fakeEmbedder{}
	ix, st, _ := newHarness(t, client, 64)
	ctx := context.Background()

	p := storedPain(t, st, "p1", "original title")
	_, err := ix.Ensure(ctx, []model.Pain{p})
	require.NoError(t, err)
	require.Equal(t, 1, client.calls)

	// A changed title changes the canonical text hash, invalidating the cache.
	p.Title = "edited title"
	_, err = ix.Ensure(ctx, []model.Pain{p})
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)

	emb, err := st.Embedding(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, emb)
	assert.Equal(t, ContentHash(p.EmbedText()), emb.ContentHash)
}

// shuffledEmbedder answers with the vectors in reverse order, relying on the
// per-item index field to say which input each one belongs to.
type shuffledEmbedder struct{}

func (shuffledEmbedder) Embed(_ context.Context, texts []string) (*jina.EmbedResponse, error) {
	data := make([]jina.EmbedData, 0, len(texts))
	for i := len(texts) - 1; i >= 0; i-- {
		data = append(data, jina.EmbedData{Index: i, Embedding: []float64{float64(len(texts[i])), 1}})
	}
	return &jina.EmbedResponse{
		Model: "jina-embeddings-v3",
		Data:  data,
		Usage: jina.EmbedUsage{TotalTokens: int64(100 * len(texts))},
	}, nil
}

func TestEnsure_MapsVectorsByResponseIndex(t *testing.T) {
	ix, st, _ := newHarness(t, shuffledEmbedder{}, 64)
	ctx := context.Background()

	p1 := storedPain(t, st, "p1", "a short one")
	p2 := storedPain(t, st, "p2", "a much much longer title here")

	vectors, err := ix.Ensure(ctx, []model.Pain{p1, p2})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	// Each pain must get the vector derived from its own text, not the one
	// at its slice position.
	assert.Equal(t, float64(len(p1.EmbedText())), vectors["p1"][0])
	assert.Equal(t, float64(len(p2.EmbedText())), vectors["p2"][0])
	assert.NotEqual(t, vectors["p1"][0], vectors["p2"][0])
}

func TestEnsure_BatchFailureExcludesPainsButDoesNotFail(t *testing.T) {
	client := &fakeEmbedder{fail: true}
	ix, st, tr := newHarness(t, client, 64)
	ctx := context.Background()

	p := storedPain(t, st, "p1", "pain one")
	vectors, err := ix.Ensure(ctx, []model.Pain{p})
	require.NoError(t, err)
	assert.Empty(t, vectors)

	// Both failed attempts hit the ledger at zero tokens.
	calls, spend := tr.Spend()
	assert.Equal(t, 2, calls)
	assert.Zero(t, spend)
}

func TestEnsure_CanceledContextPropagates(t *testing.T) {
	client := &fakeEmbedder{fail: true}
	ix, st, _ := newHarness(t, client, 64)

	p := storedPain(t, st, "p1", "pain one")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ix.Ensure(ctx, []model.Pain{p})
	assert.Error(t, err)
}

func TestEnsure_RespectsBatchSize(t *testing.T) {
	client := &fakeEmbedder{}
	ix, st, _ := newHarness(t, client, 2)
	ctx := context.Background()

	pains := make([]model.Pain, 5)
	for i := range pains {
		pains[i] = storedPain(t, st, fmt.Sprintf("p%d", i), fmt.Sprintf("pain %d", i))
	}

	vectors, err := ix.Ensure(ctx, pains)
	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Equal(t, 3, client.calls) // 2+2+1
}
