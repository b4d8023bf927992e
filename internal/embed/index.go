// Package embed maintains the embedding index over pain records. Vectors are
// cached by content hash: a pain whose canonical text has not changed never
// hits the embeddings API again.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/painminer/internal/model"
	"github.com/sells-group/painminer/internal/resilience"
	"github.com/sells-group/painminer/internal/store"
	"github.com/sells-group/painminer/internal/tracker"
	"github.com/sells-group/painminer/pkg/jina"
)

// Index resolves embedding vectors for pains, computing only what the cache
// cannot serve.
type Index struct {
	store   store.Store
	client  jina.Client
	tracker *tracker.Tracker

	model     string
	batchSize int
	retry     resilience.RetryConfig
}

// Config holds index construction parameters.
type Config struct {
	Model     string
	BatchSize int
}

func New(st store.Store, client jina.Client, tr *tracker.Tracker, cfg Config) *Index {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	model := cfg.Model
	if model == "" {
		model = "jina-embeddings-v3"
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("jina", "embed")
	return &Index{
		store:     st,
		client:    client,
		tracker:   tr,
		model:     model,
		batchSize: batchSize,
		retry:     retry,
	}
}

// ContentHash returns the cache key for a pain's canonical text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Ensure returns a vector for every given pain, computing and persisting the
// ones missing or stale in the cache. The returned map is keyed by pain id.
func (ix *Index) Ensure(ctx context.Context, pains []model.Pain) (map[string][]float64, error) {
	vectors := make(map[string][]float64, len(pains))

	type miss struct {
		pain model.Pain
		hash string
	}
	var misses []miss

	for _, p := range pains {
		hash := ContentHash(p.EmbedText())
		cached, err := ix.store.Embedding(ctx, p.ID)
		if err != nil {
			return nil, eris.Wrap(err, "embed: cache lookup")
		}
		if cached != nil && cached.ContentHash == hash {
			vectors[p.ID] = cached.Vector
			continue
		}
		misses = append(misses, miss{pain: p, hash: hash})
	}

	zap.L().Info("embedding index",
		zap.Int("pains", len(pains)),
		zap.Int("cache_hits", len(pains)-len(misses)),
		zap.Int("to_compute", len(misses)))

	for start := 0; start < len(misses); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(misses) {
			end = len(misses)
		}
		batch := misses[start:end]

		texts := make([]string, len(batch))
		for i, m := range batch {
			texts[i] = m.pain.EmbedText()
		}

		resp, err := resilience.DoVal(ctx, ix.retry, func(ctx context.Context) (*jina.EmbedResponse, error) {
			resp, err := ix.client.Embed(ctx, texts)
			if err != nil {
				if trackErr := ix.tracker.RecordEmbedding(ctx, ix.model, 0, false); trackErr != nil {
					return nil, trackErr
				}
				return nil, eris.Wrap(err, "embed: api call")
			}
			if trackErr := ix.tracker.RecordEmbedding(ctx, resp.Model, resp.Usage.TotalTokens, true); trackErr != nil {
				return nil, trackErr
			}
			return resp, nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			// Persistent embedding failure excludes these pains from the
			// current clustering pass but does not fail the run.
			zap.L().Warn("embedding batch failed, excluding pains from this pass",
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			continue
		}

		// The API tags each vector with its input position; responses are
		// not guaranteed to arrive in input order.
		byInput := make([][]float64, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, eris.Errorf("embed: response index %d out of range for batch of %d", d.Index, len(batch))
			}
			byInput[d.Index] = d.Embedding
		}

		now := time.Now().UTC()
		for i, m := range batch {
			vec := byInput[i]
			if vec == nil {
				return nil, eris.Errorf("embed: no vector returned for input %d", i)
			}
			if err := ix.store.SetEmbedding(ctx, model.Embedding{
				PainID:      m.pain.ID,
				ContentHash: m.hash,
				Vector:      vec,
				Model:       resp.Model,
				CreatedAt:   now,
			}); err != nil {
				return nil, eris.Wrapf(err, "embed: persist vector for %s", m.pain.ID)
			}
			vectors[m.pain.ID] = vec
		}
	}

	return vectors, nil
}
