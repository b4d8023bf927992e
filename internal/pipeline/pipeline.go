// Package pipeline orchestrates one collection run: fetch feeds, ingest,
// classify concurrently, and close the run with an honest terminal status.
package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/painminer/internal/classify"
	"github.com/sells-group/painminer/internal/collector"
	"github.com/sells-group/painminer/internal/ingest"
	"github.com/sells-group/painminer/internal/model"
	"github.com/sells-group/painminer/internal/tracker"
)

// Config holds pipeline concurrency settings.
type Config struct {
	// Workers caps concurrent classifier calls. Also the global cap on
	// outstanding external calls during collection.
	Workers int

	// SourceRate / SourceBurst shape the per-source rate limiters.
	SourceRate  float64
	SourceBurst int

	// CollectLimit caps items fetched per source. 0 means no cap.
	CollectLimit int
}

// Pipeline wires collectors, ingest, and classification under one run.
type Pipeline struct {
	collectors []collector.Collector
	ingestor   *ingest.Ingestor
	classifier *classify.Classifier
	tracker    *tracker.Tracker
	cfg        Config
	limiters   map[model.Source]*rate.Limiter
}

func New(collectors []collector.Collector, ing *ingest.Ingestor, cls *classify.Classifier, tr *tracker.Tracker, cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.SourceRate <= 0 {
		cfg.SourceRate = 1
	}
	if cfg.SourceBurst <= 0 {
		cfg.SourceBurst = 2
	}

	limiters := make(map[model.Source]*rate.Limiter, len(collectors))
	for _, c := range collectors {
		limiters[c.Name()] = rate.NewLimiter(rate.Limit(cfg.SourceRate), cfg.SourceBurst)
	}

	return &Pipeline{
		collectors: collectors,
		ingestor:   ing,
		classifier: cls,
		tracker:    tr,
		cfg:        cfg,
		limiters:   limiters,
	}
}

// Run executes the collection phase end to end and returns the run summary.
// Item-level failures degrade the run to partial; only infrastructure errors
// (storage unreachable, ledger write failed) fail it outright. Cancellation
// is cooperative: in-flight classifier calls complete and bill before the
// run closes as partial.
func (p *Pipeline) Run(ctx context.Context) (*model.RunSummary, error) {
	if err := p.tracker.Start(ctx); err != nil {
		return nil, eris.Wrap(err, "pipeline: start run")
	}

	log := zap.L().With(zap.String("run_id", p.tracker.RunID()))

	var fetched []model.RawItem
	for _, c := range p.collectors {
		items, err := c.Fetch(ctx, p.cfg.CollectLimit)
		if err != nil {
			// A missing or broken feed degrades the run, it does not stop
			// the other sources.
			log.Warn("collector fetch failed",
				zap.String("source", string(c.Name())),
				zap.Error(err))
			continue
		}
		fetched = append(fetched, items...)
	}
	log.Info("collection fetched", zap.Int("items", len(fetched)))

	res, err := p.ingestor.Ingest(ctx, fetched)
	if err != nil {
		return p.fail(ctx, eris.Wrap(err, "pipeline: ingest"), len(fetched), 0, 0)
	}

	var classified, failures int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

dispatch:
	for _, item := range res.Items {
		// Abort flag check between dispatches; workers already running are
		// left to finish.
		select {
		case <-ctx.Done():
			break dispatch
		default:
		}

		item := item
		g.Go(func() error {
			if lim := p.limiters[item.Source]; lim != nil {
				if err := lim.Wait(gctx); err != nil {
					return nil // canceled while queued
				}
			}

			outcome, err := p.classifier.Classify(gctx, item)
			if err != nil {
				// Store-level failure: unrecoverable, abort the pool.
				return eris.Wrapf(err, "pipeline: classify %s", item.Identity())
			}
			switch outcome.Status {
			case model.ItemClassified:
				atomic.AddInt64(&classified, 1)
			case model.ItemFailed:
				atomic.AddInt64(&failures, 1)
			}
			return nil
		})
	}

	infraErr := g.Wait()
	seen := len(fetched)
	nClassified := int(atomic.LoadInt64(&classified))
	nFailures := int(atomic.LoadInt64(&failures))

	if infraErr != nil {
		return p.fail(ctx, infraErr, seen, nClassified, nFailures)
	}

	status := model.RunCompleted
	if nFailures > 0 || ctx.Err() != nil {
		status = model.RunPartial
	}
	// The run row must close even when the context was canceled mid-run.
	if err := p.tracker.Finish(context.WithoutCancel(ctx), status, seen, nClassified, nFailures); err != nil {
		return nil, eris.Wrap(err, "pipeline: finish run")
	}

	return p.tracker.Summary(context.WithoutCancel(ctx))
}

// fail closes the run as failed, preserving whatever counters were reached.
// The original error wins even if closing the run also fails.
func (p *Pipeline) fail(ctx context.Context, cause error, seen, classified, failures int) (*model.RunSummary, error) {
	closeCtx := context.WithoutCancel(ctx)
	if err := p.tracker.Finish(closeCtx, model.RunFailed, seen, classified, failures); err != nil {
		zap.L().Error("failed to close run after error", zap.Error(err))
	}
	return nil, cause
}
