package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/painminer/internal/cost"
	"github.com/sells-group/painminer/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "painminer.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// initCalculator builds the cost calculator from configured pricing,
// falling back to the stock rate table.
func initCalculator() *cost.Calculator {
	rates := cost.DefaultRates()
	if len(cfg.Pricing.Anthropic) > 0 {
		rates.Anthropic = make(map[string]cost.ModelRate, len(cfg.Pricing.Anthropic))
		for model, p := range cfg.Pricing.Anthropic {
			rates.Anthropic[model] = cost.ModelRate{Input: p.Input, Output: p.Output}
		}
	}
	if cfg.Pricing.Jina.PerMTok > 0 {
		rates.Jina = cost.JinaRate{PerMTok: cfg.Pricing.Jina.PerMTok}
	}
	return cost.NewCalculator(rates)
}
