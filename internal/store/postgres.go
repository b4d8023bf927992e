package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/painminer/internal/db"
	"github.com/sells-group/painminer/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists the hot-path queries prepared on each new
// connection. Workers append pains and cost rows concurrently, so these two
// dominate traffic.
var preparedStatements = map[string]string{
	"insert_pain": `INSERT INTO pains (id, raw_item_ref, source, industry, sub_industry, role, title, description,
		severity, frequency, impact_type, emotional_intensity, willingness_to_pay,
		solvable_with_software, solvable_with_ai, solution_complexity,
		potential_product, key_quotes, tags, confidence, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
	"insert_cost": `INSERT INTO llm_costs (id, run_id, operation, model, input_tokens, output_tokens, cost_usd, succeeded, ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
	"mark_raw_item": `UPDATE raw_items SET status = $1, fail_reason = $2, updated_at = $3 WHERE source = $4 AND external_id = $5`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool (used by tests with pgxmock).
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS raw_items (
	source      TEXT NOT NULL,
	external_id TEXT NOT NULL,
	text        TEXT NOT NULL,
	metadata    JSONB,
	fetched_at  TIMESTAMPTZ NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	fail_reason TEXT,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source, external_id)
);

CREATE TABLE IF NOT EXISTS pains (
	id                     TEXT PRIMARY KEY,
	raw_item_ref           TEXT NOT NULL UNIQUE,
	source                 TEXT NOT NULL,
	industry               TEXT NOT NULL,
	sub_industry           TEXT,
	role                   TEXT NOT NULL,
	title                  TEXT NOT NULL,
	description            TEXT,
	severity               INTEGER NOT NULL CHECK (severity BETWEEN 1 AND 10),
	frequency              TEXT NOT NULL,
	impact_type            TEXT NOT NULL,
	emotional_intensity    INTEGER,
	willingness_to_pay     TEXT NOT NULL,
	solvable_with_software BOOLEAN NOT NULL,
	solvable_with_ai       BOOLEAN NOT NULL,
	solution_complexity    TEXT NOT NULL,
	potential_product      TEXT,
	key_quotes             JSONB NOT NULL,
	tags                   JSONB NOT NULL,
	confidence             DOUBLE PRECISION,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_pains_industry ON pains(industry);
CREATE INDEX IF NOT EXISTS idx_pains_severity ON pains(severity DESC);
CREATE INDEX IF NOT EXISTS idx_pains_source ON pains(source);

CREATE TABLE IF NOT EXISTS embeddings (
	pain_id      TEXT PRIMARY KEY REFERENCES pains(id),
	content_hash TEXT NOT NULL,
	vector       JSONB NOT NULL,
	model        TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS clusters (
	id                TEXT PRIMARY KEY,
	run_id            TEXT NOT NULL,
	name              TEXT NOT NULL,
	signature         TEXT NOT NULL,
	size              INTEGER NOT NULL,
	avg_severity      DOUBLE PRECISION NOT NULL,
	avg_wtp           TEXT NOT NULL,
	top_industries    JSONB NOT NULL,
	opportunity_score DOUBLE PRECISION NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pain_clusters (
	pain_id    TEXT PRIMARY KEY,
	cluster_id TEXT NOT NULL,
	run_id     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pain_clusters_cluster ON pain_clusters(cluster_id);

CREATE TABLE IF NOT EXISTS clusters_staging (LIKE clusters INCLUDING ALL);
CREATE TABLE IF NOT EXISTS pain_clusters_staging (LIKE pain_clusters INCLUDING ALL);

CREATE TABLE IF NOT EXISTS deep_analyses (
	id                      TEXT PRIMARY KEY,
	cluster_id              TEXT NOT NULL,
	run_id                  TEXT NOT NULL,
	competitors             JSONB NOT NULL,
	why_still_painful       TEXT,
	target_role             TEXT NOT NULL,
	target_company_size     TEXT,
	target_industries       JSONB NOT NULL,
	market_size             TEXT NOT NULL,
	root_cause              TEXT,
	mvp_description         TEXT NOT NULL,
	core_features           JSONB NOT NULL,
	out_of_scope            JSONB NOT NULL,
	where_to_find_customers JSONB NOT NULL,
	best_channel            TEXT,
	price_range             TEXT,
	risks                   JSONB NOT NULL,
	verdict                 TEXT NOT NULL,
	attractiveness_score    INTEGER NOT NULL,
	main_argument           TEXT,
	model_used              TEXT NOT NULL,
	analyzed_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_deep_analyses_cluster ON deep_analyses(cluster_id);

CREATE TABLE IF NOT EXISTS collection_runs (
	id               TEXT PRIMARY KEY,
	status           TEXT NOT NULL DEFAULT 'pending',
	items_seen       INTEGER NOT NULL DEFAULT 0,
	items_classified INTEGER NOT NULL DEFAULT 0,
	failures         INTEGER NOT NULL DEFAULT 0,
	started_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS llm_costs (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	operation     TEXT NOT NULL,
	model         TEXT NOT NULL,
	input_tokens  BIGINT NOT NULL,
	output_tokens BIGINT NOT NULL,
	cost_usd      DOUBLE PRECISION NOT NULL,
	succeeded     BOOLEAN NOT NULL,
	ts            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_llm_costs_run ON llm_costs(run_id);
CREATE INDEX IF NOT EXISTS idx_llm_costs_ts ON llm_costs(ts);

CREATE TABLE IF NOT EXISTS daily_stats (
	day         DATE PRIMARY KEY,
	calls       INTEGER NOT NULL,
	tokens      BIGINT NOT NULL,
	cost_usd    DOUBLE PRECISION NOT NULL,
	pains_found INTEGER NOT NULL
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertRawItem(ctx context.Context, item model.RawItem) (model.ItemStatus, error) {
	metaJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal metadata")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO raw_items (source, external_id, text, metadata, fetched_at, status, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (source, external_id) DO NOTHING`,
		string(item.Source), item.ExternalID, item.Text, metaJSON, item.FetchedAt.UTC(),
		string(model.ItemPending), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: upsert raw item")
	}

	var status string
	err = s.pool.QueryRow(ctx,
		`SELECT status FROM raw_items WHERE source = $1 AND external_id = $2`,
		string(item.Source), item.ExternalID,
	).Scan(&status)
	if err != nil {
		return "", eris.Wrap(err, "postgres: raw item status")
	}
	return model.ItemStatus(status), nil
}

func (s *PostgresStore) MarkRawItem(ctx context.Context, source model.Source, externalID string, status model.ItemStatus, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE raw_items SET status = $1, fail_reason = $2, updated_at = $3 WHERE source = $4 AND external_id = $5`,
		string(status), nullIfEmpty(reason), time.Now().UTC(), string(source), externalID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark raw item %s/%s", source, externalID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("raw item not found: %s/%s", source, externalID)
	}
	return nil
}

func (s *PostgresStore) InsertPain(ctx context.Context, p model.Pain) error {
	quotesJSON, err := json.Marshal(p.KeyQuotes)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal key quotes")
	}
	tagsJSON, err := json.Marshal(p.Tags)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal tags")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO pains (id, raw_item_ref, source, industry, sub_industry, role, title, description,
		 severity, frequency, impact_type, emotional_intensity, willingness_to_pay,
		 solvable_with_software, solvable_with_ai, solution_complexity,
		 potential_product, key_quotes, tags, confidence, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		p.ID, p.RawItemRef, string(p.Source), p.Industry, nullIfEmpty(p.SubIndustry), p.Role,
		p.Title, p.Description, p.Severity, string(p.Frequency), string(p.ImpactType),
		p.EmotionalIntensity, string(p.WillingnessToPay), p.SolvableWithSoftware, p.SolvableWithAI,
		string(p.SolutionComplexity), p.PotentialProduct, quotesJSON, tagsJSON, p.Confidence,
		p.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert pain %s", p.ID)
}

const painColumns = `id, raw_item_ref, source, industry, sub_industry, role, title, description,
	severity, frequency, impact_type, emotional_intensity, willingness_to_pay,
	solvable_with_software, solvable_with_ai, solution_complexity,
	potential_product, key_quotes, tags, confidence, created_at`

func scanPain(row pgx.Row) (model.Pain, error) {
	var p model.Pain
	var subIndustry *string
	var quotesJSON, tagsJSON []byte

	err := row.Scan(&p.ID, &p.RawItemRef, &p.Source, &p.Industry, &subIndustry, &p.Role,
		&p.Title, &p.Description, &p.Severity, &p.Frequency, &p.ImpactType,
		&p.EmotionalIntensity, &p.WillingnessToPay, &p.SolvableWithSoftware, &p.SolvableWithAI,
		&p.SolutionComplexity, &p.PotentialProduct, &quotesJSON, &tagsJSON, &p.Confidence,
		&p.CreatedAt)
	if err != nil {
		return p, err
	}
	if subIndustry != nil {
		p.SubIndustry = *subIndustry
	}
	if err := json.Unmarshal(quotesJSON, &p.KeyQuotes); err != nil {
		return p, eris.Wrap(err, "unmarshal key quotes")
	}
	if err := json.Unmarshal(tagsJSON, &p.Tags); err != nil {
		return p, eris.Wrap(err, "unmarshal tags")
	}
	return p, nil
}

func (s *PostgresStore) ListPains(ctx context.Context, filter PainFilter) ([]model.Pain, error) {
	query := `SELECT ` + painColumns + ` FROM pains WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Industry != "" {
		query += fmt.Sprintf(` AND industry = $%d`, argIdx)
		args = append(args, filter.Industry)
		argIdx++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, string(filter.Source))
		argIdx++
	}
	if filter.MinSeverity > 0 {
		query += fmt.Sprintf(` AND severity >= $%d`, argIdx)
		args = append(args, filter.MinSeverity)
		argIdx++
	}
	if filter.MaxSeverity > 0 {
		query += fmt.Sprintf(` AND severity <= $%d`, argIdx)
		args = append(args, filter.MaxSeverity)
		argIdx++
	}
	query += ` ORDER BY id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pains")
	}
	defer rows.Close()

	var pains []model.Pain
	for rows.Next() {
		p, err := scanPain(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan pain")
		}
		pains = append(pains, p)
	}
	return pains, eris.Wrap(rows.Err(), "postgres: list pains iterate")
}

func (s *PostgresStore) PainsByCluster(ctx context.Context, clusterID string, limit int) ([]model.Pain, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+painColumns+` FROM pains
		 WHERE id IN (SELECT pain_id FROM pain_clusters WHERE cluster_id = $1)
		 ORDER BY severity DESC, id LIMIT $2`,
		clusterID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: pains by cluster %s", clusterID)
	}
	defer rows.Close()

	var pains []model.Pain
	for rows.Next() {
		p, err := scanPain(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan pain")
		}
		pains = append(pains, p)
	}
	return pains, eris.Wrap(rows.Err(), "postgres: pains by cluster iterate")
}

func (s *PostgresStore) Embedding(ctx context.Context, painID string) (*model.Embedding, error) {
	var emb model.Embedding
	var vectorJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT pain_id, content_hash, vector, model, created_at FROM embeddings WHERE pain_id = $1`,
		painID,
	).Scan(&emb.PainID, &emb.ContentHash, &vectorJSON, &emb.Model, &emb.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get embedding %s", painID)
	}
	if err := json.Unmarshal(vectorJSON, &emb.Vector); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal vector")
	}
	return &emb, nil
}

func (s *PostgresStore) SetEmbedding(ctx context.Context, emb model.Embedding) error {
	vectorJSON, err := json.Marshal(emb.Vector)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal vector")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO embeddings (pain_id, content_hash, vector, model, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (pain_id) DO UPDATE SET content_hash = $2, vector = $3, model = $4, created_at = $5`,
		emb.PainID, emb.ContentHash, vectorJSON, emb.Model, emb.CreatedAt,
	)
	return eris.Wrap(err, "postgres: set embedding")
}

func (s *PostgresStore) ListEmbeddings(ctx context.Context) ([]model.Embedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pain_id, content_hash, vector, model, created_at FROM embeddings ORDER BY pain_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list embeddings")
	}
	defer rows.Close()

	var embs []model.Embedding
	for rows.Next() {
		var emb model.Embedding
		var vectorJSON []byte
		if err := rows.Scan(&emb.PainID, &emb.ContentHash, &vectorJSON, &emb.Model, &emb.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan embedding")
		}
		if err := json.Unmarshal(vectorJSON, &emb.Vector); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal vector")
		}
		embs = append(embs, emb)
	}
	return embs, eris.Wrap(rows.Err(), "postgres: list embeddings iterate")
}

// SwapClusters rebuilds the staging tables and swaps them into the live
// tables inside one transaction. A failed recompute leaves the prior cluster
// state untouched.
func (s *PostgresStore) SwapClusters(ctx context.Context, runID string, clusters []model.Cluster, members []model.Membership) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: swap clusters begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, stmt := range []string{
		`TRUNCATE clusters_staging`,
		`TRUNCATE pain_clusters_staging`,
	} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "postgres: clear staging")
		}
	}

	for _, c := range clusters {
		industriesJSON, err := json.Marshal(c.TopIndustries)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal top industries")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO clusters_staging (id, run_id, name, signature, size, avg_severity, avg_wtp, top_industries, opportunity_score, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			c.ID, runID, c.Name, c.Signature, c.Size, c.AvgSeverity, string(c.AvgWTP),
			industriesJSON, c.OpportunityScore, c.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: stage cluster %s", c.ID)
		}
	}

	memberRows := make([][]any, len(members))
	for i, m := range members {
		memberRows[i] = []any{m.PainID, m.ClusterID, runID}
	}
	if _, err := db.CopyFrom(ctx, tx, "pain_clusters_staging",
		[]string{"pain_id", "cluster_id", "run_id"}, memberRows); err != nil {
		return eris.Wrap(err, "postgres: stage memberships")
	}

	for _, stmt := range []string{
		`TRUNCATE clusters`,
		`TRUNCATE pain_clusters`,
		`INSERT INTO clusters SELECT * FROM clusters_staging`,
		`INSERT INTO pain_clusters SELECT * FROM pain_clusters_staging`,
	} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "postgres: swap staging into live")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: swap clusters commit")
}

const clusterColumns = `id, run_id, name, signature, size, avg_severity, avg_wtp, top_industries, opportunity_score, created_at`

func scanCluster(row pgx.Row) (model.Cluster, error) {
	var c model.Cluster
	var industriesJSON []byte
	err := row.Scan(&c.ID, &c.RunID, &c.Name, &c.Signature, &c.Size, &c.AvgSeverity,
		&c.AvgWTP, &industriesJSON, &c.OpportunityScore, &c.CreatedAt)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(industriesJSON, &c.TopIndustries); err != nil {
		return c, eris.Wrap(err, "unmarshal top industries")
	}
	return c, nil
}

func (s *PostgresStore) ListClusters(ctx context.Context, filter ClusterFilter) ([]model.Cluster, error) {
	query := `SELECT ` + clusterColumns + ` FROM clusters WHERE true`
	args := []any{}
	argIdx := 1

	if filter.MinSize > 0 {
		query += fmt.Sprintf(` AND size >= $%d`, argIdx)
		args = append(args, filter.MinSize)
		argIdx++
	}
	query += ` ORDER BY opportunity_score DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list clusters")
	}
	defer rows.Close()

	var clusters []model.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan cluster")
		}
		clusters = append(clusters, c)
	}
	return clusters, eris.Wrap(rows.Err(), "postgres: list clusters iterate")
}

func (s *PostgresStore) GetCluster(ctx context.Context, id string) (*model.Cluster, error) {
	c, err := scanCluster(s.pool.QueryRow(ctx,
		`SELECT `+clusterColumns+` FROM clusters WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get cluster %s", id)
	}
	return &c, nil
}

func (s *PostgresStore) ClusterMembers(ctx context.Context) (map[string][]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cluster_id, pain_id FROM pain_clusters ORDER BY cluster_id, pain_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cluster members")
	}
	defer rows.Close()

	members := make(map[string][]string)
	for rows.Next() {
		var clusterID, painID string
		if err := rows.Scan(&clusterID, &painID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan membership")
		}
		members[clusterID] = append(members[clusterID], painID)
	}
	return members, eris.Wrap(rows.Err(), "postgres: cluster members iterate")
}

func (s *PostgresStore) InsertDeepAnalysis(ctx context.Context, da model.DeepAnalysis) error {
	marshal := func(v any, what string) ([]byte, error) {
		b, err := json.Marshal(v)
		return b, eris.Wrapf(err, "postgres: marshal %s", what)
	}
	competitorsJSON, err := marshal(da.Competitors, "competitors")
	if err != nil {
		return err
	}
	industriesJSON, err := marshal(da.TargetIndustries, "target industries")
	if err != nil {
		return err
	}
	featuresJSON, err := marshal(da.CoreFeatures, "core features")
	if err != nil {
		return err
	}
	outOfScopeJSON, err := marshal(da.OutOfScope, "out of scope")
	if err != nil {
		return err
	}
	channelsJSON, err := marshal(da.WhereToFindCustomers, "customer channels")
	if err != nil {
		return err
	}
	risksJSON, err := marshal(da.Risks, "risks")
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO deep_analyses (id, cluster_id, run_id, competitors, why_still_painful,
		 target_role, target_company_size, target_industries, market_size, root_cause,
		 mvp_description, core_features, out_of_scope, where_to_find_customers,
		 best_channel, price_range, risks, verdict, attractiveness_score, main_argument,
		 model_used, analyzed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		da.ID, da.ClusterID, da.RunID, competitorsJSON, da.WhyStillPainful,
		da.TargetRole, da.TargetCompanySize, industriesJSON, string(da.MarketSize), da.RootCause,
		da.MVPDescription, featuresJSON, outOfScopeJSON, channelsJSON,
		da.BestChannel, da.PriceRange, risksJSON, string(da.Verdict), da.AttractivenessScore,
		da.MainArgument, da.ModelUsed, da.AnalyzedAt,
	)
	return eris.Wrapf(err, "postgres: insert deep analysis %s", da.ID)
}

func (s *PostgresStore) ListDeepAnalyses(ctx context.Context, clusterID string) ([]model.DeepAnalysis, error) {
	query := `SELECT id, cluster_id, run_id, competitors, why_still_painful,
		target_role, target_company_size, target_industries, market_size, root_cause,
		mvp_description, core_features, out_of_scope, where_to_find_customers,
		best_channel, price_range, risks, verdict, attractiveness_score, main_argument,
		model_used, analyzed_at FROM deep_analyses`
	args := []any{}
	if clusterID != "" {
		query += ` WHERE cluster_id = $1`
		args = append(args, clusterID)
	}
	query += ` ORDER BY analyzed_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list deep analyses")
	}
	defer rows.Close()

	var analyses []model.DeepAnalysis
	for rows.Next() {
		var da model.DeepAnalysis
		var competitorsJSON, industriesJSON, featuresJSON, outOfScopeJSON, channelsJSON, risksJSON []byte
		err := rows.Scan(&da.ID, &da.ClusterID, &da.RunID, &competitorsJSON, &da.WhyStillPainful,
			&da.TargetRole, &da.TargetCompanySize, &industriesJSON, &da.MarketSize, &da.RootCause,
			&da.MVPDescription, &featuresJSON, &outOfScopeJSON, &channelsJSON,
			&da.BestChannel, &da.PriceRange, &risksJSON, &da.Verdict, &da.AttractivenessScore,
			&da.MainArgument, &da.ModelUsed, &da.AnalyzedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan deep analysis")
		}
		for _, pair := range []struct {
			raw []byte
			dst any
		}{
			{competitorsJSON, &da.Competitors},
			{industriesJSON, &da.TargetIndustries},
			{featuresJSON, &da.CoreFeatures},
			{outOfScopeJSON, &da.OutOfScope},
			{channelsJSON, &da.WhereToFindCustomers},
			{risksJSON, &da.Risks},
		} {
			if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal deep analysis field")
			}
		}
		analyses = append(analyses, da)
	}
	return analyses, eris.Wrap(rows.Err(), "postgres: list deep analyses iterate")
}

func (s *PostgresStore) AnalyzedClusterIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT cluster_id FROM deep_analyses`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: analyzed cluster ids")
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cluster id")
		}
		ids[id] = true
	}
	return ids, eris.Wrap(rows.Err(), "postgres: analyzed cluster ids iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.CollectionRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO collection_runs (id, status, started_at) VALUES ($1, $2, $3)`,
		id, string(model.RunPending), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.CollectionRun{ID: id, Status: model.RunPending, StartedAt: now}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE collection_runs SET status = $1 WHERE id = $2`,
		string(status), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, seen, classified, failures int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE collection_runs SET status = $1, items_seen = $2, items_classified = $3, failures = $4, finished_at = $5
		 WHERE id = $6`,
		string(status), seen, classified, failures, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.CollectionRun, error) {
	var r model.CollectionRun
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, items_seen, items_classified, failures, started_at, finished_at
		 FROM collection_runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Status, &r.ItemsSeen, &r.ItemsClassified, &r.Failures, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.CollectionRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, items_seen, items_classified, failures, started_at, finished_at
		 FROM collection_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.CollectionRun
	for rows.Next() {
		var r model.CollectionRun
		if err := rows.Scan(&r.ID, &r.Status, &r.ItemsSeen, &r.ItemsClassified, &r.Failures, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) InsertCost(ctx context.Context, c model.LLMCost) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO llm_costs (id, run_id, operation, model, input_tokens, output_tokens, cost_usd, succeeded, ts)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		c.ID, c.RunID, c.Operation, c.Model, c.InputTokens, c.OutputTokens, c.CostUSD, c.Succeeded, c.Timestamp,
	)
	return eris.Wrap(err, "postgres: insert cost")
}

func (s *PostgresStore) RunCost(ctx context.Context, runID string) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM llm_costs WHERE run_id = $1`,
		runID,
	).Scan(&total)
	return total, eris.Wrapf(err, "postgres: run cost %s", runID)
}

// RecomputeDailyStats rebuilds the daily_stats rollup for the date range from
// the llm_costs and pains source rows. The rollup is never written any other
// way.
func (s *PostgresStore) RecomputeDailyStats(ctx context.Context, from, to time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: recompute daily stats begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`DELETE FROM daily_stats WHERE day >= $1::date AND day <= $2::date`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: clear daily stats")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO daily_stats (day, calls, tokens, cost_usd, pains_found)
		 SELECT c.day,
		        COALESCE(c.calls, 0),
		        COALESCE(c.tokens, 0),
		        COALESCE(c.cost_usd, 0),
		        COALESCE(p.pains_found, 0)
		 FROM (
		   SELECT ts::date AS day, COUNT(*) AS calls,
		          SUM(input_tokens + output_tokens) AS tokens,
		          SUM(cost_usd) AS cost_usd
		   FROM llm_costs
		   WHERE ts::date >= $1::date AND ts::date <= $2::date
		   GROUP BY ts::date
		 ) c
		 LEFT JOIN (
		   SELECT created_at::date AS day, COUNT(*) AS pains_found
		   FROM pains
		   WHERE created_at::date >= $1::date AND created_at::date <= $2::date
		   GROUP BY created_at::date
		 ) p ON p.day = c.day`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert daily stats")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: recompute daily stats commit")
}

func (s *PostgresStore) DailyStats(ctx context.Context, from, to time.Time) ([]model.DailyStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT day, calls, tokens, cost_usd, pains_found FROM daily_stats
		 WHERE day >= $1::date AND day <= $2::date ORDER BY day`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: daily stats")
	}
	defer rows.Close()

	var stats []model.DailyStat
	for rows.Next() {
		var d model.DailyStat
		if err := rows.Scan(&d.Day, &d.Calls, &d.Tokens, &d.CostUSD, &d.PainsFound); err != nil {
			return nil, eris.Wrap(err, "postgres: scan daily stat")
		}
		stats = append(stats, d)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: daily stats iterate")
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
