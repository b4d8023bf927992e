package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/painminer/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Single-writer, so
// cluster swaps use a plain transaction instead of the Postgres staging
// tables.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// SQLite is single-writer; one pooled connection also keeps :memory:
	// databases coherent across calls.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS raw_items (
	source      TEXT NOT NULL,
	external_id TEXT NOT NULL,
	text        TEXT NOT NULL,
	metadata    TEXT,
	fetched_at  DATETIME NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	fail_reason TEXT,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now')),
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
	solvable_with_software INTEGER NOT NULL,
	solvable_with_ai       INTEGER NOT NULL,
	solution_complexity    TEXT NOT NULL,
	potential_product      TEXT,
	key_quotes             TEXT NOT NULL,
	tags                   TEXT NOT NULL,
	confidence             REAL,
	created_at             DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_pains_industry ON pains(industry);
CREATE INDEX IF NOT EXISTS idx_pains_severity ON pains(severity DESC);
CREATE INDEX IF NOT EXISTS idx_pains_source ON pains(source);

CREATE TABLE IF NOT EXISTS embeddings (
	pain_id      TEXT PRIMARY KEY REFERENCES pains(id),
	content_hash TEXT NOT NULL,
	vector       TEXT NOT NULL,
	model        TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS clusters (
	id                TEXT PRIMARY KEY,
	run_id            TEXT NOT NULL,
	name              TEXT NOT NULL,
	signature         TEXT NOT NULL,
	size              INTEGER NOT NULL,
	avg_severity      REAL NOT NULL,
	avg_wtp           TEXT NOT NULL,
	top_industries    TEXT NOT NULL,
	opportunity_score REAL NOT NULL,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pain_clusters (
	pain_id    TEXT PRIMARY KEY,
	cluster_id TEXT NOT NULL,
	run_id     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pain_clusters_cluster ON pain_clusters(cluster_id);

CREATE TABLE IF NOT EXISTS deep_analyses (
	id                      TEXT PRIMARY KEY,
	cluster_id              TEXT NOT NULL,
	run_id                  TEXT NOT NULL,
	competitors             TEXT NOT NULL,
	why_still_painful       TEXT,
	target_role             TEXT NOT NULL,
	target_company_size     TEXT,
	target_industries       TEXT NOT NULL,
	market_size             TEXT NOT NULL,
	root_cause              TEXT,
	mvp_description         TEXT NOT NULL,
	core_features           TEXT NOT NULL,
	out_of_scope            TEXT NOT NULL,
	where_to_find_customers TEXT NOT NULL,
	best_channel            TEXT,
	price_range             TEXT,
	risks                   TEXT NOT NULL,
	verdict                 TEXT NOT NULL,
	attractiveness_score    INTEGER NOT NULL,
	main_argument           TEXT,
	model_used              TEXT NOT NULL,
	analyzed_at             DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_deep_analyses_cluster ON deep_analyses(cluster_id);

CREATE TABLE IF NOT EXISTS collection_runs (
	id               TEXT PRIMARY KEY,
	status           TEXT NOT NULL DEFAULT 'pending',
	items_seen       INTEGER NOT NULL DEFAULT 0,
	items_classified INTEGER NOT NULL DEFAULT 0,
	failures         INTEGER NOT NULL DEFAULT 0,
	started_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at      DATETIME
);

CREATE TABLE IF NOT EXISTS llm_costs (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	operation     TEXT NOT NULL,
	model         TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_usd      REAL NOT NULL,
	succeeded     INTEGER NOT NULL,
	ts            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_llm_costs_run ON llm_costs(run_id);
CREATE INDEX IF NOT EXISTS idx_llm_costs_ts ON llm_costs(ts);

CREATE TABLE IF NOT EXISTS daily_stats (
	day         DATE PRIMARY KEY,
	calls       INTEGER NOT NULL,
	tokens      INTEGER NOT NULL,
	cost_usd    REAL NOT NULL,
	pains_found INTEGER NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertRawItem(ctx context.Context, item model.RawItem) (model.ItemStatus, error) {
	metaJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal metadata")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO raw_items (source, external_id, text, metadata, fetched_at, status, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source, external_id) DO NOTHING`,
		string(item.Source), item.ExternalID, item.Text, string(metaJSON), item.FetchedAt.UTC(),
		string(model.ItemPending), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: upsert raw item")
	}

	var status string
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM raw_items WHERE source = ? AND external_id = ?`,
		string(item.Source), item.ExternalID,
	).Scan(&status)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: raw item status")
	}
	return model.ItemStatus(status), nil
}

func (s *SQLiteStore) MarkRawItem(ctx context.Context, source model.Source, externalID string, status model.ItemStatus, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE raw_items SET status = ?, fail_reason = ?, updated_at = ? WHERE source = ? AND external_id = ?`,
		string(status), sqlNullString(reason), time.Now().UTC(), string(source), externalID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark raw item %s/%s", source, externalID)
	}
	return checkRowsAffected(res, "raw item", fmt.Sprintf("%s/%s", source, externalID))
}

func (s *SQLiteStore) InsertPain(ctx context.Context, p model.Pain) error {
	quotesJSON, err := json.Marshal(p.KeyQuotes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal key quotes")
	}
	tagsJSON, err := json.Marshal(p.Tags)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tags")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pains (id, raw_item_ref, source, industry, sub_industry, role, title, description,
		 severity, frequency, impact_type, emotional_intensity, willingness_to_pay,
		 solvable_with_software, solvable_with_ai, solution_complexity,
		 potential_product, key_quotes, tags, confidence, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.RawItemRef, string(p.Source), p.Industry, sqlNullString(p.SubIndustry), p.Role,
		p.Title, p.Description, p.Severity, string(p.Frequency), string(p.ImpactType),
		p.EmotionalIntensity, string(p.WillingnessToPay), p.SolvableWithSoftware, p.SolvableWithAI,
		string(p.SolutionComplexity), p.PotentialProduct, string(quotesJSON), string(tagsJSON),
		p.Confidence, p.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert pain %s", p.ID)
}

func scanPainSQLite(row scannable) (model.Pain, error) {
	var p model.Pain
	var subIndustry sql.NullString
	var quotesJSON, tagsJSON string

	err := row.Scan(&p.ID, &p.RawItemRef, &p.Source, &p.Industry, &subIndustry, &p.Role,
		&p.Title, &p.Description, &p.Severity, &p.Frequency, &p.ImpactType,
		&p.EmotionalIntensity, &p.WillingnessToPay, &p.SolvableWithSoftware, &p.SolvableWithAI,
		&p.SolutionComplexity, &p.PotentialProduct, &quotesJSON, &tagsJSON, &p.Confidence,
		&p.CreatedAt)
	if err != nil {
		return p, err
	}
	if subIndustry.Valid {
		p.SubIndustry = subIndustry.String
	}
	if err := json.Unmarshal([]byte(quotesJSON), &p.KeyQuotes); err != nil {
		return p, eris.Wrap(err, "unmarshal key quotes")
	}
	if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
		return p, eris.Wrap(err, "unmarshal tags")
	}
	return p, nil
}

func (s *SQLiteStore) ListPains(ctx context.Context, filter PainFilter) ([]model.Pain, error) {
	query := `SELECT ` + painColumns + ` FROM pains WHERE 1=1`
	var args []any

	if filter.Industry != "" {
		query += ` AND industry = ?`
		args = append(args, filter.Industry)
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(filter.Source))
	}
	if filter.MinSeverity > 0 {
		query += ` AND severity >= ?`
		args = append(args, filter.MinSeverity)
	}
	if filter.MaxSeverity > 0 {
		query += ` AND severity <= ?`
		args = append(args, filter.MaxSeverity)
	}
	query += ` ORDER BY id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pains")
	}
	defer rows.Close()

	var pains []model.Pain
	for rows.Next() {
		p, err := scanPainSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pain")
		}
		pains = append(pains, p)
	}
	return pains, eris.Wrap(rows.Err(), "sqlite: list pains iterate")
}

func (s *SQLiteStore) PainsByCluster(ctx context.Context, clusterID string, limit int) ([]model.Pain, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+painColumns+` FROM pains
		 WHERE id IN (SELECT pain_id FROM pain_clusters WHERE cluster_id = ?)
		 ORDER BY severity DESC, id LIMIT ?`,
		clusterID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: pains by cluster %s", clusterID)
	}
	defer rows.Close()

	var pains []model.Pain
	for rows.Next() {
		p, err := scanPainSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pain")
		}
		pains = append(pains, p)
	}
	return pains, eris.Wrap(rows.Err(), "sqlite: pains by cluster iterate")
}

func (s *SQLiteStore) Embedding(ctx context.Context, painID string) (*model.Embedding, error) {
	var emb model.Embedding
	var vectorJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT pain_id, content_hash, vector, model, created_at FROM embeddings WHERE pain_id = ?`,
		painID,
	).Scan(&emb.PainID, &emb.ContentHash, &vectorJSON, &emb.Model, &emb.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get embedding %s", painID)
	}
	if err := json.Unmarshal([]byte(vectorJSON), &emb.Vector); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal vector")
	}
	return &emb, nil
}

func (s *SQLiteStore) SetEmbedding(ctx context.Context, emb model.Embedding) error {
	vectorJSON, err := json.Marshal(emb.Vector)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal vector")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO embeddings (pain_id, content_hash, vector, model, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (pain_id) DO UPDATE SET content_hash = excluded.content_hash,
		   vector = excluded.vector, model = excluded.model, created_at = excluded.created_at`,
		emb.PainID, emb.ContentHash, string(vectorJSON), emb.Model, emb.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: set embedding")
}

func (s *SQLiteStore) ListEmbeddings(ctx context.Context) ([]model.Embedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pain_id, content_hash, vector, model, created_at FROM embeddings ORDER BY pain_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list embeddings")
	}
	defer rows.Close()

	var embs []model.Embedding
	for rows.Next() {
		var emb model.Embedding
		var vectorJSON string
		if err := rows.Scan(&emb.PainID, &emb.ContentHash, &vectorJSON, &emb.Model, &emb.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan embedding")
		}
		if err := json.Unmarshal([]byte(vectorJSON), &emb.Vector); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal vector")
		}
		embs = append(embs, emb)
	}
	return embs, eris.Wrap(rows.Err(), "sqlite: list embeddings iterate")
}

func (s *SQLiteStore) SwapClusters(ctx context.Context, runID string, clusters []model.Cluster, members []model.Membership) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: swap clusters begin")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{
		`DELETE FROM clusters`,
		`DELETE FROM pain_clusters`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "sqlite: clear clusters")
		}
	}

	for _, c := range clusters {
		industriesJSON, err := json.Marshal(c.TopIndustries)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal top industries")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO clusters (id, run_id, name, signature, size, avg_severity, avg_wtp, top_industries, opportunity_score, created_at)
			 VALUES (?,?,?,?,?,?,?,?,?,?)`,
			c.ID, runID, c.Name, c.Signature, c.Size, c.AvgSeverity, string(c.AvgWTP),
			string(industriesJSON), c.OpportunityScore, c.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert cluster %s", c.ID)
		}
	}

	for _, m := range members {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pain_clusters (pain_id, cluster_id, run_id) VALUES (?, ?, ?)`,
			m.PainID, m.ClusterID, runID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert membership %s", m.PainID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: swap clusters commit")
}

func scanClusterSQLite(row scannable) (model.Cluster, error) {
	var c model.Cluster
	var industriesJSON string
	err := row.Scan(&c.ID, &c.RunID, &c.Name, &c.Signature, &c.Size, &c.AvgSeverity,
		&c.AvgWTP, &industriesJSON, &c.OpportunityScore, &c.CreatedAt)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(industriesJSON), &c.TopIndustries); err != nil {
		return c, eris.Wrap(err, "unmarshal top industries")
	}
	return c, nil
}

func (s *SQLiteStore) ListClusters(ctx context.Context, filter ClusterFilter) ([]model.Cluster, error) {
	query := `SELECT ` + clusterColumns + ` FROM clusters WHERE 1=1`
	var args []any

	if filter.MinSize > 0 {
		query += ` AND size >= ?`
		args = append(args, filter.MinSize)
	}
	query += ` ORDER BY opportunity_score DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list clusters")
	}
	defer rows.Close()

	var clusters []model.Cluster
	for rows.Next() {
		c, err := scanClusterSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cluster")
		}
		clusters = append(clusters, c)
	}
	return clusters, eris.Wrap(rows.Err(), "sqlite: list clusters iterate")
}

func (s *SQLiteStore) GetCluster(ctx context.Context, id string) (*model.Cluster, error) {
	c, err := scanClusterSQLite(s.db.QueryRowContext(ctx,
		`SELECT `+clusterColumns+` FROM clusters WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cluster %s", id)
	}
	return &c, nil
}

func (s *SQLiteStore) ClusterMembers(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cluster_id, pain_id FROM pain_clusters ORDER BY cluster_id, pain_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: cluster members")
	}
	defer rows.Close()

	members := make(map[string][]string)
	for rows.Next() {
		var clusterID, painID string
		if err := rows.Scan(&clusterID, &painID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan membership")
		}
		members[clusterID] = append(members[clusterID], painID)
	}
	return members, eris.Wrap(rows.Err(), "sqlite: cluster members iterate")
}

func (s *SQLiteStore) InsertDeepAnalysis(ctx context.Context, da model.DeepAnalysis) error {
	competitorsJSON, err := json.Marshal(da.Competitors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal competitors")
	}
	industriesJSON, err := json.Marshal(da.TargetIndustries)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal target industries")
	}
	featuresJSON, err := json.Marshal(da.CoreFeatures)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal core features")
	}
	outOfScopeJSON, err := json.Marshal(da.OutOfScope)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal out of scope")
	}
	channelsJSON, err := json.Marshal(da.WhereToFindCustomers)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal customer channels")
	}
	risksJSON, err := json.Marshal(da.Risks)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal risks")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO deep_analyses (id, cluster_id, run_id, competitors, why_still_painful,
		 target_role, target_company_size, target_industries, market_size, root_cause,
		 mvp_description, core_features, out_of_scope, where_to_find_customers,
		 best_channel, price_range, risks, verdict, attractiveness_score, main_argument,
		 model_used, analyzed_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		da.ID, da.ClusterID, da.RunID, string(competitorsJSON), da.WhyStillPainful,
		da.TargetRole, da.TargetCompanySize, string(industriesJSON), string(da.MarketSize), da.RootCause,
		da.MVPDescription, string(featuresJSON), string(outOfScopeJSON), string(channelsJSON),
		da.BestChannel, da.PriceRange, string(risksJSON), string(da.Verdict), da.AttractivenessScore,
		da.MainArgument, da.ModelUsed, da.AnalyzedAt,
	)
	return eris.Wrapf(err, "sqlite: insert deep analysis %s", da.ID)
}

func (s *SQLiteStore) ListDeepAnalyses(ctx context.Context, clusterID string) ([]model.DeepAnalysis, error) {
	query := `SELECT id, cluster_id, run_id, competitors, why_still_painful,
		target_role, target_company_size, target_industries, market_size, root_cause,
		mvp_description, core_features, out_of_scope, where_to_find_customers,
		best_channel, price_range, risks, verdict, attractiveness_score, main_argument,
		model_used, analyzed_at FROM deep_analyses`
	var args []any
	if clusterID != "" {
		query += ` WHERE cluster_id = ?`
		args = append(args, clusterID)
	}
	query += ` ORDER BY analyzed_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list deep analyses")
	}
	defer rows.Close()

	var analyses []model.DeepAnalysis
	for rows.Next() {
		var da model.DeepAnalysis
		var competitorsJSON, industriesJSON, featuresJSON, outOfScopeJSON, channelsJSON, risksJSON string
		err := rows.Scan(&da.ID, &da.ClusterID, &da.RunID, &competitorsJSON, &da.WhyStillPainful,
			&da.TargetRole, &da.TargetCompanySize, &industriesJSON, &da.MarketSize, &da.RootCause,
			&da.MVPDescription, &featuresJSON, &outOfScopeJSON, &channelsJSON,
			&da.BestChannel, &da.PriceRange, &risksJSON, &da.Verdict, &da.AttractivenessScore,
			&da.MainArgument, &da.ModelUsed, &da.AnalyzedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deep analysis")
		}
		for _, pair := range []struct {
			raw string
			dst any
		}{
			{competitorsJSON, &da.Competitors},
			{industriesJSON, &da.TargetIndustries},
			{featuresJSON, &da.CoreFeatures},
			{outOfScopeJSON, &da.OutOfScope},
			{channelsJSON, &da.WhereToFindCustomers},
			{risksJSON, &da.Risks},
		} {
			if err := json.Unmarshal([]byte(pair.raw), pair.dst); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal deep analysis field")
			}
		}
		analyses = append(analyses, da)
	}
	return analyses, eris.Wrap(rows.Err(), "sqlite: list deep analyses iterate")
}

func (s *SQLiteStore) AnalyzedClusterIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT cluster_id FROM deep_analyses`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: analyzed cluster ids")
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cluster id")
		}
		ids[id] = true
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: analyzed cluster ids iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.CollectionRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collection_runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(model.RunPending), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &model.CollectionRun{ID: id, Status: model.RunPending, StartedAt: now}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE collection_runs SET status = ? WHERE id = ?`,
		string(status), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, seen, classified, failures int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE collection_runs SET status = ?, items_seen = ?, items_classified = ?, failures = ?, finished_at = ?
		 WHERE id = ?`,
		string(status), seen, classified, failures, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.CollectionRun, error) {
	var r model.CollectionRun
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, items_seen, items_classified, failures, started_at, finished_at
		 FROM collection_runs WHERE id = ?`,
		runID,
	).Scan(&r.ID, &r.Status, &r.ItemsSeen, &r.ItemsClassified, &r.Failures, &r.StartedAt, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.CollectionRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, items_seen, items_classified, failures, started_at, finished_at
		 FROM collection_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.CollectionRun
	for rows.Next() {
		var r model.CollectionRun
		if err := rows.Scan(&r.ID, &r.Status, &r.ItemsSeen, &r.ItemsClassified, &r.Failures, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) InsertCost(ctx context.Context, c model.LLMCost) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_costs (id, run_id, operation, model, input_tokens, output_tokens, cost_usd, succeeded, ts)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		c.ID, c.RunID, c.Operation, c.Model, c.InputTokens, c.OutputTokens, c.CostUSD, c.Succeeded, c.Timestamp,
	)
	return eris.Wrap(err, "sqlite: insert cost")
}

func (s *SQLiteStore) RunCost(ctx context.Context, runID string) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM llm_costs WHERE run_id = ?`,
		runID,
	).Scan(&total)
	return total, eris.Wrapf(err, "sqlite: run cost %s", runID)
}

func (s *SQLiteStore) RecomputeDailyStats(ctx context.Context, from, to time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: recompute daily stats begin")
	}
	defer tx.Rollback() //nolint:errcheck

	fromDay := from.UTC().Format("2006-01-02")
	toDay := to.UTC().Format("2006-01-02")

	_, err = tx.ExecContext(ctx,
		`DELETE FROM daily_stats WHERE day >= ? AND day <= ?`,
		fromDay, toDay,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: clear daily stats")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO daily_stats (day, calls, tokens, cost_usd, pains_found)
		 SELECT c.day,
		        COALESCE(c.calls, 0),
		        COALESCE(c.tokens, 0),
		        COALESCE(c.cost_usd, 0),
		        COALESCE(p.pains_found, 0)
		 FROM (
		   SELECT date(ts) AS day, COUNT(*) AS calls,
		          SUM(input_tokens + output_tokens) AS tokens,
		          SUM(cost_usd) AS cost_usd
		   FROM llm_costs
		   WHERE date(ts) >= ? AND date(ts) <= ?
		   GROUP BY date(ts)
		 ) c
		 LEFT JOIN (
		   SELECT date(created_at) AS day, COUNT(*) AS pains_found
		   FROM pains
		   WHERE date(created_at) >= ? AND date(created_at) <= ?
		   GROUP BY date(created_at)
		 ) p ON p.day = c.day`,
		fromDay, toDay, fromDay, toDay,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert daily stats")
	}

	return eris.Wrap(tx.Commit(), "sqlite: recompute daily stats commit")
}

func (s *SQLiteStore) DailyStats(ctx context.Context, from, to time.Time) ([]model.DailyStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, calls, tokens, cost_usd, pains_found FROM daily_stats
		 WHERE day >= ? AND day <= ? ORDER BY day`,
		from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: daily stats")
	}
	defer rows.Close()

	var stats []model.DailyStat
	for rows.Next() {
		var d model.DailyStat
		var day string
		if err := rows.Scan(&day, &d.Calls, &d.Tokens, &d.CostUSD, &d.PainsFound); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan daily stat")
		}
		d.Day, err = time.Parse("2006-01-02", day)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse day")
		}
		stats = append(stats, d)
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: daily stats iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func sqlNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
