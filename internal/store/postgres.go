package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/voxmetrics/sentinel/internal/db"
	"github.com/voxmetrics/sentinel/internal/model"
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

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"get_manifest":     `SELECT run_id, window_start, window_end, target_combos, min_floor, target_coverage, observed_ok, observed_fail, coverage, tier, status, created_at, closed_at FROM manifests WHERE run_id = $1`,
	"get_observations": `SELECT run_id, subject, prompt_id, model, status, attempts, last_error, latency_ms, response_id FROM observations WHERE run_id = $1 ORDER BY subject, prompt_id, model`,
	"get_normalized":   `SELECT id, subject, prompt_id, model, ts, answer, confidence, citations, status, raw_ref FROM responses_normalized WHERE id = $1`,
	"latest_answer":    `SELECT id, subject, prompt_id, model, ts, answer, confidence, citations, status, raw_ref FROM responses_normalized WHERE subject = $1 AND prompt_id = $2 AND model = $3 AND status = $4 ORDER BY ts DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
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

	// Prepare hot-path statements on each new connection.
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

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS responses_raw (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	prompt_id  TEXT NOT NULL,
	model      TEXT NOT NULL,
	ts         TIMESTAMPTZ NOT NULL,
	raw        TEXT NOT NULL,
	status     TEXT NOT NULL,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	attempt    INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS responses_normalized (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	prompt_id  TEXT NOT NULL,
	model      TEXT NOT NULL,
	ts         TIMESTAMPTZ NOT NULL,
	answer     TEXT NOT NULL,
	confidence DOUBLE PRECISION,
	citations  JSONB NOT NULL DEFAULT '[]',
	status     TEXT NOT NULL,
	raw_ref    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS drift_scores (
	drift_id        TEXT PRIMARY KEY,
	subject         TEXT NOT NULL,
	prompt_id       TEXT NOT NULL,
	model           TEXT NOT NULL,
	ts              TIMESTAMPTZ NOT NULL,
	similarity_prev DOUBLE PRECISION NOT NULL,
	drift           DOUBLE PRECISION NOT NULL,
	status          TEXT NOT NULL,
	explanation     TEXT
);

CREATE TABLE IF NOT EXISTS provenance (
	response_id    TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL,
	subject        TEXT NOT NULL,
	prompt_id      TEXT NOT NULL,
	prompt_version TEXT NOT NULL,
	model          TEXT NOT NULL,
	checksum       TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS manifests (
	run_id          TEXT PRIMARY KEY,
	window_start    TIMESTAMPTZ NOT NULL,
	window_end      TIMESTAMPTZ NOT NULL,
	target_combos   INTEGER NOT NULL,
	min_floor       DOUBLE PRECISION NOT NULL,
	target_coverage DOUBLE PRECISION NOT NULL,
	observed_ok     INTEGER NOT NULL DEFAULT 0,
	observed_fail   INTEGER NOT NULL DEFAULT 0,
	coverage        DOUBLE PRECISION NOT NULL DEFAULT 0,
	tier            TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'open',
	created_at      TIMESTAMPTZ NOT NULL,
	closed_at       TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS observations (
	run_id      TEXT NOT NULL REFERENCES manifests(run_id),
	subject     TEXT NOT NULL,
	prompt_id   TEXT NOT NULL,
	model       TEXT NOT NULL,
	status      TEXT NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT,
	latency_ms  INTEGER NOT NULL DEFAULT 0,
	response_id TEXT,
	PRIMARY KEY (run_id, subject, prompt_id, model)
);

CREATE INDEX IF NOT EXISTS idx_raw_combo_ts ON responses_raw(subject, prompt_id, model, ts);
CREATE INDEX IF NOT EXISTS idx_norm_combo_ts ON responses_normalized(subject, prompt_id, model, ts DESC);
CREATE INDEX IF NOT EXISTS idx_drift_ts ON drift_scores(ts);
CREATE INDEX IF NOT EXISTS idx_provenance_run ON provenance(run_id);
CREATE INDEX IF NOT EXISTS idx_observations_run ON observations(run_id);
CREATE INDEX IF NOT EXISTS idx_manifests_created ON manifests(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
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

var rawColumns = []string{"id", "subject", "prompt_id", "model", "ts", "raw", "status", "latency_ms", "attempt"}

func (s *PostgresStore) SaveRaw(ctx context.Context, rows []model.ResponseRaw) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		values = append(values, []any{r.ID, r.Subject, r.PromptID, r.Model, r.TS.UTC(), r.Raw, string(r.Status), r.LatencyMS, r.Attempt})
	}

	n, err := db.BulkInsert(ctx, s.pool, db.BulkInsertConfig{
		Table:        "responses_raw",
		Columns:      rawColumns,
		ConflictKeys: []string{"id"},
		DoNothing:    true,
	}, values)
	return n, eris.Wrap(err, "postgres: save raw")
}

var normalizedColumns = []string{"id", "subject", "prompt_id", "model", "ts", "answer", "confidence", "citations", "status", "raw_ref"}

func (s *PostgresStore) SaveNormalized(ctx context.Context, rows []model.ResponseNormalized) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		citations, err := json.Marshal(r.Citations)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal citations %s", r.ID)
		}
		values = append(values, []any{r.ID, r.Subject, r.PromptID, r.Model, r.TS.UTC(), r.Answer, r.Confidence, citations, string(r.Status), r.RawRef})
	}

	n, err := db.BulkInsert(ctx, s.pool, db.BulkInsertConfig{
		Table:        "responses_normalized",
		Columns:      normalizedColumns,
		ConflictKeys: []string{"id"},
		DoNothing:    true,
	}, values)
	return n, eris.Wrap(err, "postgres: save normalized")
}

func (s *PostgresStore) GetNormalized(ctx context.Context, id string) (*model.ResponseNormalized, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, subject, prompt_id, model, ts, answer, confidence, citations, status, raw_ref
		 FROM responses_normalized WHERE id = $1`,
		id,
	)
	return scanNormalizedPgx(row)
}

func (s *PostgresStore) LatestAnswer(ctx context.Context, combo model.Combo) (*model.ResponseNormalized, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, subject, prompt_id, model, ts, answer, confidence, citations, status, raw_ref
		 FROM responses_normalized
		 WHERE subject = $1 AND prompt_id = $2 AND model = $3 AND status = $4
		 ORDER BY ts DESC LIMIT 1`,
		combo.Subject, combo.PromptID, combo.Model, string(model.NormalizedValid),
	)
	return scanNormalizedPgx(row)
}

var driftColumns = []string{"drift_id", "subject", "prompt_id", "model", "ts", "similarity_prev", "drift", "status", "explanation"}

func (s *PostgresStore) SaveDriftScores(ctx context.Context, scores []model.DriftScore) error {
	if len(scores) == 0 {
		return nil
	}

	values := make([][]any, 0, len(scores))
	for _, d := range scores {
		values = append(values, []any{d.DriftID, d.Subject, d.PromptID, d.Model, d.TS.UTC(), d.SimilarityPrev, d.Drift, string(d.Status), d.Explanation})
	}

	// Drift scores carry fresh IDs per detection pass, so plain COPY is safe.
	_, err := db.CopyFrom(ctx, s.pool, "drift_scores", driftColumns, values)
	return eris.Wrap(err, "postgres: save drift scores")
}

func (s *PostgresStore) ListDriftScores(ctx context.Context, limit int) ([]model.DriftScore, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT drift_id, subject, prompt_id, model, ts, similarity_prev, drift, status, explanation
		 FROM drift_scores ORDER BY ts DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list drift scores")
	}
	defer rows.Close()

	var out []model.DriftScore
	for rows.Next() {
		var d model.DriftScore
		var explanation *string
		if err := rows.Scan(&d.DriftID, &d.Subject, &d.PromptID, &d.Model, &d.TS, &d.SimilarityPrev, &d.Drift, &d.Status, &explanation); err != nil {
			return nil, eris.Wrap(err, "postgres: scan drift score")
		}
		if explanation != nil {
			d.Explanation = *explanation
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list drift scores iterate")
}

var provenanceColumns = []string{"response_id", "run_id", "subject", "prompt_id", "prompt_version", "model", "checksum", "created_at"}

func (s *PostgresStore) SaveProvenance(ctx context.Context, recs []model.Provenance) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	values := make([][]any, 0, len(recs))
	for _, p := range recs {
		values = append(values, []any{p.ResponseID, p.RunID, p.Subject, p.PromptID, p.PromptVersion, p.Model, p.Checksum, p.CreatedAt.UTC()})
	}

	n, err := db.BulkInsert(ctx, s.pool, db.BulkInsertConfig{
		Table:        "provenance",
		Columns:      provenanceColumns,
		ConflictKeys: []string{"response_id"},
		DoNothing:    true,
	}, values)
	return n, eris.Wrap(err, "postgres: save provenance")
}

func (s *PostgresStore) SaveManifest(ctx context.Context, m model.RunManifest) error {
	var closedAt *time.Time
	if m.ClosedAt != nil {
		t := m.ClosedAt.UTC()
		closedAt = &t
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO manifests (run_id, window_start, window_end, target_combos, min_floor, target_coverage,
		                        observed_ok, observed_fail, coverage, tier, status, created_at, closed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (run_id) DO UPDATE SET
		   observed_ok = EXCLUDED.observed_ok,
		   observed_fail = EXCLUDED.observed_fail,
		   coverage = EXCLUDED.coverage,
		   tier = EXCLUDED.tier,
		   status = EXCLUDED.status,
		   closed_at = EXCLUDED.closed_at`,
		m.RunID, m.WindowStart.UTC(), m.WindowEnd.UTC(), m.TargetCombos, m.MinFloor, m.TargetCoverage,
		m.ObservedOK, m.ObservedFail, m.Coverage, string(m.Tier), string(m.Status), m.CreatedAt.UTC(), closedAt,
	)
	return eris.Wrapf(err, "postgres: save manifest %s", m.RunID)
}

var observationColumns = []string{"run_id", "subject", "prompt_id", "model", "status", "attempts", "last_error", "latency_ms", "response_id"}

func (s *PostgresStore) SaveObservations(ctx context.Context, obs []model.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	values := make([][]any, 0, len(obs))
	for _, o := range obs {
		values = append(values, []any{o.RunID, o.Subject, o.PromptID, o.Model, string(o.Status), o.Attempts, o.LastError, o.LatencyMS, o.ResponseID})
	}

	_, err := db.BulkInsert(ctx, s.pool, db.BulkInsertConfig{
		Table:        "observations",
		Columns:      observationColumns,
		ConflictKeys: []string{"run_id", "subject", "prompt_id", "model"},
	}, values)
	return eris.Wrap(err, "postgres: save observations")
}

func (s *PostgresStore) GetManifest(ctx context.Context, runID string) (*model.RunManifest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT run_id, window_start, window_end, target_combos, min_floor, target_coverage,
		        observed_ok, observed_fail, coverage, tier, status, created_at, closed_at
		 FROM manifests WHERE run_id = $1`,
		runID,
	)

	var m model.RunManifest
	var closedAt *time.Time
	err := row.Scan(&m.RunID, &m.WindowStart, &m.WindowEnd, &m.TargetCombos, &m.MinFloor, &m.TargetCoverage,
		&m.ObservedOK, &m.ObservedFail, &m.Coverage, &m.Tier, &m.Status, &m.CreatedAt, &closedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("manifest not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get manifest %s", runID)
	}
	m.ClosedAt = closedAt
	return &m, nil
}

func (s *PostgresStore) ListManifests(ctx context.Context, limit int) ([]model.RunManifest, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, window_start, window_end, target_combos, min_floor, target_coverage,
		        observed_ok, observed_fail, coverage, tier, status, created_at, closed_at
		 FROM manifests ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list manifests")
	}
	defer rows.Close()

	var out []model.RunManifest
	for rows.Next() {
		var m model.RunManifest
		var closedAt *time.Time
		if err := rows.Scan(&m.RunID, &m.WindowStart, &m.WindowEnd, &m.TargetCombos, &m.MinFloor, &m.TargetCoverage,
			&m.ObservedOK, &m.ObservedFail, &m.Coverage, &m.Tier, &m.Status, &m.CreatedAt, &closedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan manifest")
		}
		m.ClosedAt = closedAt
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list manifests iterate")
}

func (s *PostgresStore) GetObservations(ctx context.Context, runID string) ([]model.Observation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, subject, prompt_id, model, status, attempts, last_error, latency_ms, response_id
		 FROM observations WHERE run_id = $1 ORDER BY subject, prompt_id, model`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get observations %s", runID)
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		var o model.Observation
		var lastError, responseID *string
		if err := rows.Scan(&o.RunID, &o.Subject, &o.PromptID, &o.Model, &o.Status, &o.Attempts, &lastError, &o.LatencyMS, &responseID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		if lastError != nil {
			o.LastError = *lastError
		}
		if responseID != nil {
			o.ResponseID = *responseID
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get observations iterate")
}

func scanNormalizedPgx(row pgx.Row) (*model.ResponseNormalized, error) {
	var r model.ResponseNormalized
	var citations []byte

	err := row.Scan(&r.ID, &r.Subject, &r.PromptID, &r.Model, &r.TS, &r.Answer, &r.Confidence, &citations, &r.Status, &r.RawRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan normalized")
	}

	if err := json.Unmarshal(citations, &r.Citations); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal citations")
	}
	return &r, nil
}
