package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/voxmetrics/sentinel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS responses_raw (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	prompt_id  TEXT NOT NULL,
	model      TEXT NOT NULL,
	ts         DATETIME NOT NULL,
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
	ts         DATETIME NOT NULL,
	answer     TEXT NOT NULL,
	confidence REAL,
	citations  TEXT NOT NULL DEFAULT '[]',
	status     TEXT NOT NULL,
	raw_ref    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS drift_scores (
	drift_id        TEXT PRIMARY KEY,
	subject         TEXT NOT NULL,
	prompt_id       TEXT NOT NULL,
	model           TEXT NOT NULL,
	ts              DATETIME NOT NULL,
	similarity_prev REAL NOT NULL,
	drift           REAL NOT NULL,
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
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS manifests (
	run_id          TEXT PRIMARY KEY,
	window_start    DATETIME NOT NULL,
	window_end      DATETIME NOT NULL,
	target_combos   INTEGER NOT NULL,
	min_floor       REAL NOT NULL,
	target_coverage REAL NOT NULL,
	observed_ok     INTEGER NOT NULL DEFAULT 0,
	observed_fail   INTEGER NOT NULL DEFAULT 0,
	coverage        REAL NOT NULL DEFAULT 0,
	tier            TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'open',
	created_at      DATETIME NOT NULL,
	closed_at       DATETIME
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
CREATE INDEX IF NOT EXISTS idx_norm_combo_ts ON responses_normalized(subject, prompt_id, model, ts);
CREATE INDEX IF NOT EXISTS idx_drift_ts ON drift_scores(ts);
CREATE INDEX IF NOT EXISTS idx_provenance_run ON provenance(run_id);
CREATE INDEX IF NOT EXISTS idx_observations_run ON observations(run_id);
CREATE INDEX IF NOT EXISTS idx_manifests_created ON manifests(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRaw(ctx context.Context, rows []model.ResponseRaw) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	var inserted int64
	for _, r := range rows {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO responses_raw (id, subject, prompt_id, model, ts, raw, status, latency_ms, attempt)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			r.ID, r.Subject, r.PromptID, r.Model, r.TS.UTC(), r.Raw, string(r.Status), r.LatencyMS, r.Attempt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert raw %s", r.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit raw")
	}
	return inserted, nil
}

func (s *SQLiteStore) SaveNormalized(ctx context.Context, rows []model.ResponseNormalized) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	var inserted int64
	for _, r := range rows {
		citations, err := json.Marshal(r.Citations)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal citations %s", r.ID)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO responses_normalized (id, subject, prompt_id, model, ts, answer, confidence, citations, status, raw_ref)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			r.ID, r.Subject, r.PromptID, r.Model, r.TS.UTC(), r.Answer, r.Confidence, string(citations), string(r.Status), r.RawRef,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert normalized %s", r.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit normalized")
	}
	return inserted, nil
}

func (s *SQLiteStore) GetNormalized(ctx context.Context, id string) (*model.ResponseNormalized, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, subject, prompt_id, model, ts, answer, confidence, citations, status, raw_ref
		 FROM responses_normalized WHERE id = ?`,
		id,
	)
	return scanNormalized(row)
}

func (s *SQLiteStore) LatestAnswer(ctx context.Context, combo model.Combo) (*model.ResponseNormalized, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, subject, prompt_id, model, ts, answer, confidence, citations, status, raw_ref
		 FROM responses_normalized
		 WHERE subject = ? AND prompt_id = ? AND model = ? AND status = ?
		 ORDER BY ts DESC LIMIT 1`,
		combo.Subject, combo.PromptID, combo.Model, string(model.NormalizedValid),
	)
	return scanNormalized(row)
}

func (s *SQLiteStore) SaveDriftScores(ctx context.Context, scores []model.DriftScore) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	for _, d := range scores {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO drift_scores (drift_id, subject, prompt_id, model, ts, similarity_prev, drift, status, explanation)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(drift_id) DO NOTHING`,
			d.DriftID, d.Subject, d.PromptID, d.Model, d.TS.UTC(), d.SimilarityPrev, d.Drift, string(d.Status), d.Explanation,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert drift score %s", d.DriftID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit drift scores")
}

func (s *SQLiteStore) ListDriftScores(ctx context.Context, limit int) ([]model.DriftScore, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT drift_id, subject, prompt_id, model, ts, similarity_prev, drift, status, explanation
		 FROM drift_scores ORDER BY ts DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list drift scores")
	}
	defer rows.Close()

	var out []model.DriftScore
	for rows.Next() {
		var d model.DriftScore
		var explanation sql.NullString
		if err := rows.Scan(&d.DriftID, &d.Subject, &d.PromptID, &d.Model, &d.TS, &d.SimilarityPrev, &d.Drift, &d.Status, &explanation); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan drift score")
		}
		d.Explanation = explanation.String
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list drift scores iterate")
}

func (s *SQLiteStore) SaveProvenance(ctx context.Context, recs []model.Provenance) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	var inserted int64
	for _, p := range recs {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO provenance (response_id, run_id, subject, prompt_id, prompt_version, model, checksum, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(response_id) DO NOTHING`,
			p.ResponseID, p.RunID, p.Subject, p.PromptID, p.PromptVersion, p.Model, p.Checksum, p.CreatedAt.UTC(),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert provenance %s", p.ResponseID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit provenance")
	}
	return inserted, nil
}

func (s *SQLiteStore) SaveManifest(ctx context.Context, m model.RunManifest) error {
	var closedAt any
	if m.ClosedAt != nil {
		closedAt = m.ClosedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO manifests (run_id, window_start, window_end, target_combos, min_floor, target_coverage,
		                        observed_ok, observed_fail, coverage, tier, status, created_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   observed_ok = excluded.observed_ok,
		   observed_fail = excluded.observed_fail,
		   coverage = excluded.coverage,
		   tier = excluded.tier,
		   status = excluded.status,
		   closed_at = excluded.closed_at`,
		m.RunID, m.WindowStart.UTC(), m.WindowEnd.UTC(), m.TargetCombos, m.MinFloor, m.TargetCoverage,
		m.ObservedOK, m.ObservedFail, m.Coverage, string(m.Tier), string(m.Status), m.CreatedAt.UTC(), closedAt,
	)
	return eris.Wrapf(err, "sqlite: save manifest %s", m.RunID)
}

func (s *SQLiteStore) SaveObservations(ctx context.Context, obs []model.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	for _, o := range obs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO observations (run_id, subject, prompt_id, model, status, attempts, last_error, latency_ms, response_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(run_id, subject, prompt_id, model) DO UPDATE SET
			   status = excluded.status,
			   attempts = excluded.attempts,
			   last_error = excluded.last_error,
			   latency_ms = excluded.latency_ms,
			   response_id = excluded.response_id`,
			o.RunID, o.Subject, o.PromptID, o.Model, string(o.Status), o.Attempts, o.LastError, o.LatencyMS, o.ResponseID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: save observation %s/%s", o.RunID, o.Subject)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit observations")
}

func (s *SQLiteStore) GetManifest(ctx context.Context, runID string) (*model.RunManifest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, window_start, window_end, target_combos, min_floor, target_coverage,
		        observed_ok, observed_fail, coverage, tier, status, created_at, closed_at
		 FROM manifests WHERE run_id = ?`,
		runID,
	)
	return scanManifest(row)
}

func (s *SQLiteStore) ListManifests(ctx context.Context, limit int) ([]model.RunManifest, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, window_start, window_end, target_combos, min_floor, target_coverage,
		        observed_ok, observed_fail, coverage, tier, status, created_at, closed_at
		 FROM manifests ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list manifests")
	}
	defer rows.Close()

	var out []model.RunManifest
	for rows.Next() {
		m, err := scanManifest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list manifests iterate")
}

func (s *SQLiteStore) GetObservations(ctx context.Context, runID string) ([]model.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, subject, prompt_id, model, status, attempts, last_error, latency_ms, response_id
		 FROM observations WHERE run_id = ? ORDER BY subject, prompt_id, model`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get observations %s", runID)
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		var o model.Observation
		var lastError, responseID sql.NullString
		if err := rows.Scan(&o.RunID, &o.Subject, &o.PromptID, &o.Model, &o.Status, &o.Attempts, &lastError, &o.LatencyMS, &responseID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		o.LastError = lastError.String
		o.ResponseID = responseID.String
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get observations iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanNormalized(row scannable) (*model.ResponseNormalized, error) {
	var r model.ResponseNormalized
	var citationsJSON string

	err := row.Scan(&r.ID, &r.Subject, &r.PromptID, &r.Model, &r.TS, &r.Answer, &r.Confidence, &citationsJSON, &r.Status, &r.RawRef)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan normalized")
	}

	if err := json.Unmarshal([]byte(citationsJSON), &r.Citations); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal citations")
	}
	return &r, nil
}

func scanManifest(row scannable) (*model.RunManifest, error) {
	var m model.RunManifest
	var closedAt sql.NullTime

	err := row.Scan(&m.RunID, &m.WindowStart, &m.WindowEnd, &m.TargetCombos, &m.MinFloor, &m.TargetCoverage,
		&m.ObservedOK, &m.ObservedFail, &m.Coverage, &m.Tier, &m.Status, &m.CreatedAt, &closedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("manifest not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan manifest")
	}

	if closedAt.Valid {
		t := closedAt.Time
		m.ClosedAt = &t
	}
	return &m, nil
}
