// Package store persists crawl responses, drift scores, provenance, and run
// manifests behind a backend-agnostic interface. SQLite covers local runs;
// Postgres covers shared deployments.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/voxmetrics/sentinel/internal/model"
)

// Store defines the persistence interface for the consistency pipeline.
// All Save* batch methods insert with ON CONFLICT DO NOTHING keyed by the
// deterministic row ID and return the count of rows that were genuinely new.
// A duplicate is an idempotent skip, never an error.
type Store interface {
	// Responses
	SaveRaw(ctx context.Context, rows []model.ResponseRaw) (int64, error)
	SaveNormalized(ctx context.Context, rows []model.ResponseNormalized) (int64, error)
	GetNormalized(ctx context.Context, id string) (*model.ResponseNormalized, error)
	// LatestAnswer returns the most recent valid normalized answer for a
	// combo, or nil when none exists. Used to warm drift baselines on restart.
	LatestAnswer(ctx context.Context, combo model.Combo) (*model.ResponseNormalized, error)

	// Drift
	SaveDriftScores(ctx context.Context, scores []model.DriftScore) error
	ListDriftScores(ctx context.Context, limit int) ([]model.DriftScore, error)

	// Provenance
	SaveProvenance(ctx context.Context, recs []model.Provenance) (int64, error)

	// Manifests and observations (checkpoint persistence)
	SaveManifest(ctx context.Context, m model.RunManifest) error
	SaveObservations(ctx context.Context, obs []model.Observation) error
	GetManifest(ctx context.Context, runID string) (*model.RunManifest, error)
	GetObservations(ctx context.Context, runID string) ([]model.Observation, error)
	ListManifests(ctx context.Context, limit int) ([]model.RunManifest, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs a Store from driver name and connection string.
// Supported drivers are "sqlite" and "postgres".
func Open(ctx context.Context, driver, databaseURL string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(databaseURL)
	case "postgres":
		return NewPostgres(ctx, databaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
