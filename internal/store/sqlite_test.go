package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxmetrics/sentinel/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRaw(id string, ts time.Time) model.ResponseRaw {
	return model.ResponseRaw{
		ID:        id,
		Subject:   "acme.com",
		PromptID:  "brand_rep",
		Model:     "claude-sonnet-4-5",
		TS:        ts,
		Raw:       `{"answer":"Acme makes anvils."}`,
		Status:    model.ResponseSuccess,
		LatencyMS: 840,
		Attempt:   1,
	}
}

func testNormalized(id string, ts time.Time, answer string) model.ResponseNormalized {
	conf := 0.9
	return model.ResponseNormalized{
		ID:         id,
		Subject:    "acme.com",
		PromptID:   "brand_rep",
		Model:      "claude-sonnet-4-5",
		TS:         ts,
		Answer:     answer,
		Confidence: &conf,
		Citations:  []string{"https://acme.com/about"},
		Status:     model.NormalizedValid,
		RawRef:     id,
	}
}

func testManifest(runID string) model.RunManifest {
	now := time.Now().UTC().Truncate(time.Second)
	return model.RunManifest{
		RunID:          runID,
		WindowStart:    now.Add(-time.Hour),
		WindowEnd:      now,
		TargetCombos:   10,
		MinFloor:       0.70,
		TargetCoverage: 0.95,
		Status:         model.ManifestOpen,
		CreatedAt:      now,
	}
}

// --- Responses ---

func TestSQLite_SaveRaw_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	rows := []model.ResponseRaw{testRaw("raw-1", ts), testRaw("raw-2", ts)}
	n, err := st.SaveRaw(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Replaying the same batch inserts nothing and returns no error.
	n, err = st.SaveRaw(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSQLite_SaveRaw_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	n, err := st.SaveRaw(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSQLite_SaveNormalized_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	row := testNormalized("norm-1", ts, "Acme makes anvils.")
	n, err := st.SaveNormalized(ctx, []model.ResponseNormalized{row})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := st.GetNormalized(ctx, "norm-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, row.Answer, got.Answer)
	assert.Equal(t, row.Citations, got.Citations)
	assert.Equal(t, model.NormalizedValid, got.Status)
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 0.9, *got.Confidence, 1e-9)
	assert.WithinDuration(t, ts, got.TS, time.Second)
}

func TestSQLite_GetNormalized_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetNormalized(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_SaveNormalized_NilConfidence(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	row := testNormalized("norm-nil", time.Now().UTC(), "plain answer")
	row.Confidence = nil
	_, err := st.SaveNormalized(ctx, []model.ResponseNormalized{row})
	require.NoError(t, err)

	got, err := st.GetNormalized(ctx, "norm-nil")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Confidence)
}

func TestSQLite_LatestAnswer(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	older := testNormalized("norm-old", base, "old answer")
	newer := testNormalized("norm-new", base.Add(30*time.Minute), "new answer")
	malformed := testNormalized("norm-bad", base.Add(45*time.Minute), "garbage")
	malformed.Status = model.NormalizedMalformed

	_, err := st.SaveNormalized(ctx, []model.ResponseNormalized{older, newer, malformed})
	require.NoError(t, err)

	got, err := st.LatestAnswer(ctx, model.Combo{Subject: "acme.com", PromptID: "brand_rep", Model: "claude-sonnet-4-5"})
	require.NoError(t, err)
	require.NotNil(t, got)
	// The malformed row is newer but only valid rows qualify.
	assert.Equal(t, "new answer", got.Answer)
}

func TestSQLite_LatestAnswer_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.LatestAnswer(context.Background(), model.Combo{Subject: "unknown.com", PromptID: "p", Model: "m"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

// --- Drift ---

func TestSQLite_DriftScores(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	scores := []model.DriftScore{
		{DriftID: "d1", Subject: "acme.com", PromptID: "brand_rep", Model: "m", TS: now.Add(-time.Minute), SimilarityPrev: 0.95, Drift: 0.05, Status: model.DriftStable, Explanation: "answer consistent with prior observation"},
		{DriftID: "d2", Subject: "acme.com", PromptID: "brand_rep", Model: "m", TS: now, SimilarityPrev: 0.2, Drift: 0.8, Status: model.DriftDecayed, Explanation: "answer no longer resembles prior observation"},
	}
	require.NoError(t, st.SaveDriftScores(ctx, scores))

	got, err := st.ListDriftScores(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Newest first.
	assert.Equal(t, "d2", got[0].DriftID)
	assert.Equal(t, model.DriftDecayed, got[0].Status)
	assert.InDelta(t, 0.8, got[0].Drift, 1e-9)
}

// --- Provenance ---

func TestSQLite_Provenance_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	recs := []model.Provenance{{
		ResponseID:    "raw-1",
		RunID:         "run-1",
		Subject:       "acme.com",
		PromptID:      "brand_rep",
		PromptVersion: "1.2.0",
		Model:         "claude-sonnet-4-5",
		Checksum:      "abc123",
		CreatedAt:     time.Now().UTC(),
	}}
	n, err := st.SaveProvenance(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = st.SaveProvenance(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

// --- Manifests and observations ---

func TestSQLite_Manifest_UpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	m := testManifest("run-1")
	require.NoError(t, st.SaveManifest(ctx, m))

	got, err := st.GetManifest(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.TargetCombos)
	assert.Equal(t, model.ManifestOpen, got.Status)
	assert.Nil(t, got.ClosedAt)

	// Close the run and save again; the same row updates in place.
	closed := time.Now().UTC().Truncate(time.Second)
	m.ObservedOK = 9
	m.Coverage = 0.9
	m.Tier = model.TierDegraded
	m.Status = model.ManifestClosed
	m.ClosedAt = &closed
	require.NoError(t, st.SaveManifest(ctx, m))

	got, err = st.GetManifest(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 9, got.ObservedOK)
	assert.Equal(t, model.TierDegraded, got.Tier)
	assert.Equal(t, model.ManifestClosed, got.Status)
	require.NotNil(t, got.ClosedAt)
	assert.WithinDuration(t, closed, *got.ClosedAt, time.Second)
}

func TestSQLite_GetManifest_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetManifest(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest not found")
}

func TestSQLite_Observations_Upsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveManifest(ctx, testManifest("run-1")))

	obs := model.Observation{
		RunID:    "run-1",
		Subject:  "acme.com",
		PromptID: "brand_rep",
		Model:    "claude-sonnet-4-5",
		Status:   model.ObservationRunning,
		Attempts: 1,
	}
	require.NoError(t, st.SaveObservations(ctx, []model.Observation{obs}))

	obs.Status = model.ObservationSuccess
	obs.ResponseID = "raw-1"
	obs.LatencyMS = 840
	require.NoError(t, st.SaveObservations(ctx, []model.Observation{obs}))

	got, err := st.GetObservations(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.ObservationSuccess, got[0].Status)
	assert.Equal(t, "raw-1", got[0].ResponseID)
	assert.Equal(t, 840, got[0].LatencyMS)
}

func TestSQLite_ListManifests_NewestFirst(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		m := testManifest(id)
		m.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		require.NoError(t, st.SaveManifest(ctx, m))
	}

	got, err := st.ListManifests(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run-c", got[0].RunID)
	assert.Equal(t, "run-b", got[1].RunID)
}
