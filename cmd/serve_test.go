//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxmetrics/sentinel/internal/config"
	"github.com/voxmetrics/sentinel/internal/model"
	"github.com/voxmetrics/sentinel/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()

	cfg = &config.Config{}

	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s", filepath.Join(t.TempDir(), "serve_test.db"))
	st, err := store.Open(ctx, "sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	return newRouter(st), st
}

func TestRouter_Healthz(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])

	// Health probes bypass the limiter.
	assert.Empty(t, rr.Header().Get("X-RateLimit-Tier"))
}

func TestRouter_RunsEmpty(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	req.RemoteAddr = "10.0.0.1:50000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "free", rr.Header().Get("X-RateLimit-Tier"))
	assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Remaining"))
}

func TestRouter_RunNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/missing-run", nil)
	req.RemoteAddr = "10.0.0.1:50000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "not found")
}

func TestRouter_RunFound(t *testing.T) {
	router, st := newTestRouter(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	man := model.RunManifest{
		RunID:          "run-serve-1",
		WindowStart:    now.Add(-time.Hour),
		WindowEnd:      now,
		TargetCombos:   6,
		MinFloor:       0.5,
		TargetCoverage: 0.95,
		ObservedOK:     6,
		Coverage:       1.0,
		Tier:           model.TierHealthy,
		Status:         model.ManifestClosed,
		CreatedAt:      now,
	}
	require.NoError(t, st.SaveManifest(ctx, man))

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run-serve-1", nil)
	req.RemoteAddr = "10.0.0.1:50000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Manifest     model.RunManifest   `json:"manifest"`
		Observations []model.Observation `json:"observations"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "run-serve-1", body.Manifest.RunID)
	assert.Equal(t, model.TierHealthy, body.Manifest.Tier)
	assert.Empty(t, body.Observations)
}

func TestRouter_MIINoRuns(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/mii", nil)
	req.RemoteAddr = "10.0.0.1:50000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "no runs")
}

func TestRouter_MIIForClosedRun(t *testing.T) {
	router, st := newTestRouter(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.SaveManifest(ctx, model.RunManifest{
		RunID:          "run-serve-2",
		WindowStart:    now.Add(-time.Hour),
		WindowEnd:      now,
		TargetCombos:   4,
		MinFloor:       0.5,
		TargetCoverage: 0.95,
		ObservedOK:     4,
		Coverage:       1.0,
		Tier:           model.TierHealthy,
		Status:         model.ManifestClosed,
		CreatedAt:      now,
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/mii?run=run-serve-2", nil)
	req.RemoteAddr = "10.0.0.1:50000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body, "mii_score")
	assert.Contains(t, body, "health_status")
}

func TestRouter_Portfolio(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/portfolio", nil)
	req.RemoteAddr = "10.0.0.1:50000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body, "metrics")
}
