package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voxmetrics/sentinel/internal/portfolio"
	"github.com/voxmetrics/sentinel/internal/ratelimit"
	"github.com/voxmetrics/sentinel/internal/registry"
	"github.com/voxmetrics/sentinel/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run history and health scores over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the HTTP surface. All /v1 routes sit behind the tiered
// rate limiter; /healthz stays open for probes.
func newRouter(st store.Store) http.Handler {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore())

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Tier"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiter, ratelimit.DefaultKeyTier))

		r.Get("/mii", handleMII(st))
		r.Get("/portfolio", handlePortfolio())
		r.Get("/runs", handleRuns(st))
		r.Get("/runs/{runID}", handleRun(st))
	})

	return r
}

func handleMII(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := reportForRun(r.Context(), st, r.URL.Query().Get("run"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handlePortfolio() http.HandlerFunc {
	mgr := portfolio.NewManager(portfolio.Config{
		CoverageTarget:    cfg.Portfolio.CoverageTarget,
		CostCeilingPer1K:  cfg.Portfolio.CostCeilingPer1K,
		PrimaryCostPer1K:  cfg.Portfolio.PrimaryCostPer1K,
		FallbackCostPer1K: cfg.Portfolio.FallbackCostPer1K,
	})
	return func(w http.ResponseWriter, _ *http.Request) {
		analysis := mgr.Analyze(registry.Discover(), 1.0, nil)
		writeJSON(w, http.StatusOK, analysis)
	}
}

func handleRuns(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := st.ListManifests(r.Context(), 50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleRun(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runID")
		man, err := st.GetManifest(r.Context(), runID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		obs, err := st.GetObservations(r.Context(), runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"manifest":     man,
			"observations": obs,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
