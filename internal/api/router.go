package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/Harshitk-cp/symstate/internal/api/handlers"
	mw "github.com/Harshitk-cp/symstate/internal/api/middleware"
	"github.com/Harshitk-cp/symstate/internal/buildconfig"
	"github.com/Harshitk-cp/symstate/internal/config"
	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/Harshitk-cp/symstate/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const rateLimitEvictEvery = 10 * time.Minute

// Options carries everything NewApp needs beyond the store.
type Options struct {
	Core           config.CoreOptions
	Embedder       domain.EmbeddingClient
	Tokens         service.TokenCounter
	Verifiers      []domain.Verifier
	MultiFramework bool
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
	FlushInterval  time.Duration
}

// App holds the router and the long-lived services for lifecycle management.
type App struct {
	Router  *chi.Mux
	Graph   *service.MemoryGraph
	Goals   *service.GoalTracker
	Proofs  *service.ProofEngine
	Flusher *service.FlushService
	Session *service.SessionService

	limiter   *mw.RateLimiter
	collector *mw.MetricsCollector
	logger    *zap.Logger
	startTime time.Time
}

func NewApp(store domain.StateStore, opts Options, logger *zap.Logger) (*App, error) {
	core := opts.Core

	// Services
	graph := service.NewMemoryGraph(opts.Embedder, service.MemoryGraphConfig{
		VerifiedBonus:   core.VerifiedBonus,
		ConfidenceFloor: core.ConfidenceFloor,
		RecencyDecay:    core.RecencyDecay,
		Tokens:          opts.Tokens,
	}, logger.Named("graph"))
	goals := service.NewGoalTracker(graph, core.ReviewInterval, logger.Named("goals"))
	proofs := service.NewProofEngine(graph, core.VerifierTimeout, logger.Named("proofs"))
	for _, v := range opts.Verifiers {
		if err := proofs.Register(v); err != nil {
			return nil, fmt.Errorf("register verifier: %w", err)
		}
	}
	flusher := service.NewFlushService(store, graph, goals, proofs, logger.Named("flush"))
	flusher.SetInterval(opts.FlushInterval)
	session := service.NewSessionService(graph, goals, proofs, flusher, service.SessionConfig{
		ContextBudget:   core.ContextBudget,
		VerifierTimeout: core.VerifierTimeout,
		TopK:            service.DefaultRetrieveTopK,
		MinSimilarity:   service.DefaultMinSimilarity,
		MultiFramework:  opts.MultiFramework,
	}, logger.Named("session"))

	// Handlers
	symbolHandler := handlers.NewSymbolHandler(graph, core.ContextBudget, opts.MultiFramework)
	goalHandler := handlers.NewGoalHandler(goals)
	proofHandler := handlers.NewProofHandler(proofs)
	sessionHandler := handlers.NewSessionHandler(session, logger)

	rps, burst := opts.RateLimitRPS, opts.RateLimitBurst
	if rps <= 0 {
		rps = config.RateLimitRPS()
	}
	if burst <= 0 {
		burst = config.RateLimitBurst()
	}

	r := chi.NewRouter()
	app := &App{
		Router:    r,
		Graph:     graph,
		Goals:     goals,
		Proofs:    proofs,
		Flusher:   flusher,
		Session:   session,
		limiter:   mw.NewRateLimiter(rps, burst),
		collector: mw.NewMetricsCollector(),
		logger:    logger,
		startTime: time.Now(),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.collector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(app.limiter.Middleware)

	// No auth
	r.Get("/health", app.healthHandler())
	r.Get("/stats", app.statsHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(opts.APIKey))

		r.Route("/symbols", func(r chi.Router) {
			r.Post("/", symbolHandler.Upsert)
			r.Get("/", symbolHandler.List)
			r.Get("/related", symbolHandler.Related)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", symbolHandler.Get)
				r.Get("/history", symbolHandler.History)
				r.Post("/supersede", symbolHandler.Supersede)
			})
		})
		r.Get("/context", symbolHandler.Context)
		r.Post("/snapshots", symbolHandler.Snapshot)
		r.Get("/snapshots", symbolHandler.Snapshots)

		r.Post("/values", goalHandler.CreateValue)
		r.Route("/goals", func(r chi.Router) {
			r.Post("/", goalHandler.CreateGoal)
			r.Get("/", goalHandler.List)
			r.Put("/{id}/progress", goalHandler.SetProgress)
		})
		r.Route("/targets", func(r chi.Router) {
			r.Post("/", goalHandler.CreateTarget)
			r.Route("/{id}", func(r chi.Router) {
				r.Put("/status", goalHandler.SetStatus)
				r.Post("/reviews", goalHandler.Review)
				r.Get("/lineage", goalHandler.Lineage)
			})
		})
		r.Get("/alignment", goalHandler.Alignment)
		r.Get("/evolution/{id}", goalHandler.Evolution)

		r.Route("/proofs", func(r chi.Router) {
			r.Post("/", proofHandler.Cache)
			r.Get("/", proofHandler.List)
			r.Post("/verify", proofHandler.Verify)
			r.Post("/invalidate", proofHandler.Invalidate)
			r.Get("/ancestry/{id}", proofHandler.Ancestry)
		})
		r.Get("/verifiers", proofHandler.Verifiers)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Post("/turns", sessionHandler.Turn)
			r.Post("/end", sessionHandler.End)
		})
	})

	return app, nil
}

// Start restores persisted state and launches the background workers.
func (app *App) Start(ctx context.Context) error {
	if err := app.Flusher.Restore(ctx); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	stats := app.Graph.Stats()
	app.logger.Info("state restored",
		zap.Int("symbols", stats.Symbols),
		zap.Int("snapshots", stats.Snapshots),
		zap.Int("goals", len(app.Goals.Goals())),
		zap.Int("proofs", len(app.Proofs.Entries())))

	app.Flusher.Start()
	app.limiter.Start(rateLimitEvictEvery)
	return nil
}

// Stop halts the workers. The flush worker writes once more before exiting.
func (app *App) Stop() {
	app.limiter.Stop()
	app.Flusher.Stop()
}

func (app *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		available := 0
		verifiers := app.Proofs.Verifiers()
		for _, v := range verifiers {
			if v.Available {
				available++
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":              "ok",
			"version":             buildconfig.Version(),
			"verifiers":           len(verifiers),
			"verifiers_available": available,
		})
	}
}

func (app *App) statsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		writeJSON(w, http.StatusOK, map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.collector.Requests(),
			"error_count":    app.collector.Errors(),
			"goroutines":     runtime.NumGoroutine(),
			"graph":          app.Graph.Stats(),
			"proof_entries":  len(app.Proofs.Entries()),
			"alignment":      len(app.Goals.CheckAlignment()),
			"memory": map[string]any{
				"alloc_mb": float64(memStats.Alloc) / 1024 / 1024,
				"sys_mb":   float64(memStats.Sys) / 1024 / 1024,
				"num_gc":   memStats.NumGC,
			},
			"build":      buildconfig.VersionInfo(),
			"go_version": runtime.Version(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
