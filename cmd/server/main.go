package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/symstate/internal/api"
	"github.com/Harshitk-cp/symstate/internal/buildconfig"
	"github.com/Harshitk-cp/symstate/internal/config"
	"github.com/Harshitk-cp/symstate/internal/embedding"
	"github.com/Harshitk-cp/symstate/internal/service"
	"github.com/Harshitk-cp/symstate/internal/store"
	"github.com/Harshitk-cp/symstate/internal/verifier"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	core, err := config.Core()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx := context.Background()

	st, err := store.Open(ctx, core.SnapshotBackend, store.Options{MaxRetries: config.PersistMaxRetries()}, logger.Named("store"))
	if err != nil {
		logger.Fatal("failed to open state store", zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	embedder, err := embedding.NewClient(config.EmbeddingProvider(), config.OpenAIAPIKey(), config.EmbeddingDimensions())
	if err != nil {
		logger.Warn("embedding client initialization failed, retrieval uses relations only",
			zap.String("provider", config.EmbeddingProvider()), zap.Error(err))
	} else {
		logger.Info("embedding client initialized", zap.String("provider", config.EmbeddingProvider()))
	}

	tokens, err := service.NewTokenCounter(config.Tokenizer())
	if err != nil {
		logger.Fatal("failed to load tokenizer", zap.String("tokenizer", config.Tokenizer()), zap.Error(err))
	}

	verifiers := verifier.Build(verifier.Options{
		Enabled:   core.EnabledVerifiers,
		Z3Path:    config.Z3Path(),
		LeanPath:  config.LeanPath(),
		External:  config.ExternalVerifiers(),
		FactLimit: config.DatalogFactLimit(),
	}, logger.Named("verifier"))

	app, err := api.NewApp(st, api.Options{
		Core:           core,
		Embedder:       embedder,
		Tokens:         tokens,
		Verifiers:      verifiers,
		MultiFramework: config.MultiFramework(),
		APIKey:         config.APIKey(),
		RateLimitRPS:   config.RateLimitRPS(),
		RateLimitBurst: config.RateLimitBurst(),
		FlushInterval:  config.FlushInterval(),
	}, logger)
	if err != nil {
		logger.Fatal("failed to build app", zap.Error(err))
	}

	if err := app.Start(ctx); err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting",
			zap.String("addr", addr),
			zap.String("version", buildconfig.Version()),
			zap.String("backend", core.SnapshotBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Stop background services; the flush worker persists state one last time.
	app.Stop()

	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
