// Package main provides the fieldwork job server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkessler/fieldwork/internal/agent"
	"github.com/mkessler/fieldwork/internal/blackboard"
	"github.com/mkessler/fieldwork/internal/config"
	"github.com/mkessler/fieldwork/internal/crawl"
	"github.com/mkessler/fieldwork/internal/fetch"
	"github.com/mkessler/fieldwork/internal/jobs"
	"github.com/mkessler/fieldwork/internal/llm"
	"github.com/mkessler/fieldwork/internal/metrics"
	"github.com/mkessler/fieldwork/internal/research"
	"github.com/mkessler/fieldwork/internal/sandbox"
	"github.com/mkessler/fieldwork/internal/server"
	"github.com/mkessler/fieldwork/internal/store"
	"github.com/mkessler/fieldwork/internal/swarm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	slog.Info("starting fieldworkd", "listen", cfg.ListenAddr, "store", cfg.StoreBackend)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := newStore(ctx, cfg, logger)
	cancel()
	if err != nil {
		slog.Error("failed to open knowledge store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}()

	fetcher := fetch.NewFetcher(cfg.PageTimeout)

	tools := agent.Tools{
		Fetcher: fetcher,
		Store:   st,
	}
	if cfg.SearchURL != "" {
		tools.Searcher = fetch.NewSearchClient(cfg.SearchURL, 15*time.Second)
	} else {
		slog.Warn("no search endpoint configured, agents cannot search")
	}
	if cfg.SandboxURL != "" {
		tools.Sandbox = sandbox.New(cfg.SandboxURL)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		langs, err := tools.Sandbox.Health(ctx)
		cancel()
		if err != nil {
			slog.Warn("sandbox unreachable, code execution may fail", "error", err)
		} else {
			slog.Info("sandbox ready", "languages", langs)
		}
	}

	registry := jobs.NewRegistry()
	board := blackboard.NewBoard()
	stats := metrics.NewCollector()
	crawler := crawl.NewCoordinator(registry, fetcher, st, cfg.CrawlConcurrency, cfg.CrawlMaxPages, logger)

	// Research and swarm need a model; without one their endpoints
	// answer 503 while learn and crawl keep working.
	var researchOrch *research.Orchestrator
	var swarmOrch *swarm.Orchestrator
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	model, err := llm.NewModel(ctx, cfg)
	cancel()
	if err != nil {
		slog.Warn("LLM unavailable, research endpoints disabled", "error", err)
	} else {
		provider := agent.NewLLMProvider(model, tools, logger)
		synth := agent.NewLLMSynthesizer(model)
		researchOrch = research.NewOrchestrator(registry, board, provider, synth, logger)
		swarmOrch = swarm.NewOrchestrator(registry, board, model, provider, synth, logger)
	}

	// jobCtx bounds all background jobs. Cancelling it at shutdown lets
	// the orchestrators mark in-flight jobs as errored instead of
	// abandoning them mid-run.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	srv := server.New(jobCtx, registry, board, researchOrch, swarmOrch, crawler, fetcher, st, stats,
		server.Defaults{
			MaxSearches: cfg.DefaultMaxSearches,
			MaxPages:    cfg.DefaultMaxPages,
			AgentCount:  cfg.DefaultAgentCount,
		}, logger)

	httpServer := srv.HTTPServer(cfg.ListenAddr)

	go func() {
		slog.Info("API available", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	cancelJobs()

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	waitForJobs(registry, 5*time.Second)
	slog.Info("server stopped")
}

// waitForJobs blocks until every job reached a terminal state or the
// grace period ends, so cancelled jobs get recorded before exit.
func waitForJobs(registry *jobs.Registry, grace time.Duration) {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		active := 0
		for _, snap := range registry.List() {
			if !snap.Status.Terminal() {
				active++
			}
		}
		if active == 0 {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	slog.Warn("jobs still running at shutdown deadline")
}

// newStore opens the configured knowledge store backend.
func newStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.StoreBackend == "memory" {
		return store.NewMemoryStore(), nil
	}
	return store.NewSurrealStore(ctx, store.SurrealConfig{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
}
