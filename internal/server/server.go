// Package server exposes the polling JSON API over the job registry,
// the orchestrators and the crawl coordinator.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mkessler/fieldwork/internal/blackboard"
	"github.com/mkessler/fieldwork/internal/crawl"
	"github.com/mkessler/fieldwork/internal/fetch"
	"github.com/mkessler/fieldwork/internal/jobs"
	"github.com/mkessler/fieldwork/internal/metrics"
	"github.com/mkessler/fieldwork/internal/research"
	"github.com/mkessler/fieldwork/internal/store"
	"github.com/mkessler/fieldwork/internal/swarm"
)

// Defaults are the budget values applied when a request omits them.
type Defaults struct {
	MaxSearches int
	MaxPages    int
	AgentCount  int
}

// Server wires the HTTP surface to the orchestration core. The research
// and swarm orchestrators may be nil when no LLM is configured; their
// endpoints then answer 503.
type Server struct {
	baseCtx  context.Context
	registry *jobs.Registry
	board    *blackboard.Board
	research *research.Orchestrator
	swarm    *swarm.Orchestrator
	crawler  *crawl.Coordinator
	fetcher  *fetch.Fetcher
	store    store.Store
	stats    *metrics.Collector
	defaults Defaults
	logger   *slog.Logger
}

// New creates the API server. ctx bounds the background jobs started
// through the API: cancelling it stops in-flight work, letting
// orchestrators land their jobs in a terminal state before the process
// exits.
func New(
	ctx context.Context,
	registry *jobs.Registry,
	board *blackboard.Board,
	researchOrch *research.Orchestrator,
	swarmOrch *swarm.Orchestrator,
	crawler *crawl.Coordinator,
	fetcher *fetch.Fetcher,
	st store.Store,
	stats *metrics.Collector,
	defaults Defaults,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Server{
		baseCtx:  ctx,
		registry: registry,
		board:    board,
		research: researchOrch,
		swarm:    swarmOrch,
		crawler:  crawler,
		fetcher:  fetcher,
		store:    st,
		stats:    stats,
		defaults: defaults,
		logger:   logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /api/jobs/{id}/blackboard", s.handleBlackboard)
	mux.HandleFunc("POST /api/jobs/clear", s.handleClearJobs)

	mux.HandleFunc("POST /api/research", s.handleResearch)
	mux.HandleFunc("POST /api/swarm", s.handleSwarm)

	mux.HandleFunc("POST /api/learn", s.handleLearn)
	mux.HandleFunc("POST /api/crawl", s.handleCrawl)
	mux.HandleFunc("POST /api/crawl/retry", s.handleRetry)
	mux.HandleFunc("GET /api/crawls", s.handleListCrawls)

	mux.HandleFunc("GET /api/stats", s.handleStats)

	return LoggingMiddleware(s.logger)(mux)
}

// HTTPServer wraps the handler in an http.Server with sane timeouts.
// WriteTimeout is long because learn requests fetch remote pages inline.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
