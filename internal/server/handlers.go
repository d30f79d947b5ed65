package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mkessler/fieldwork/internal/crawl"
	"github.com/mkessler/fieldwork/internal/jobs"
	"github.com/mkessler/fieldwork/internal/metrics"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, format string, args ...any) {
	respondJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"jobs": s.registry.List()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	snap, err := s.registry.Snapshot(r.PathValue("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		respondError(w, http.StatusNotFound, "unknown job %s", r.PathValue("id"))
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleBlackboard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.registry.Get(id); errors.Is(err, jobs.ErrNotFound) {
		respondError(w, http.StatusNotFound, "unknown job %s", id)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": s.board.Query(id)})
}

func (s *Server) handleClearJobs(w http.ResponseWriter, r *http.Request) {
	removed := s.registry.Clear()
	s.board.Drop(removed...)
	if s.crawler != nil {
		s.crawler.Clear(removed)
	}
	respondJSON(w, http.StatusOK, map[string]any{"cleared": len(removed)})
}

type researchRequest struct {
	Goal        string `json:"goal"`
	MaxSearches int    `json:"maxSearches"`
	MaxPages    int    `json:"maxPages"`
	AgentCount  int    `json:"agentCount"`
}

func (r researchRequest) withDefaults(d Defaults) researchRequest {
	if r.MaxSearches <= 0 {
		r.MaxSearches = d.MaxSearches
	}
	if r.MaxPages <= 0 {
		r.MaxPages = d.MaxPages
	}
	if r.AgentCount <= 0 {
		r.AgentCount = d.AgentCount
	}
	return r
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	if s.research == nil {
		respondError(w, http.StatusServiceUnavailable, "no LLM configured")
		return
	}
	var req researchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Goal == "" {
		respondError(w, http.StatusBadRequest, "goal is required")
		return
	}
	req = req.withDefaults(s.defaults)

	// Started on the server-lifetime context: the job outlives this
	// request and ends only at shutdown.
	snap := s.research.Start(s.baseCtx, req.Goal, req.MaxSearches, req.MaxPages)
	respondJSON(w, http.StatusAccepted, snap)
}

func (s *Server) handleSwarm(w http.ResponseWriter, r *http.Request) {
	if s.swarm == nil {
		respondError(w, http.StatusServiceUnavailable, "no LLM configured")
		return
	}
	var req researchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Goal == "" {
		respondError(w, http.StatusBadRequest, "goal is required")
		return
	}
	req = req.withDefaults(s.defaults)

	snap := s.swarm.Start(s.baseCtx, req.Goal, req.MaxSearches, req.MaxPages, req.AgentCount)
	respondJSON(w, http.StatusAccepted, snap)
}

type learnRequest struct {
	URL   string `json:"url"`
	Crawl bool   `json:"crawl"`
	Force bool   `json:"force"`
}

// handleLearn stores one page, or kicks off a whole-site crawl when
// crawl is set.
func (s *Server) handleLearn(w http.ResponseWriter, r *http.Request) {
	var req learnRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	if req.Crawl {
		s.startCrawl(w, r, req.URL, req.Force)
		return
	}

	start := time.Now()
	page, err := s.fetcher.Fetch(r.Context(), req.URL)
	if err != nil {
		respondError(w, http.StatusBadGateway, "fetch failed: %v", err)
		return
	}
	s.stats.RecordTiming(metrics.OpFetch, time.Since(start))

	start = time.Now()
	res, err := s.store.Learn(r.Context(), page.URL, page.Title, page.Content, req.Force)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "learn failed: %v", err)
		return
	}
	s.stats.RecordTiming(metrics.OpLearn, time.Since(start))

	respondJSON(w, http.StatusOK, map[string]any{
		"url":     page.URL,
		"title":   page.Title,
		"chunks":  res.Chunks,
		"skipped": res.Skipped,
	})
}

type crawlRequest struct {
	URL   string `json:"url"`
	Force bool   `json:"force"`
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	s.startCrawl(w, r, req.URL, req.Force)
}

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request, seed string, force bool) {
	snap, err := s.crawler.Start(s.baseCtx, seed, force)
	if errors.Is(err, crawl.ErrInFlight) {
		respondJSON(w, http.StatusConflict, map[string]any{
			"error": err.Error(),
			"crawl": snap,
		})
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "start crawl: %v", err)
		return
	}
	respondJSON(w, http.StatusAccepted, snap)
}

type retryRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	snap, err := s.crawler.Retry(r.Context(), req.URL)
	if errors.Is(err, crawl.ErrUnknownURL) {
		respondError(w, http.StatusNotFound, "%v", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusBadGateway, "retry failed: %v", err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListCrawls(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"crawls": s.crawler.List()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.stats.Snapshot())
}
