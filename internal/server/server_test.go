package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mkessler/fieldwork/internal/agent"
	"github.com/mkessler/fieldwork/internal/blackboard"
	"github.com/mkessler/fieldwork/internal/crawl"
	"github.com/mkessler/fieldwork/internal/fetch"
	"github.com/mkessler/fieldwork/internal/jobs"
	"github.com/mkessler/fieldwork/internal/metrics"
	"github.com/mkessler/fieldwork/internal/research"
	"github.com/mkessler/fieldwork/internal/store"
	"github.com/mkessler/fieldwork/internal/swarm"
)

// scriptedExecutor posts one finding then declares done.
type scriptedExecutor struct {
	stepped bool
}

func (e *scriptedExecutor) Step(ctx context.Context, auth agent.Authorizer) (agent.Outcome, error) {
	if !e.stepped {
		e.stepped = true
		return agent.Outcome{Kind: agent.OutcomeEntry, Type: blackboard.EntryFinding, Content: "a finding"}, nil
	}
	return agent.Outcome{Kind: agent.OutcomeDone, Summary: "all done"}, nil
}

type scriptedProvider struct{}

func (scriptedProvider) NewAgent(jobID, agentID, subgoal string) agent.Executor {
	return &scriptedExecutor{}
}

type scriptedSynth struct{}

func (scriptedSynth) Synthesize(ctx context.Context, goal string, entries []blackboard.Entry) (string, jobs.ResultType, error) {
	return fmt.Sprintf("report over %d entries", len(entries)), jobs.ResultGeneral, nil
}

type scriptedPlanner struct{}

func (scriptedPlanner) PlanSubtasks(ctx context.Context, goal string, n int) ([]string, error) {
	return []string{"part one", "part two"}, nil
}

// newTestServer wires a fully scripted API server. withLLM=false leaves
// the orchestrators nil, as when no model is configured.
func newTestServer(t *testing.T, withLLM bool) *httptest.Server {
	t.Helper()

	registry := jobs.NewRegistry()
	board := blackboard.NewBoard()
	fetcher := fetch.NewFetcher(2 * time.Second)
	st := store.NewMemoryStore()
	crawler := crawl.NewCoordinator(registry, fetcher, st, 2, 10, nil)

	var researchOrch *research.Orchestrator
	var swarmOrch *swarm.Orchestrator
	if withLLM {
		researchOrch = research.NewOrchestrator(registry, board, scriptedProvider{}, scriptedSynth{}, nil)
		swarmOrch = swarm.NewOrchestrator(registry, board, scriptedPlanner{}, scriptedProvider{}, scriptedSynth{}, nil)
	}

	s := New(context.Background(), registry, board, researchOrch, swarmOrch, crawler, fetcher, st,
		metrics.NewCollector(), Defaults{MaxSearches: 5, MaxPages: 10, AgentCount: 3}, nil)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func pollJob(t *testing.T, base, id string) jobs.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/api/jobs/" + id)
		if err != nil {
			t.Fatalf("GET job: %v", err)
		}
		snap := decode[jobs.Snapshot](t, resp)
		if snap.Status.Terminal() {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never finished")
	return jobs.Snapshot{}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, true)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestResearchLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, true)

	resp := postJSON(t, srv.URL+"/api/research", map[string]any{"goal": "what is a monad"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	snap := decode[jobs.Snapshot](t, resp)
	if snap.ID == "" || snap.Type != jobs.TypeResearch {
		t.Fatalf("bad job snapshot: %+v", snap)
	}
	if snap.BudgetMaxSearches != 5 || snap.BudgetMaxPages != 10 {
		t.Errorf("defaults not applied: %+v", snap)
	}

	final := pollJob(t, srv.URL, snap.ID)
	if final.Status != jobs.StatusDone {
		t.Fatalf("status = %s, want done (error: %s)", final.Status, final.Error)
	}
	if final.Result == "" {
		t.Error("result missing")
	}

	// Blackboard holds the finding and the done summary.
	bresp, err := http.Get(srv.URL + "/api/jobs/" + snap.ID + "/blackboard")
	if err != nil {
		t.Fatalf("GET blackboard: %v", err)
	}
	bb := decode[struct {
		Entries []blackboard.Entry `json:"entries"`
	}](t, bresp)
	if len(bb.Entries) != 2 {
		t.Errorf("blackboard entries = %d, want 2", len(bb.Entries))
	}
}

func TestSwarmLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, true)

	resp := postJSON(t, srv.URL+"/api/swarm", map[string]any{"goal": "broad topic", "agentCount": 2})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	snap := decode[jobs.Snapshot](t, resp)

	final := pollJob(t, srv.URL, snap.ID)
	if final.Status != jobs.StatusDone {
		t.Fatalf("status = %s, want done (error: %s)", final.Status, final.Error)
	}
	if final.AgentCount != 2 || final.AgentsDone != 2 {
		t.Errorf("agent accounting: %d/%d", final.AgentsDone, final.AgentCount)
	}
}

func TestResearchWithoutLLMIs503(t *testing.T) {
	srv := newTestServer(t, false)

	for _, path := range []string{"/api/research", "/api/swarm"} {
		resp := postJSON(t, srv.URL+path, map[string]any{"goal": "anything"})
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("POST %s status = %d, want 503", path, resp.StatusCode)
		}
	}
}

func TestResearchRequiresGoal(t *testing.T) {
	srv := newTestServer(t, true)
	resp := postJSON(t, srv.URL+"/api/research", map[string]any{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetUnknownJob(t *testing.T) {
	srv := newTestServer(t, true)
	resp, err := http.Get(srv.URL + "/api/jobs/nope1234")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestLearnSinglePage(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><title>Doc</title><body>useful text</body></html>")
	}))
	defer page.Close()

	srv := newTestServer(t, true)
	resp := postJSON(t, srv.URL+"/api/learn", map[string]any{"url": page.URL})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["title"] != "Doc" {
		t.Errorf("title = %v", body["title"])
	}

	// Stats recorded the fetch and learn timings.
	sresp, err := http.Get(srv.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET stats: %v", err)
	}
	stats := decode[metrics.Snapshot](t, sresp)
	if stats.Fetch == nil || stats.Fetch.Count != 1 {
		t.Error("fetch timing not recorded")
	}
	if stats.Learn == nil || stats.Learn.Count != 1 {
		t.Error("learn timing not recorded")
	}
}

func TestCrawlOverHTTP(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<html><title>S</title><a href="/sub">sub</a></html>`)
		default:
			fmt.Fprint(w, "<html><title>Sub</title>content</html>")
		}
	}))
	defer site.Close()

	srv := newTestServer(t, true)
	resp := postJSON(t, srv.URL+"/api/crawl", map[string]any{"url": site.URL})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	started := decode[crawl.Snapshot](t, resp)

	final := pollJob(t, srv.URL, started.JobID)
	if final.Status != jobs.StatusDone {
		t.Fatalf("crawl job status = %s (error: %s)", final.Status, final.Error)
	}

	cresp, err := http.Get(srv.URL + "/api/crawls")
	if err != nil {
		t.Fatalf("GET crawls: %v", err)
	}
	crawls := decode[struct {
		Crawls []crawl.Snapshot `json:"crawls"`
	}](t, cresp)
	// Counters cover the one discovered sub-page; the seed is learned
	// outside of them.
	if len(crawls.Crawls) != 1 || crawls.Crawls[0].Learned != 1 {
		t.Errorf("unexpected crawl list: %+v", crawls.Crawls)
	}
}

// blockingExecutor parks until its context is cancelled.
type blockingExecutor struct{}

func (blockingExecutor) Step(ctx context.Context, auth agent.Authorizer) (agent.Outcome, error) {
	<-ctx.Done()
	return agent.Outcome{}, ctx.Err()
}

type blockingProvider struct{}

func (blockingProvider) NewAgent(jobID, agentID, subgoal string) agent.Executor {
	return blockingExecutor{}
}

func TestShutdownCancelsRunningJobs(t *testing.T) {
	registry := jobs.NewRegistry()
	board := blackboard.NewBoard()
	fetcher := fetch.NewFetcher(2 * time.Second)
	st := store.NewMemoryStore()
	crawler := crawl.NewCoordinator(registry, fetcher, st, 2, 10, nil)
	researchOrch := research.NewOrchestrator(registry, board, blockingProvider{}, scriptedSynth{}, nil)

	base, cancel := context.WithCancel(context.Background())
	s := New(base, registry, board, researchOrch, nil, crawler, fetcher, st,
		metrics.NewCollector(), Defaults{MaxSearches: 5, MaxPages: 10, AgentCount: 3}, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	resp := postJSON(t, srv.URL+"/api/research", map[string]any{"goal": "long running"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	snap := decode[jobs.Snapshot](t, resp)

	// Shutdown: the base context cancels while the agent is mid-step.
	cancel()

	final := pollJob(t, srv.URL, snap.ID)
	if final.Status != jobs.StatusError {
		t.Fatalf("status = %s, want error", final.Status)
	}
	if final.Error == "" {
		t.Error("cancelled job should record why it ended")
	}
}

func TestRetryUnknownURLOverHTTP(t *testing.T) {
	srv := newTestServer(t, true)
	resp := postJSON(t, srv.URL+"/api/crawl/retry", map[string]any{"url": "https://nowhere.example/x"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestClearRemovesTerminalJobsAndBoards(t *testing.T) {
	srv := newTestServer(t, true)

	resp := postJSON(t, srv.URL+"/api/research", map[string]any{"goal": "short lived"})
	snap := decode[jobs.Snapshot](t, resp)
	pollJob(t, srv.URL, snap.ID)

	cresp := postJSON(t, srv.URL+"/api/jobs/clear", map[string]any{})
	cleared := decode[map[string]int](t, cresp)
	if cleared["cleared"] != 1 {
		t.Errorf("cleared = %d, want 1", cleared["cleared"])
	}

	gone, err := http.Get(srv.URL + "/api/jobs/" + snap.ID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	gone.Body.Close()
	if gone.StatusCode != http.StatusNotFound {
		t.Errorf("cleared job still present: %d", gone.StatusCode)
	}
}
