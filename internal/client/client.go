// Package client provides a JSON API client for the fieldwork server,
// used by the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mkessler/fieldwork/internal/blackboard"
	"github.com/mkessler/fieldwork/internal/crawl"
	"github.com/mkessler/fieldwork/internal/jobs"
	"github.com/mkessler/fieldwork/internal/metrics"
)

// Client talks to the fieldwork server's JSON API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client.
// If baseURL is empty, uses FIELDWORK_SERVER_URL env var or defaults to localhost:8765.
// Timeout can be configured via FIELDWORK_CLIENT_TIMEOUT env var.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("FIELDWORK_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8765"
	}

	timeout := 2 * time.Minute // learn requests fetch remote pages inline
	if t := os.Getenv("FIELDWORK_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// apiError mirrors the server's error envelope.
type apiError struct {
	Error string `json:"error"`
}

// do sends one request and decodes the response into result. Non-2xx
// responses surface the server's error message.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e apiError
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("server error: %s", e.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(raw))
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Health checks server reachability.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// ListJobs returns all jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context) ([]jobs.Snapshot, error) {
	var out struct {
		Jobs []jobs.Snapshot `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/jobs", nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// GetJob returns one job snapshot.
func (c *Client) GetJob(ctx context.Context, id string) (jobs.Snapshot, error) {
	var snap jobs.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+id, nil, &snap)
	return snap, err
}

// Blackboard returns all entries of a job's blackboard.
func (c *Client) Blackboard(ctx context.Context, id string) ([]blackboard.Entry, error) {
	var out struct {
		Entries []blackboard.Entry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+id+"/blackboard", nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// ClearJobs removes finished jobs and returns how many were cleared.
func (c *Client) ClearJobs(ctx context.Context) (int, error) {
	var out struct {
		Cleared int `json:"cleared"`
	}
	err := c.do(ctx, http.MethodPost, "/api/jobs/clear", map[string]any{}, &out)
	return out.Cleared, err
}

// ResearchOptions carries optional budget overrides for a job.
type ResearchOptions struct {
	MaxSearches int `json:"maxSearches,omitempty"`
	MaxPages    int `json:"maxPages,omitempty"`
	AgentCount  int `json:"agentCount,omitempty"`
}

type jobRequest struct {
	Goal string `json:"goal"`
	ResearchOptions
}

// StartResearch submits a single-agent research job.
func (c *Client) StartResearch(ctx context.Context, goal string, opts ResearchOptions) (jobs.Snapshot, error) {
	var snap jobs.Snapshot
	err := c.do(ctx, http.MethodPost, "/api/research", jobRequest{Goal: goal, ResearchOptions: opts}, &snap)
	return snap, err
}

// StartSwarm submits a multi-agent research job.
func (c *Client) StartSwarm(ctx context.Context, goal string, opts ResearchOptions) (jobs.Snapshot, error) {
	var snap jobs.Snapshot
	err := c.do(ctx, http.MethodPost, "/api/swarm", jobRequest{Goal: goal, ResearchOptions: opts}, &snap)
	return snap, err
}

// LearnResult is the server's answer to a single-page learn.
type LearnResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Chunks  int    `json:"chunks"`
	Skipped bool   `json:"skipped"`
}

// Learn stores one page in the knowledge base.
func (c *Client) Learn(ctx context.Context, url string, force bool) (LearnResult, error) {
	var out LearnResult
	err := c.do(ctx, http.MethodPost, "/api/learn",
		map[string]any{"url": url, "force": force}, &out)
	return out, err
}

// StartCrawl starts a whole-site crawl from a seed URL.
func (c *Client) StartCrawl(ctx context.Context, seed string, force bool) (crawl.Snapshot, error) {
	var snap crawl.Snapshot
	err := c.do(ctx, http.MethodPost, "/api/crawl",
		map[string]any{"url": seed, "force": force}, &snap)
	return snap, err
}

// ListCrawls returns all known crawls.
func (c *Client) ListCrawls(ctx context.Context) ([]crawl.Snapshot, error) {
	var out struct {
		Crawls []crawl.Snapshot `json:"crawls"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/crawls", nil, &out); err != nil {
		return nil, err
	}
	return out.Crawls, nil
}

// RetryURL retries one failed crawl page.
func (c *Client) RetryURL(ctx context.Context, url string) (crawl.Snapshot, error) {
	var snap crawl.Snapshot
	err := c.do(ctx, http.MethodPost, "/api/crawl/retry", map[string]any{"url": url}, &snap)
	return snap, err
}

// Stats returns the server's runtime statistics.
func (c *Client) Stats(ctx context.Context) (metrics.Snapshot, error) {
	var snap metrics.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &snap)
	return snap, err
}
