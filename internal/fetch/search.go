package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// SearchHit is one result from the host-supplied web search capability.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher is the narrow contract for the external search capability.
// The orchestration core schedules and budgets searches; it never
// implements one.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchHit, error)
}

// SearchClient calls a host-provided search endpoint:
// GET <base>?q=<query> returning a JSON array of hits.
type SearchClient struct {
	baseURL string
	client  *http.Client
}

// NewSearchClient creates a search client against the given endpoint.
func NewSearchClient(baseURL string, timeout time.Duration) *SearchClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SearchClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Search runs one query against the host endpoint.
func (c *SearchClient) Search(ctx context.Context, query string) ([]SearchHit, error) {
	u := fmt.Sprintf("%s?q=%s", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search %q: %s - %s", query, resp.Status, string(body))
	}

	var hits []SearchHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return hits, nil
}
