// Package sandbox provides a client for the assistant's isolated
// code-execution service. Agents use it to compute artifacts (tables,
// calculations, generated files) that end up on the blackboard.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// MaxTimeoutSeconds mirrors the sandbox server's hard cap.
	MaxTimeoutSeconds = 120

	// DefaultTimeoutSeconds is applied when the caller passes 0.
	DefaultTimeoutSeconds = 30
)

// RunRequest is the payload for one code execution.
type RunRequest struct {
	Language       string `json:"language"` // "python" or "node"
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout,omitempty"`
}

// OutputFile is a file the executed code wrote to its output directory,
// returned base64-encoded.
type OutputFile struct {
	Name string `json:"name"`
	Data string `json:"data"`
	Size int64  `json:"size"`
}

// RunResult is the outcome of one execution.
type RunResult struct {
	Stdout   string       `json:"stdout"`
	Stderr   string       `json:"stderr"`
	ExitCode int          `json:"exitCode"`
	Files    []OutputFile `json:"files"`
}

// Client talks to the sandbox HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a sandbox client. The HTTP timeout leaves headroom above
// the sandbox's own execution cap.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: (MaxTimeoutSeconds + 10) * time.Second,
		},
	}
}

// Health checks the sandbox service and returns the supported languages.
func (c *Client) Health(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sandbox health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sandbox health: unexpected status %s", resp.Status)
	}

	var body struct {
		OK        bool     `json:"ok"`
		Languages []string `json:"languages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	if !body.OK {
		return nil, fmt.Errorf("sandbox reports not ok")
	}
	return body.Languages, nil
}

// Run executes one code snippet and returns its output.
func (c *Client) Run(ctx context.Context, runReq RunRequest) (*RunResult, error) {
	if runReq.Language != "python" && runReq.Language != "node" {
		return nil, fmt.Errorf("unsupported language: %s", runReq.Language)
	}
	if runReq.TimeoutSeconds <= 0 {
		runReq.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if runReq.TimeoutSeconds > MaxTimeoutSeconds {
		runReq.TimeoutSeconds = MaxTimeoutSeconds
	}

	payload, err := json.Marshal(runReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sandbox run: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sandbox run: %s - %s", resp.Status, string(body))
	}

	var result RunResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &result, nil
}
