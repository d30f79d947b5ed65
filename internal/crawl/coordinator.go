// Package crawl coordinates whole-site learning: discover same-host
// sub-pages of a seed URL and push each one through the fetch/learn
// pipeline with a bounded worker pool.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mkessler/fieldwork/internal/fetch"
	"github.com/mkessler/fieldwork/internal/jobs"
	"github.com/mkessler/fieldwork/internal/store"
)

// ErrInFlight is returned when a crawl for the same seed is already
// running. The caller receives the existing crawl alongside it.
var ErrInFlight = errors.New("crawl already in flight for seed")

// ErrUnknownURL is returned by Retry when no crawl recorded the URL as
// failed.
var ErrUnknownURL = errors.New("url not found in any crawl's failed list")

// Status is the lifecycle state of one crawl.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Snapshot is the point-in-time view of one crawl for the status API.
// The counters cover discovered sub-pages only; the seed is learned
// outside of them.
type Snapshot struct {
	Seed       string    `json:"seed"`
	JobID      string    `json:"jobId"`
	Status     Status    `json:"status"`
	Total      int       `json:"total"`
	Learned    int       `json:"learned"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	FailedURLs []string  `json:"failedUrls,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	Error      string    `json:"error,omitempty"`
}

// crawlState is the mutable record of one crawl, guarded by the
// coordinator's lock.
type crawlState struct {
	seed       string
	jobID      string
	status     Status
	total      int
	learned    int
	skipped    int
	failed     int
	failedURLs []string
	startedAt  time.Time
	errMsg     string
}

func (c *crawlState) snapshot() Snapshot {
	return Snapshot{
		Seed:       c.seed,
		JobID:      c.jobID,
		Status:     c.status,
		Total:      c.total,
		Learned:    c.learned,
		Skipped:    c.skipped,
		Failed:     c.failed,
		FailedURLs: append([]string(nil), c.failedURLs...),
		StartedAt:  c.startedAt,
		Error:      c.errMsg,
	}
}

// Coordinator runs crawls and tracks their per-URL outcome counters.
// One crawl per seed may be active at a time.
type Coordinator struct {
	registry *jobs.Registry
	fetcher  *fetch.Fetcher
	store    store.Store
	logger   *slog.Logger

	concurrency int
	maxPages    int

	mu     sync.Mutex
	crawls map[string]*crawlState // keyed by seed URL
}

// NewCoordinator creates the crawl coordinator. concurrency bounds the
// worker pool; maxPages caps how many discovered links one crawl takes.
func NewCoordinator(registry *jobs.Registry, fetcher *fetch.Fetcher, st store.Store, concurrency, maxPages int, logger *slog.Logger) *Coordinator {
	if concurrency <= 0 {
		concurrency = 4
	}
	if maxPages <= 0 {
		maxPages = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		registry:    registry,
		fetcher:     fetcher,
		store:       st,
		logger:      logger,
		concurrency: concurrency,
		maxPages:    maxPages,
		crawls:      make(map[string]*crawlState),
	}
}

// Start begins a crawl from seed. If a crawl for the same seed is still
// running, the existing snapshot is returned with ErrInFlight. The
// returned snapshot reflects the crawl at registration time; progress is
// observed via List or the linked job.
func (c *Coordinator) Start(ctx context.Context, seed string, force bool) (Snapshot, error) {
	c.mu.Lock()
	if existing, ok := c.crawls[seed]; ok && existing.status == StatusRunning {
		snap := existing.snapshot()
		c.mu.Unlock()
		return snap, fmt.Errorf("%w: job %s", ErrInFlight, snap.JobID)
	}

	job := c.registry.CreateCrawl("Crawl "+seed, seed)
	state := &crawlState{
		seed:      seed,
		jobID:     job.ID(),
		status:    StatusRunning,
		startedAt: time.Now(),
	}
	c.crawls[seed] = state
	snap := state.snapshot()
	c.mu.Unlock()

	go c.run(ctx, job, state, force)

	return snap, nil
}

// run drives one crawl to a terminal state.
func (c *Coordinator) run(ctx context.Context, job *jobs.Job, state *crawlState, force bool) {
	if err := job.Transition(jobs.StatusRunning); err != nil {
		c.logger.Error("crawl job transition failed", "job_id", job.ID(), "error", err)
		return
	}
	job.SetProgress("fetching seed")

	seedPage, err := c.fetcher.Fetch(ctx, state.seed)
	if err != nil {
		c.fail(job, state, fmt.Sprintf("seed unreachable: %v", err))
		return
	}

	links := fetch.ExtractLinks(state.seed, seedPage.HTML, c.maxPages)

	c.mu.Lock()
	state.total = len(links)
	c.mu.Unlock()

	// The seed's content is already in hand from discovery; store it
	// without folding it into the counters, which track discovered
	// sub-pages only.
	if _, err := c.store.Learn(ctx, seedPage.URL, seedPage.Title, seedPage.Content, force); err != nil {
		c.logger.Warn("seed learn failed", "job_id", job.ID(), "url", state.seed, "error", err)
	}

	c.logger.Info("crawl started",
		"job_id", job.ID(), "seed", state.seed, "pages", len(links))
	job.SetProgress(fmt.Sprintf("0/%d pages", len(links)))

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.concurrency)

	for _, pageURL := range links {
		if ctx.Err() != nil {
			c.recordFailure(job, state, pageURL, ctx.Err())
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(u string) {
			defer wg.Done()
			defer func() { <-sem }()
			c.learnPage(ctx, job, state, u, force)
		}(pageURL)
	}
	wg.Wait()

	c.finish(job, state)
}

// learnPage processes one discovered URL and folds its outcome into the
// counters.
func (c *Coordinator) learnPage(ctx context.Context, job *jobs.Job, state *crawlState, pageURL string, force bool) {
	page, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		c.recordFailure(job, state, pageURL, err)
		return
	}

	res, err := c.store.Learn(ctx, page.URL, page.Title, page.Content, force)
	if err != nil {
		c.recordFailure(job, state, pageURL, err)
		return
	}

	c.mu.Lock()
	if res.Skipped {
		state.skipped++
	} else {
		state.learned++
	}
	done := state.learned + state.skipped + state.failed
	total := state.total
	c.mu.Unlock()

	job.SetProgress(fmt.Sprintf("%d/%d pages", done, total))
}

func (c *Coordinator) recordFailure(job *jobs.Job, state *crawlState, pageURL string, err error) {
	c.logger.Warn("crawl page failed", "job_id", job.ID(), "url", pageURL, "error", err)

	c.mu.Lock()
	state.failed++
	state.failedURLs = append(state.failedURLs, pageURL)
	done := state.learned + state.skipped + state.failed
	total := state.total
	c.mu.Unlock()

	if total > 0 {
		job.SetProgress(fmt.Sprintf("%d/%d pages", done, total))
	}
}

// finish moves the crawl and its job to a terminal state once every
// page has an outcome.
func (c *Coordinator) finish(job *jobs.Job, state *crawlState) {
	c.mu.Lock()
	state.status = StatusDone
	result := fmt.Sprintf("crawled %s: %d learned, %d skipped, %d failed of %d pages",
		state.seed, state.learned, state.skipped, state.failed, state.total)
	c.mu.Unlock()

	if err := job.Complete(result, jobs.ResultGeneral); err != nil {
		c.logger.Error("crawl completion failed", "job_id", job.ID(), "error", err)
	}
	c.logger.Info("crawl finished", "job_id", job.ID(), "seed", state.seed)
}

// fail marks both the crawl and its registry job as errored.
func (c *Coordinator) fail(job *jobs.Job, state *crawlState, msg string) {
	c.mu.Lock()
	state.status = StatusError
	state.errMsg = msg
	c.mu.Unlock()

	job.Fail(jobs.StatusError, msg)
	c.logger.Error("crawl failed", "job_id", job.ID(), "seed", state.seed, "error", msg)
}

// Retry reprocesses one previously failed URL. On success the URL moves
// from the failed set into learned or skipped; the counters keep
// accounting for every page exactly once.
func (c *Coordinator) Retry(ctx context.Context, pageURL string) (Snapshot, error) {
	c.mu.Lock()
	var state *crawlState
	for _, s := range c.crawls {
		if slices.Contains(s.failedURLs, pageURL) {
			state = s
			break
		}
	}
	if state == nil {
		c.mu.Unlock()
		return Snapshot{}, ErrUnknownURL
	}
	c.mu.Unlock()

	page, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return Snapshot{}, fmt.Errorf("retry fetch %s: %w", pageURL, err)
	}
	res, err := c.store.Learn(ctx, page.URL, page.Title, page.Content, false)
	if err != nil {
		return Snapshot{}, fmt.Errorf("retry learn %s: %w", pageURL, err)
	}

	c.mu.Lock()
	// Re-find the index in case another retry mutated the slice.
	idx := slices.Index(state.failedURLs, pageURL)
	if idx >= 0 {
		state.failedURLs = append(state.failedURLs[:idx], state.failedURLs[idx+1:]...)
		state.failed--
		if res.Skipped {
			state.skipped++
		} else {
			state.learned++
		}
	}
	snap := state.snapshot()
	c.mu.Unlock()

	c.logger.Info("crawl retry succeeded", "url", pageURL, "job_id", snap.JobID)
	return snap, nil
}

// List returns snapshots of all known crawls, newest first.
func (c *Coordinator) List() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snaps := make([]Snapshot, 0, len(c.crawls))
	for _, s := range c.crawls {
		snaps = append(snaps, s.snapshot())
	}
	slices.SortFunc(snaps, func(a, b Snapshot) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return snaps
}

// Clear drops crawl records whose linked jobs were removed from the
// registry.
func (c *Coordinator) Clear(removedJobIDs []string) {
	removed := make(map[string]bool, len(removedJobIDs))
	for _, id := range removedJobIDs {
		removed[id] = true
	}

	c.mu.Lock()
	for seed, s := range c.crawls {
		if removed[s.jobID] {
			delete(c.crawls, seed)
		}
	}
	c.mu.Unlock()
}
