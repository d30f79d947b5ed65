package jobs

import (
	"cmp"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a job id is unknown.
var ErrNotFound = errors.New("job not found")

// Registry is the authoritative table of job records. It is the only
// component the outside world addresses directly; orchestrators receive
// a *Job handle, never the whole table.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	seq  uint64
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

func (r *Registry) add(job *Job) {
	r.mu.Lock()
	r.seq++
	job.seq = r.seq
	r.jobs[job.id] = job
	r.mu.Unlock()
	slog.Info("job created", "job_id", job.id, "type", job.typ, "label", job.label)
}

func newID() string {
	// Short ID for convenience.
	return uuid.New().String()[:8]
}

// CreateResearch registers a new pending research job with the given
// budget maxima.
func (r *Registry) CreateResearch(label, goal string, maxSearches, maxPages int) *Job {
	job := &Job{
		id:          newID(),
		typ:         TypeResearch,
		label:       label,
		goal:        goal,
		status:      StatusPending,
		startedAt:   time.Now(),
		maxSearches: maxSearches,
		maxPages:    maxPages,
	}
	r.add(job)
	return job
}

// CreateSwarm registers a new pending swarm job. The agent count is
// fixed later, at planning time.
func (r *Registry) CreateSwarm(label, goal string, maxSearches, maxPages int) *Job {
	job := &Job{
		id:          newID(),
		typ:         TypeSwarm,
		label:       label,
		goal:        goal,
		status:      StatusPending,
		startedAt:   time.Now(),
		maxSearches: maxSearches,
		maxPages:    maxPages,
	}
	r.add(job)
	return job
}

// CreateCrawl registers a new pending crawl job. Crawl jobs carry no
// search/page budget; their counters live on the CrawlJob record.
func (r *Registry) CreateCrawl(label, goal string) *Job {
	job := &Job{
		id:        newID(),
		typ:       TypeCrawl,
		label:     label,
		goal:      goal,
		status:    StatusPending,
		startedAt: time.Now(),
	}
	r.add(job)
	return job
}

// Get returns the job handle for an id.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job, nil
}

// Snapshot returns a point-in-time copy of one job.
func (r *Registry) Snapshot(id string) (Snapshot, error) {
	job, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return job.Snapshot(), nil
}

// List returns snapshots of all jobs, most recent first. The creation
// sequence breaks ties between jobs started in the same instant.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	all := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		all = append(all, job)
	}
	r.mu.RUnlock()

	// startedAt and seq are immutable after creation.
	slices.SortFunc(all, func(a, b *Job) int {
		if c := b.startedAt.Compare(a.startedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})

	snaps := make([]Snapshot, 0, len(all))
	for _, job := range all {
		snaps = append(snaps, job.Snapshot())
	}
	return snaps
}

// Clear removes all jobs in a terminal state and returns the removed
// ids. Jobs still executing are left untouched; that is not an error
// for the call.
func (r *Registry) Clear() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, job := range r.jobs {
		if job.Status().Terminal() {
			delete(r.jobs, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		slog.Info("jobs cleared", "count", len(removed))
	}
	return removed
}
