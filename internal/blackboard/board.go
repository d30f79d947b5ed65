// Package blackboard provides the shared append-only log that agents
// write findings to during a job's active phases.
package blackboard

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EntryType classifies a blackboard entry.
type EntryType string

const (
	EntryFinding  EntryType = "finding"
	EntryQuestion EntryType = "question"
	EntryAnswer   EntryType = "answer"
	EntryArtifact EntryType = "artifact"
)

// Entry is one immutable record on a job's blackboard.
type Entry struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	AgentID   string    `json:"agentId"`
	Type      EntryType `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Board holds per-job append-only entry logs. Appends are atomic per
// entry; readers always observe a prefix of the committed log. There is
// no update or delete of individual entries.
type Board struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewBoard creates an empty blackboard.
func NewBoard() *Board {
	return &Board{entries: make(map[string][]Entry)}
}

// Append writes one entry for a job and returns its id. Safe for many
// concurrent writers; CreatedAt is non-decreasing within a job.
func (b *Board) Append(jobID, agentID string, typ EntryType, content string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	log := b.entries[jobID]
	if n := len(log); n > 0 && now.Before(log[n-1].CreatedAt) {
		now = log[n-1].CreatedAt
	}

	entry := Entry{
		ID:        uuid.New().String(),
		JobID:     jobID,
		AgentID:   agentID,
		Type:      typ,
		Content:   content,
		CreatedAt: now,
	}
	b.entries[jobID] = append(log, entry)
	return entry.ID
}

// Query returns a snapshot of all entries for a job in creation order.
func (b *Board) Query(jobID string) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	log := b.entries[jobID]
	out := make([]Entry, len(log))
	copy(out, log)
	return out
}

// Count returns the number of entries for a job.
func (b *Board) Count(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries[jobID])
}

// Drop removes the whole log of a job. Used only when the job itself is
// cleared from the registry.
func (b *Board) Drop(jobIDs ...string) {
	b.mu.Lock()
	for _, id := range jobIDs {
		delete(b.entries, id)
	}
	b.mu.Unlock()
}
