// Package store provides the knowledge-store collaborator: learned page
// content is chunked and persisted, idempotently unless forced.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// LearnResult summarizes one learn operation.
type LearnResult struct {
	Chunks  int  // chunks written (0 when skipped)
	Skipped bool // content already known and not forced
}

// Store is the narrow contract the orchestration core depends on.
// Learn is idempotent for unchanged content unless force is set.
type Store interface {
	Learn(ctx context.Context, url, title, content string, force bool) (LearnResult, error)
	Close(ctx context.Context) error
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// MemoryStore keeps learned sources in process memory. Used in tests
// and when no SurrealDB is configured.
type MemoryStore struct {
	mu      sync.Mutex
	hashes  map[string]string // url -> content hash
	chunked ChunkConfig
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hashes:  make(map[string]string),
		chunked: DefaultChunkConfig(),
	}
}

// Learn records a page, skipping unchanged content unless forced.
func (s *MemoryStore) Learn(ctx context.Context, url, title, content string, force bool) (LearnResult, error) {
	hash := contentHash(content)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.hashes[url]; ok && prev == hash && !force {
		return LearnResult{Skipped: true}, nil
	}
	s.hashes[url] = hash
	return LearnResult{Chunks: len(Chunk(content, s.chunked))}, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close(ctx context.Context) error { return nil }
