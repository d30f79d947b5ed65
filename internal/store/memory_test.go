package store

import (
	"context"
	"testing"
)

func TestMemoryStoreLearnAndSkip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	res, err := s.Learn(ctx, "https://example.com/a", "A", "some page content", false)
	if err != nil {
		t.Fatalf("Learn failed: %v", err)
	}
	if res.Skipped || res.Chunks != 1 {
		t.Errorf("unexpected first learn result: %+v", res)
	}

	// Same content again: skipped.
	res, err = s.Learn(ctx, "https://example.com/a", "A", "some page content", false)
	if err != nil {
		t.Fatalf("Learn failed: %v", err)
	}
	if !res.Skipped {
		t.Error("expected unchanged content to be skipped")
	}

	// Forced: relearned.
	res, err = s.Learn(ctx, "https://example.com/a", "A", "some page content", true)
	if err != nil {
		t.Fatalf("Learn failed: %v", err)
	}
	if res.Skipped {
		t.Error("force should bypass the skip")
	}

	// Changed content: relearned.
	res, err = s.Learn(ctx, "https://example.com/a", "A", "updated page content", false)
	if err != nil {
		t.Fatalf("Learn failed: %v", err)
	}
	if res.Skipped {
		t.Error("changed content must not be skipped")
	}
}
