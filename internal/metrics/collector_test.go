package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpFetch, 100*time.Millisecond)
	c.RecordTiming(OpFetch, 300*time.Millisecond)

	snap := c.Snapshot()
	if snap.Fetch == nil {
		t.Fatal("fetch stats missing")
	}
	if snap.Fetch.Count != 2 {
		t.Errorf("count = %d, want 2", snap.Fetch.Count)
	}
	if snap.Fetch.MinTimeMs != 100 || snap.Fetch.MaxTimeMs != 300 {
		t.Errorf("min/max = %d/%d", snap.Fetch.MinTimeMs, snap.Fetch.MaxTimeMs)
	}
	if snap.Search != nil {
		t.Error("unrecorded op should be nil in the snapshot")
	}
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpLLMGenerate, 50*time.Millisecond, 120, 40)
	c.RecordLLMUsage(OpLLMGenerate, 70*time.Millisecond, 80, 60)

	snap := c.Snapshot()
	if snap.LLMGenerate == nil {
		t.Fatal("llm stats missing")
	}
	if snap.LLMGenerate.TotalInputTokens == nil || *snap.LLMGenerate.TotalInputTokens != 200 {
		t.Errorf("input tokens not aggregated")
	}
	if snap.LLMGenerate.TotalOutputTokens == nil || *snap.LLMGenerate.TotalOutputTokens != 100 {
		t.Errorf("output tokens not aggregated")
	}
}

func TestConcurrentRecording(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordTiming(OpLearn, time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if got := c.Snapshot().Learn.Count; got != 1000 {
		t.Errorf("count = %d, want 1000", got)
	}
}
