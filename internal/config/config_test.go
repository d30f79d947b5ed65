package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":8765" {
		t.Errorf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.CrawlConcurrency != 4 {
		t.Errorf("unexpected crawl concurrency %d", cfg.CrawlConcurrency)
	}
	if cfg.DefaultAgentCount != 3 {
		t.Errorf("unexpected agent count %d", cfg.DefaultAgentCount)
	}
}

func TestConfigFileAndEnvLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fieldwork.yaml")
	content := `
listen: ":9999"
llm:
  provider: anthropic
  model: claude-sonnet-4-5
crawl:
  concurrency: 2
  page_timeout: 5s
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FIELDWORK_CONFIG", path)
	// Env must win over the file.
	t.Setenv("FIELDWORK_LISTEN", ":7777")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != ":7777" {
		t.Errorf("env did not override file: %q", cfg.ListenAddr)
	}
	if cfg.LLMProvider != ProviderAnthropic {
		t.Errorf("file provider not applied: %q", cfg.LLMProvider)
	}
	if cfg.LLMModel != "claude-sonnet-4-5" {
		t.Errorf("file model not applied: %q", cfg.LLMModel)
	}
	if cfg.CrawlConcurrency != 2 {
		t.Errorf("file concurrency not applied: %d", cfg.CrawlConcurrency)
	}
	if cfg.PageTimeout != 5*time.Second {
		t.Errorf("file page_timeout not applied: %s", cfg.PageTimeout)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("file log level not applied: %v", cfg.LogLevel)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in, slog.LevelInfo); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
