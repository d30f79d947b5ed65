// Package config loads fieldwork configuration from an optional YAML
// file and environment variables. Env vars always win.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider identifies the LLM backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderBedrock   Provider = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// HTTP server
	ListenAddr string

	// LLM
	LLMProvider     Provider
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Knowledge store: "memory" or "surreal"
	StoreBackend string

	// SurrealDB connection (surreal backend)
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Host-supplied capabilities
	SearchURL  string // web search endpoint; empty disables searching
	SandboxURL string // code sandbox endpoint; empty disables code runs

	// Crawl coordinator
	CrawlConcurrency int
	CrawlMaxPages    int
	PageTimeout      time.Duration

	// Default budgets for submitted jobs
	DefaultMaxSearches int
	DefaultMaxPages    int
	DefaultAgentCount  int

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// fileConfig mirrors Config for the optional YAML config file.
type fileConfig struct {
	Listen string `yaml:"listen"`

	LLM struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
	} `yaml:"llm"`

	Store struct {
		Backend   string `yaml:"backend"`
		URL       string `yaml:"url"`
		Namespace string `yaml:"namespace"`
		Database  string `yaml:"database"`
		User      string `yaml:"user"`
		Pass      string `yaml:"pass"`
	} `yaml:"store"`

	SearchURL  string `yaml:"search_url"`
	SandboxURL string `yaml:"sandbox_url"`

	Crawl struct {
		Concurrency int    `yaml:"concurrency"`
		MaxPages    int    `yaml:"max_pages"`
		PageTimeout string `yaml:"page_timeout"`
	} `yaml:"crawl"`

	Budget struct {
		MaxSearches int `yaml:"max_searches"`
		MaxPages    int `yaml:"max_pages"`
		AgentCount  int `yaml:"agent_count"`
	} `yaml:"budget"`

	Log struct {
		File  string `yaml:"file"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads configuration, layering env vars over the YAML file named
// by FIELDWORK_CONFIG (if set) over built-in defaults.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:         ":8765",
		LLMProvider:        ProviderOllama,
		LLMModel:           "llama3.1",
		OllamaHost:         "http://localhost:11434",
		StoreBackend:       "surreal",
		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "assistant",
		SurrealDBDatabase:  "knowledge",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",
		CrawlConcurrency:   4,
		CrawlMaxPages:      50,
		PageTimeout:        20 * time.Second,
		DefaultMaxSearches: 5,
		DefaultMaxPages:    10,
		DefaultAgentCount:  3,
		LogFile:            "/tmp/fieldwork.log",
		LogLevel:           slog.LevelInfo,
	}

	if path := os.Getenv("FIELDWORK_CONFIG"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setStr(&cfg.ListenAddr, fc.Listen)
	if fc.LLM.Provider != "" {
		cfg.LLMProvider = Provider(fc.LLM.Provider)
	}
	setStr(&cfg.LLMModel, fc.LLM.Model)
	setStr(&cfg.StoreBackend, fc.Store.Backend)
	setStr(&cfg.SurrealDBURL, fc.Store.URL)
	setStr(&cfg.SurrealDBNamespace, fc.Store.Namespace)
	setStr(&cfg.SurrealDBDatabase, fc.Store.Database)
	setStr(&cfg.SurrealDBUser, fc.Store.User)
	setStr(&cfg.SurrealDBPass, fc.Store.Pass)
	setStr(&cfg.SearchURL, fc.SearchURL)
	setStr(&cfg.SandboxURL, fc.SandboxURL)
	setInt(&cfg.CrawlConcurrency, fc.Crawl.Concurrency)
	setInt(&cfg.CrawlMaxPages, fc.Crawl.MaxPages)
	if fc.Crawl.PageTimeout != "" {
		d, err := time.ParseDuration(fc.Crawl.PageTimeout)
		if err != nil {
			return fmt.Errorf("parse crawl.page_timeout: %w", err)
		}
		cfg.PageTimeout = d
	}
	setInt(&cfg.DefaultMaxSearches, fc.Budget.MaxSearches)
	setInt(&cfg.DefaultMaxPages, fc.Budget.MaxPages)
	setInt(&cfg.DefaultAgentCount, fc.Budget.AgentCount)
	setStr(&cfg.LogFile, fc.Log.File)
	if fc.Log.Level != "" {
		cfg.LogLevel = parseLogLevel(fc.Log.Level, cfg.LogLevel)
	}

	return nil
}

func applyEnv(cfg *Config) {
	cfg.ListenAddr = getEnv("FIELDWORK_LISTEN", cfg.ListenAddr)
	cfg.LLMProvider = Provider(getEnv("FIELDWORK_LLM_PROVIDER", string(cfg.LLMProvider)))
	cfg.LLMModel = getEnv("FIELDWORK_LLM_MODEL", cfg.LLMModel)
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)

	cfg.StoreBackend = getEnv("FIELDWORK_STORE", cfg.StoreBackend)
	cfg.SurrealDBURL = getEnv("SURREALDB_URL", cfg.SurrealDBURL)
	cfg.SurrealDBNamespace = getEnv("SURREALDB_NAMESPACE", cfg.SurrealDBNamespace)
	cfg.SurrealDBDatabase = getEnv("SURREALDB_DATABASE", cfg.SurrealDBDatabase)
	cfg.SurrealDBUser = getEnv("SURREALDB_USER", cfg.SurrealDBUser)
	cfg.SurrealDBPass = getEnv("SURREALDB_PASS", cfg.SurrealDBPass)
	cfg.SurrealDBAuthLevel = getEnv("SURREALDB_AUTH_LEVEL", cfg.SurrealDBAuthLevel)

	cfg.SearchURL = getEnv("FIELDWORK_SEARCH_URL", cfg.SearchURL)
	cfg.SandboxURL = getEnv("FIELDWORK_SANDBOX_URL", cfg.SandboxURL)

	cfg.CrawlConcurrency = getEnvInt("FIELDWORK_CRAWL_CONCURRENCY", cfg.CrawlConcurrency)
	cfg.CrawlMaxPages = getEnvInt("FIELDWORK_CRAWL_MAX_PAGES", cfg.CrawlMaxPages)
	if v := os.Getenv("FIELDWORK_PAGE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PageTimeout = d
		}
	}

	cfg.DefaultMaxSearches = getEnvInt("FIELDWORK_MAX_SEARCHES", cfg.DefaultMaxSearches)
	cfg.DefaultMaxPages = getEnvInt("FIELDWORK_MAX_PAGES", cfg.DefaultMaxPages)
	cfg.DefaultAgentCount = getEnvInt("FIELDWORK_AGENT_COUNT", cfg.DefaultAgentCount)

	cfg.LogFile = getEnv("FIELDWORK_LOG_FILE", cfg.LogFile)
	cfg.LogLevel = parseLogLevel(os.Getenv("FIELDWORK_LOG_LEVEL"), cfg.LogLevel)
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

func parseLogLevel(s string, def slog.Level) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return def
	}
}
