package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

func init() {
	// Force HTTP/1.1 for WSS connections to prevent HTTP/2 ALPN negotiation.
	// WebSocket upgrade requires HTTP/1.1 semantics which fail under HTTP/2.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// SurrealConfig holds SurrealDB connection configuration.
type SurrealConfig struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"
}

// SurrealStore persists learned sources and chunks in SurrealDB over an
// auto-reconnecting WebSocket.
type SurrealStore struct {
	conn     *rews.Connection[*gorillaws.Connection]
	db       *surrealdb.DB
	cfg      SurrealConfig
	chunkCfg ChunkConfig
	logger   logger.Logger
}

// source mirrors the source table row.
type source struct {
	ID          surrealmodels.RecordID `json:"id"`
	URL         string                 `json:"url"`
	Title       *string                `json:"title,omitempty"`
	ContentHash string                 `json:"content_hash"`
	ChunkCount  int                    `json:"chunk_count"`
	LearnedAt   time.Time              `json:"learned_at"`
}

// NewSurrealStore connects to SurrealDB and initializes the schema.
func NewSurrealStore(ctx context.Context, cfg SurrealConfig, log *slog.Logger) (*SurrealStore, error) {
	var sdkLogger logger.Logger
	if log != nil {
		sdkLogger = logger.New(log.Handler())
	} else {
		sdkLogger = logger.New(slog.Default().Handler())
	}

	// surrealcbor handles SurrealDB custom CBOR tags.
	codec := surrealcbor.New()

	// gorillaws requires the base URL without the /rpc suffix.
	baseURL := strings.TrimSuffix(cfg.URL, "/rpc")

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			ws := gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			})
			return ws, nil
		},
		5*time.Second,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = 1 * time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = 10
	conn.Retryer = retryer

	sdkLogger.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("from connection: %w", err)
	}

	if cfg.AuthLevel == "database" {
		_, err = db.SignIn(ctx, surrealdb.Auth{
			Namespace: cfg.Namespace,
			Database:  cfg.Database,
			Username:  cfg.Username,
			Password:  cfg.Password,
		})
	} else {
		_, err = db.SignIn(ctx, surrealdb.Auth{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("signin: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use: %w", err)
	}

	s := &SurrealStore{
		conn:     conn,
		db:       db,
		cfg:      cfg,
		chunkCfg: DefaultChunkConfig(),
		logger:   sdkLogger,
	}
	if err := s.initSchema(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}

	sdkLogger.Info("SurrealDB store ready")
	return s, nil
}

func (s *SurrealStore) initSchema(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, s.db, SchemaSQL, nil); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Learn stores a page's chunks, replacing any previous version of the
// same URL. Unchanged content is skipped unless forced.
func (s *SurrealStore) Learn(ctx context.Context, url, title, content string, force bool) (LearnResult, error) {
	hash := contentHash(content)

	existing, err := s.getSource(ctx, url)
	if err != nil {
		return LearnResult{}, err
	}
	if existing != nil && existing.ContentHash == hash && !force {
		return LearnResult{Skipped: true}, nil
	}

	chunks := Chunk(content, s.chunkCfg)

	// Replace: drop old chunks, upsert source, insert chunks. SurrealDB
	// runs the statements of one query atomically.
	vars := map[string]any{
		"url":   url,
		"hash":  hash,
		"count": len(chunks),
	}
	if title != "" {
		vars["title"] = title
	} else {
		vars["title"] = nil
	}

	_, err = surrealdb.Query[any](ctx, s.db, `
		DELETE chunk WHERE source.url = $url;
		UPSERT source SET
			url = $url,
			title = $title,
			content_hash = $hash,
			chunk_count = $count,
			learned_at = time::now()
		WHERE url = $url
	`, vars)
	if err != nil {
		return LearnResult{}, fmt.Errorf("upsert source %s: %w", url, err)
	}

	src, err := s.getSource(ctx, url)
	if err != nil {
		return LearnResult{}, err
	}
	if src == nil {
		return LearnResult{}, fmt.Errorf("source %s vanished after upsert", url)
	}

	for i, chunk := range chunks {
		_, err = surrealdb.Query[any](ctx, s.db, `
			CREATE chunk SET
				source = $source,
				content = $content,
				position = $position
		`, map[string]any{
			"source":   src.ID,
			"content":  chunk,
			"position": i,
		})
		if err != nil {
			return LearnResult{}, fmt.Errorf("create chunk %d of %s: %w", i, url, err)
		}
	}

	return LearnResult{Chunks: len(chunks)}, nil
}

func (s *SurrealStore) getSource(ctx context.Context, url string) (*source, error) {
	results, err := surrealdb.Query[[]source](ctx, s.db, `
		SELECT * FROM source WHERE url = $url LIMIT 1
	`, map[string]any{"url": url})
	if err != nil {
		return nil, fmt.Errorf("get source %s: %w", url, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// ChunkContents returns the stored chunk texts for a URL in position
// order. Used by tests and diagnostics.
func (s *SurrealStore) ChunkContents(ctx context.Context, url string) ([]string, error) {
	type row struct {
		Content string `json:"content"`
	}
	results, err := surrealdb.Query[[]row](ctx, s.db, `
		SELECT content FROM chunk WHERE source.url = $url ORDER BY position
	`, map[string]any{"url": url})
	if err != nil {
		return nil, fmt.Errorf("list chunks of %s: %w", url, err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	contents := make([]string, 0, len((*results)[0].Result))
	for _, r := range (*results)[0].Result {
		contents = append(contents, r.Content)
	}
	return contents, nil
}

// Close closes the SurrealDB connection.
func (s *SurrealStore) Close(ctx context.Context) error {
	s.logger.Info("closing SurrealDB connection")
	return s.conn.Close(ctx)
}
