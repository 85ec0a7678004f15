// Package memory stores typed facts, preferences, and lessons in a vector
// backend and recalls them by semantic similarity. Scopes narrow recall to
// a session, workspace, or agent; hooks feed auto-capture and auto-recall.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/sagerun/sage/internal/memory/backend"
	"github.com/sagerun/sage/internal/memory/backend/pgvector"
	"github.com/sagerun/sage/internal/memory/backend/sqlitevec"
	"github.com/sagerun/sage/internal/memory/embeddings"
	"github.com/sagerun/sage/internal/memory/embeddings/ollama"
	"github.com/sagerun/sage/internal/memory/embeddings/openai"
	"github.com/sagerun/sage/pkg/models"
)

// Config configures the memory manager.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Backend   string `yaml:"backend"`   // sqlite-vec, pgvector
	Dimension int    `yaml:"dimension"` // Must match the embedding model

	SQLiteVec SQLiteVecConfig `yaml:"sqlite_vec"`
	Pgvector  PgvectorConfig  `yaml:"pgvector"`

	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Indexing   IndexingConfig   `yaml:"indexing"`
	Search     SearchConfig     `yaml:"search"`
}

// SQLiteVecConfig locates the sqlite-vec database file.
type SQLiteVecConfig struct {
	Path string `yaml:"path"`
}

// PgvectorConfig configures the Postgres/pgvector backend.
type PgvectorConfig struct {
	// DSN is the connection string; DB (set programmatically) reuses an
	// existing connection instead.
	DSN string  `yaml:"dsn"`
	DB  *sql.DB `yaml:"-"`

	// RunMigrations applies the schema on startup when true; the zero
	// value skips migrations.
	RunMigrations bool `yaml:"run_migrations"`

	// UseCockroachDB is decoded but read by no component; the backend
	// connects only through DSN or DB.
	UseCockroachDB bool `yaml:"use_cockroachdb"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider string `yaml:"provider"` // openai, ollama
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`

	OllamaURL string `yaml:"ollama_url"`
}

// IndexingConfig controls automatic indexing behavior.
type IndexingConfig struct {
	AutoIndexMessages bool `yaml:"auto_index_messages"`
	MinContentLength  int  `yaml:"min_content_length"`
	BatchSize         int  `yaml:"batch_size"`
}

// SearchConfig carries default search parameters.
type SearchConfig struct {
	DefaultLimit     int     `yaml:"default_limit"`
	DefaultThreshold float32 `yaml:"default_threshold"`
	DefaultScope     string  `yaml:"default_scope"`

	// Hierarchy controls scope-cascading search.
	Hierarchy HierarchySearchConfig `yaml:"hierarchy"`
}

// HierarchySearchConfig configures hierarchical (multi-scope) search.
type HierarchySearchConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxResults int  `yaml:"max_results"`
	// Scopes lists the scopes to cascade through, narrowest first.
	// Defaults to session, agent, workspace, global.
	Scopes []string `yaml:"scopes"`
	// Weights scales each scope's similarity scores when merging.
	Weights map[string]float32 `yaml:"weights"`
}

func (c *Config) applyDefaults() {
	if c.Dimension == 0 {
		c.Dimension = 1536
	}
	if c.Indexing.BatchSize == 0 {
		c.Indexing.BatchSize = 100
	}
	if c.Indexing.MinContentLength == 0 {
		c.Indexing.MinContentLength = 10
	}
	if c.Search.DefaultLimit == 0 {
		c.Search.DefaultLimit = 10
	}
	if c.Search.DefaultThreshold == 0 {
		c.Search.DefaultThreshold = 0.7
	}
	if c.Search.DefaultScope == "" {
		c.Search.DefaultScope = "session"
	}
}

// Manager owns one vector backend and one embedding provider, plus a small
// cache of query embeddings.
type Manager struct {
	backend  backend.Backend
	embedder embeddings.Provider
	config   *Config
	cache    *embeddingCache
}

// NewManager builds a Manager, or (nil, nil) when memory is disabled.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.applyDefaults()

	b, err := openBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize backend: %w", err)
	}

	emb, err := openEmbedder(cfg)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}
	if emb.Dimension() != cfg.Dimension {
		b.Close()
		return nil, fmt.Errorf("dimension mismatch: config=%d, embedder=%d", cfg.Dimension, emb.Dimension())
	}

	return &Manager{
		backend:  b,
		embedder: emb,
		config:   cfg,
		cache:    newEmbeddingCache(1000),
	}, nil
}

func openBackend(cfg *Config) (backend.Backend, error) {
	switch cfg.Backend {
	case "sqlite-vec", "sqlite", "":
		return sqlitevec.New(sqlitevec.Config{
			Path:      cfg.SQLiteVec.Path,
			Dimension: cfg.Dimension,
		})
	case "pgvector", "postgres", "postgresql":
		return pgvector.New(pgvector.Config{
			DSN:           cfg.Pgvector.DSN,
			DB:            cfg.Pgvector.DB,
			Dimension:     cfg.Dimension,
			RunMigrations: cfg.Pgvector.RunMigrations,
		})
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}

func openEmbedder(cfg *Config) (embeddings.Provider, error) {
	switch cfg.Embeddings.Provider {
	case "openai", "":
		return openai.New(openai.Config{
			APIKey:  cfg.Embeddings.APIKey,
			BaseURL: cfg.Embeddings.BaseURL,
			Model:   cfg.Embeddings.Model,
		})
	case "ollama":
		return ollama.New(ollama.Config{
			BaseURL: cfg.Embeddings.OllamaURL,
			Model:   cfg.Embeddings.Model,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embeddings.Provider)
	}
}

// Index stores entries, embedding any that arrive without a vector and are
// long enough to be worth indexing.
func (m *Manager) Index(ctx context.Context, entries []*models.MemoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var pending []*models.MemoryEntry
	for _, entry := range entries {
		if len(entry.Embedding) == 0 && len(entry.Content) >= m.config.Indexing.MinContentLength {
			pending = append(pending, entry)
		}
	}

	batchSize := m.embedder.MaxBatchSize()
	if m.config.Indexing.BatchSize > 0 && m.config.Indexing.BatchSize < batchSize {
		batchSize = m.config.Indexing.BatchSize
	}
	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, entry := range batch {
			texts[i] = entry.Content
		}
		vectors, err := m.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("generate embeddings: %w", err)
		}
		for i, entry := range batch {
			entry.Embedding = vectors[i]
		}
	}

	return m.backend.Index(ctx, entries)
}

// Search finds memories by semantic similarity, filling request defaults
// from config and caching query embeddings.
func (m *Manager) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	start := time.Now()

	if req.Limit == 0 {
		req.Limit = m.config.Search.DefaultLimit
	}
	if req.Threshold == 0 {
		req.Threshold = m.config.Search.DefaultThreshold
	}
	if req.Scope == "" {
		req.Scope = models.MemoryScope(m.config.Search.DefaultScope)
	}

	queryEmbed, err := m.embedQuery(ctx, fmt.Sprintf("%s:%s", req.Scope, req.Query), req.Query)
	if err != nil {
		return nil, err
	}

	results, err := m.backend.Search(ctx, queryEmbed, &backend.SearchOptions{
		Scope:     req.Scope,
		ScopeID:   req.ScopeID,
		Limit:     req.Limit,
		Threshold: req.Threshold,
		Filters:   req.Filters,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return &models.SearchResponse{
		Results:    results,
		TotalCount: len(results),
		QueryTime:  time.Since(start),
	}, nil
}

// embedQuery resolves a query's embedding through the cache.
func (m *Manager) embedQuery(ctx context.Context, cacheKey, query string) ([]float32, error) {
	if embed, ok := m.cache.get(cacheKey); ok {
		return embed, nil
	}
	embed, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	m.cache.set(cacheKey, embed)
	return embed, nil
}

// Delete removes entries by id.
func (m *Manager) Delete(ctx context.Context, ids []string) error {
	return m.backend.Delete(ctx, ids)
}

// Count reports how many entries live in a scope.
func (m *Manager) Count(ctx context.Context, scope models.MemoryScope, scopeID string) (int64, error) {
	return m.backend.Count(ctx, scope, scopeID)
}

// Compact asks the backend to optimize its storage.
func (m *Manager) Compact(ctx context.Context) error {
	return m.backend.Compact(ctx)
}

// Stats describes the store for diagnostics.
type Stats struct {
	TotalEntries      int64  `json:"total_entries"`
	Backend           string `json:"backend"`
	EmbeddingProvider string `json:"embedding_provider"`
	EmbeddingModel    string `json:"embedding_model"`
	Dimension         int    `json:"dimension"`
}

// Stats snapshots the store's shape and size.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	total, err := m.backend.Count(ctx, models.ScopeGlobal, "")
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalEntries:      total,
		Backend:           m.config.Backend,
		EmbeddingProvider: m.embedder.Name(),
		EmbeddingModel:    m.config.Embeddings.Model,
		Dimension:         m.config.Dimension,
	}, nil
}

// Close releases the backend.
func (m *Manager) Close() error {
	return m.backend.Close()
}

// embeddingCache is a FIFO-bounded map of query embeddings.
type embeddingCache struct {
	mu       sync.Mutex
	items    map[string][]float32
	order    []string
	capacity int
}

func newEmbeddingCache(capacity int) *embeddingCache {
	return &embeddingCache{items: make(map[string][]float32), capacity: capacity}
}

func (c *embeddingCache) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *embeddingCache) set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
		if len(c.order) > c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.items, oldest)
		}
	}
	c.items[key] = value
}
