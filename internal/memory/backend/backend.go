// Package backend defines the storage contract behind the memory manager
// and the search options every implementation honors.
package backend

import (
	"context"

	"github.com/sagerun/sage/pkg/models"
)

// Backend is a vector store for memory entries.
type Backend interface {
	// Index upserts entries with their embeddings.
	Index(ctx context.Context, entries []*models.MemoryEntry) error

	// Search ranks entries against the query embedding.
	Search(ctx context.Context, embedding []float32, opts *SearchOptions) ([]*models.SearchResult, error)

	// Delete removes entries by id.
	Delete(ctx context.Context, ids []string) error

	// Count reports how many entries match the scope.
	Count(ctx context.Context, scope models.MemoryScope, scopeID string) (int64, error)

	// Compact optimizes storage (vacuum, reindex).
	Compact(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// SearchMode selects the ranking algorithm, for backends that offer more
// than plain vector similarity.
type SearchMode string

const (
	// SearchModeVector ranks by vector similarity (the default).
	SearchModeVector SearchMode = "vector"

	// SearchModeBM25 ranks by BM25 full-text relevance.
	SearchModeBM25 SearchMode = "bm25"

	// SearchModeHybrid fuses vector and BM25 rankings.
	SearchModeHybrid SearchMode = "hybrid"
)

// SearchOptions parameterizes one search.
type SearchOptions struct {
	Scope     models.MemoryScope
	ScopeID   string
	Limit     int
	Threshold float32
	Filters   map[string]any

	// SearchMode defaults to vector similarity.
	SearchMode SearchMode

	// HybridAlpha weights hybrid fusion: 0 = pure BM25, 1 = pure vector
	// (default 0.7).
	HybridAlpha float32

	// Query carries the raw text BM25 and hybrid modes rank against.
	Query string
}
