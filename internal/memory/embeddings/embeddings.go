// Package embeddings defines the embedding-provider contract the memory
// manager generates vectors through.
package embeddings

import "context"

// Provider turns text into embedding vectors. Batch embedding is the
// primary path; Embed is the single-text convenience.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name identifies the provider for diagnostics.
	Name() string

	// Dimension is the vector size the configured model produces; the
	// manager refuses a backend whose dimension disagrees.
	Dimension() int

	// MaxBatchSize caps how many texts one EmbedBatch call may carry.
	MaxBatchSize() int
}
