// Package embedding provides text embedding generation with multiple backend support.
package embedding

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/pulse/internal/config"
)

// Embedder defines the interface for text embedding providers.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	// More efficient than multiple Embed calls for bulk operations.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the embedding vector dimension.
	// CRITICAL: Must match HNSW index dimension in SurrealDB schema.
	Dimension() int
}

// New creates an Embedder from the loaded configuration.
func New(cfg config.Config) (Embedder, error) {
	switch cfg.EmbedProvider {
	case config.ProviderOllama, "":
		return NewOllamaClient(cfg.OllamaHost, cfg.EmbedModel, cfg.EmbedDimension)

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider requires API key")
		}
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.EmbedModel, cfg.EmbedDimension)

	case config.ProviderVoyage:
		if cfg.VoyageAPIKey == "" {
			return nil, fmt.Errorf("voyage provider requires API key")
		}
		return NewVoyageClient(cfg.VoyageAPIKey, cfg.EmbedModel, cfg.EmbedDimension)

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.EmbedProvider)
	}
}

// DefaultOllama returns the default local embedder (all-minilm:l6-v2, 384-dim).
func DefaultOllama() (Embedder, error) {
	return NewOllamaClient("", "", 0)
}
