package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// Batch processing is more efficient than calling EmbedText multiple times.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces derived content for a topic from retrieved context
// fragments. Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Generate writes content about the topic grounded strictly in the given
	// context fragments. Returns an error when generation fails or when the
	// context is insufficient to produce grounded content.
	Generate(ctx context.Context, topic string, contextFragments []string) (string, error)
}

// RankedProduct is a product recommendation with its catalog identity.
// Results are returned in rank order, most relevant first.
type RankedProduct struct {
	Id       uint64
	Name     string
	Category string
}

// Recommender maps generated content to an ordered list of matching products.
// Implementations must be thread-safe for concurrent use.
type Recommender interface {
	// Recommend returns products relevant to the content, best match first.
	// Returns an empty slice when nothing in the catalog matches.
	Recommend(ctx context.Context, content string) ([]RankedProduct, error)
}

// CatalogSearcher looks up products by category or tag. It decouples the
// recommendation capability from the catalog's storage.
type CatalogSearcher interface {
	// FindByCategories returns up to limit products whose category or tags
	// match any of the given categories, in catalog order.
	FindByCategories(ctx context.Context, categories []string, limit int) ([]RankedProduct, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
// A provider creates and manages Embedder, Generator and Recommender instances,
// ensuring they share configuration and resources appropriately.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Generator returns the content generation service.
	// The returned Generator is safe for concurrent use.
	Generator() Generator

	// Recommender returns the product recommendation service.
	// The returned Recommender is safe for concurrent use.
	Recommender() Recommender

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
