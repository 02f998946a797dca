package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/contentforge/ai"
	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/pipeline"
	"github.com/poiesic/contentforge/storage"
)

// BatchProcessor re-embeds batches of fragments and writes the new vectors
// back to the index.
type BatchProcessor struct {
	repo           storage.FragmentRepository
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of retry attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(repo storage.FragmentRepository, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		repo:           repo,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds the text of each fragment in the batch and replaces the
// stored vectors. Vectors are normalized so cosine ranking is unaffected by
// model-specific magnitudes.
func (bp *BatchProcessor) Process(ctx context.Context, fragments []*core.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}

	texts := make([]string, len(fragments))
	for i, fragment := range fragments {
		texts[i] = fragment.Text
	}

	var embeddings [][]float32
	err := pipeline.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)

	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(fragments) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(fragments), len(embeddings))
	}

	for i := range fragments {
		fragments[i].Vector = NormalizeVector(embeddings[i])
	}

	if _, err := bp.repo.UpdateFragmentVectors(ctx, fragments...); err != nil {
		return fmt.Errorf("failed to update fragments: %w", err)
	}

	return nil
}
