package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/contentforge/chunker"
	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/storage"
)

// runIngest executes the ingestion state machine: chunk, embed in batches,
// insert idempotently, then best-effort cache invalidation.
//
// The whole document is one job. A mid-batch failure leaves earlier batches
// inserted; the queue-level retry re-runs the job and the idempotent insert
// makes the replay harmless.
func (c *Coordinator) runIngest(ctx context.Context, job *core.Job) error {
	pieces, err := chunker.Chunk(job.Payload.DocumentText, c.maxChunkChars, c.overlapChars)
	if err != nil {
		return err
	}

	fragments := make([]*core.Fragment, len(pieces))
	for i, piece := range pieces {
		fragments[i] = &core.Fragment{
			Id: core.IDFromContent(fmt.Sprintf("%s#%d:%s",
				job.Payload.SourceId, piece.PositionIndex, piece.Text)),
			SourceDocumentId: job.Payload.SourceId,
			Text:             piece.Text,
			PositionIndex:    piece.PositionIndex,
		}
	}

	embedder := c.provider.Embedder()
	for start := 0; start < len(fragments); start += c.embedBatchSize {
		end := start + c.embedBatchSize
		if end > len(fragments) {
			end = len(fragments)
		}
		batch := fragments[start:end]

		if err := c.checkCanceled(ctx, job); err != nil {
			return err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", core.ErrCanceled, err)
		}

		texts := make([]string, len(batch))
		for i, fragment := range batch {
			texts[i] = fragment.Text
		}

		vectors, err := embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrEmbeddingUnavailable, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("%w: expected %d embeddings, received %d",
				core.ErrEmbeddingUnavailable, len(batch), len(vectors))
		}
		for i := range batch {
			batch[i].Vector = vectors[i]
		}

		if _, err := c.fragments.AddFragments(ctx, batch...); err != nil {
			switch {
			case errors.Is(err, core.ErrInvalidInput):
				return err
			case errors.Is(err, storage.ErrDimensionMismatch):
				return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
			default:
				return fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
			}
		}

		c.logger.Debug("ingested fragment batch",
			"job", job.Id, "source", job.Payload.SourceId,
			"batch", len(batch), "total", len(fragments))
	}

	c.invalidateAfterIngest(ctx, job.Payload.SourceId)

	c.logger.Info("document ingested",
		"job", job.Id, "source", job.Payload.SourceId, "fragments", len(fragments))
	return nil
}

// invalidateAfterIngest evicts cache entries made stale by new fragments.
// Best effort: eviction failures are logged, never fail the job.
func (c *Coordinator) invalidateAfterIngest(ctx context.Context, sourceId string) {
	switch c.invalidationMode {
	case InvalidationOff:
		return
	case InvalidationPrefix:
		removed, err := c.cache.InvalidateTag(ctx, sourceId)
		if err != nil {
			c.logger.Warn("error invalidating cache by tag", "source", sourceId, "err", err)
			return
		}
		if removed > 0 {
			c.logger.Debug("cache entries invalidated", "source", sourceId, "removed", removed)
		}
	case InvalidationAll:
		removed, err := c.cache.InvalidatePrefix(ctx, core.CacheKeyPrefix)
		if err != nil {
			c.logger.Warn("error invalidating cache", "err", err)
			return
		}
		if removed > 0 {
			c.logger.Debug("cache entries invalidated", "removed", removed)
		}
	}
}
