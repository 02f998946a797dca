package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/contentforge/ai"
	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/storage"
)

// runQuery executes the query state machine: cache check, single-flight
// claim, retrieve, generate, recommend, cache write.
func (c *Coordinator) runQuery(ctx context.Context, job *core.Job) error {
	key := core.CacheKeyForQuery(job.Payload.Query)

	if !job.Payload.Refresh && c.tryCache(ctx, job, key) {
		return nil
	}

	leader, f := c.flights.Claim(key)
	if !leader {
		resultId, err := c.flights.Wait(ctx, f)
		switch {
		case err == nil:
			// The leader computed on our behalf; this job is served from
			// the shared result.
			job.ResultId = resultId
			job.FromCache = true
			return nil
		case errors.Is(err, ErrFlightTimeout):
			// The leader went stale and the watchdog released its claim.
			// Compute directly rather than hanging on a dead flight.
			c.logger.Warn("single-flight claim went stale, computing directly",
				"job", job.Id, "key", key)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("%w: %v", core.ErrCanceled, err)
		default:
			// The leader failed; the failure kind applies to this job too.
			return err
		}
	}

	resultId, err := c.computeQuery(ctx, job, key)
	if leader {
		c.flights.Release(key, f, resultId, err)
	}
	if err != nil {
		return err
	}

	job.ResultId = resultId
	job.FromCache = false
	return nil
}

// tryCache resolves the job from a live cache entry, if one exists.
func (c *Coordinator) tryCache(ctx context.Context, job *core.Job, key string) bool {
	entry, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			// A broken cache degrades to a recompute, never a failed job.
			c.logger.Warn("error reading cache", "key", key, "err", err)
		}
		return false
	}

	job.ResultId = entry.Payload.Id
	job.FromCache = true
	c.logger.Debug("query served from cache", "job", job.Id, "key", key)
	return true
}

// computeQuery runs the full retrieval pipeline for a cache miss and
// returns the persisted result ID.
func (c *Coordinator) computeQuery(ctx context.Context, job *core.Job, key string) (core.ID, error) {
	query := job.Payload.Query

	if err := c.checkCanceled(ctx, job); err != nil {
		return 0, err
	}

	vector, err := c.provider.Embedder().EmbedText(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrEmbeddingUnavailable, err)
	}

	matches, err := c.fragments.FindNearest(ctx, vector, c.searchK)
	if err != nil {
		if errors.Is(err, core.ErrInvalidInput) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}

	texts := make([]string, len(matches))
	fragmentIds := make([]core.ID, len(matches))
	sourceTags := make([]string, 0, len(matches))
	seenSources := make(map[string]bool)
	for i, match := range matches {
		texts[i] = match.Fragment.Text
		fragmentIds[i] = match.Fragment.Id
		if !seenSources[match.Fragment.SourceDocumentId] {
			seenSources[match.Fragment.SourceDocumentId] = true
			sourceTags = append(sourceTags, match.Fragment.SourceDocumentId)
		}
	}

	if err := c.checkCanceled(ctx, job); err != nil {
		return 0, err
	}

	content, err := c.provider.Generator().Generate(ctx, query, texts)
	if err != nil {
		if errors.Is(err, ai.ErrInsufficientContext) {
			// Not transient: retrying without new ingested context cannot
			// succeed, so it surfaces as a caller problem.
			return 0, fmt.Errorf("%w: no relevant indexed content for %q", core.ErrInvalidInput, query)
		}
		return 0, fmt.Errorf("%w: %v", core.ErrGenerationUnavailable, err)
	}

	// Recommendation failures degrade to an empty product list.
	var productIds []core.ID
	ranked, err := c.provider.Recommender().Recommend(ctx, content)
	if err != nil {
		c.logger.Warn("recommendation degraded to empty product list", "job", job.Id, "err", err)
	} else {
		productIds = make([]core.ID, len(ranked))
		for i, product := range ranked {
			productIds[i] = core.ID(product.Id)
		}
	}

	result := &core.GeneratedResult{
		Id:                core.IDFromContent(key + content),
		QueryOrTopic:      query,
		Content:           content,
		SourceFragmentIds: fragmentIds,
		ProductIds:        productIds,
	}
	if err := c.results.SaveResult(ctx, result); err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}

	entry := &core.CacheEntry{
		Key:       key,
		Payload:   *result,
		ExpiresAt: time.Now().UTC().Add(c.cacheTTL),
	}
	if err := c.cache.Put(ctx, entry, sourceTags...); err != nil {
		// The result itself is durable; a failed cache write only costs
		// the next identical query a recompute.
		c.logger.Warn("error writing cache entry", "key", key, "err", err)
	}

	if c.reindexResults {
		c.reindexGenerated(ctx, result)
	}

	return result.Id, nil
}

// reindexGenerated feeds generated content back through ingestion under a
// synthetic source ID, making past answers retrievable context for future
// queries. Best effort.
func (c *Coordinator) reindexGenerated(ctx context.Context, result *core.GeneratedResult) {
	reindexJob := &core.Job{
		Id:   uuid.NewString(),
		Kind: core.JobKindIngest,
		Payload: core.JobPayload{
			DocumentText: result.Content,
			SourceId:     fmt.Sprintf("generated:%d", result.Id),
		},
	}
	if err := c.jobs.Enqueue(ctx, reindexJob); err != nil {
		c.logger.Warn("error enqueuing reindex job", "result", uint64(result.Id), "err", err)
	}
}
