package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/poiesic/contentforge/ai"
	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/storage"
)

// InvalidationMode selects how aggressively a successful ingestion evicts
// cached query results.
type InvalidationMode string

const (
	// InvalidationOff disables post-ingest cache invalidation.
	InvalidationOff InvalidationMode = "off"
	// InvalidationPrefix evicts entries tagged with the ingested document's
	// source ID. Best effort.
	InvalidationPrefix InvalidationMode = "prefix"
	// InvalidationAll evicts every query-derived cache entry.
	InvalidationAll InvalidationMode = "all"
)

// Coordinator drives the pipeline: it dispatches durable jobs to a bounded
// worker pool and runs the ingest and query state machines.
type Coordinator struct {
	fragments storage.FragmentRepository
	results   storage.ResultRepository
	cache     storage.CacheRepository
	jobs      storage.JobRepository
	provider  ai.AIProvider

	pool    *ants.Pool
	flights *flightGroup
	limiter *rate.Limiter

	maxChunkChars    int
	overlapChars     int
	searchK          int
	embedBatchSize   int
	cacheTTL         time.Duration
	maxJobAttempts   int
	jobTimeout       time.Duration
	pollInterval     time.Duration
	claimTimeout     time.Duration
	invalidationMode InvalidationMode
	reindexResults   bool

	logger *slog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	closed  bool
	jobWG   sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithPoolSize sets the worker pool size for concurrent job execution.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(c *Coordinator) error {
		if size < 1 {
			size = 1
		}
		if c.pool != nil {
			c.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		c.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "pipeline")
		return nil
	}
}

// WithChunking sets the chunker parameters used for ingestion.
func WithChunking(maxChunkChars, overlapChars int) Option {
	return func(c *Coordinator) error {
		if overlapChars <= 0 || overlapChars >= maxChunkChars {
			return fmt.Errorf("%w: overlap %d must be within (0, %d)",
				core.ErrInvalidInput, overlapChars, maxChunkChars)
		}
		c.maxChunkChars = maxChunkChars
		c.overlapChars = overlapChars
		return nil
	}
}

// WithSearchK sets how many fragments a query retrieves for generation.
func WithSearchK(k int) Option {
	return func(c *Coordinator) error {
		if k <= 0 {
			return fmt.Errorf("%w: search k must be positive", core.ErrInvalidInput)
		}
		c.searchK = k
		return nil
	}
}

// WithCacheTTL sets the lifetime of cached query results.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Coordinator) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: cache TTL must be positive", core.ErrInvalidInput)
		}
		c.cacheTTL = ttl
		return nil
	}
}

// WithMaxJobAttempts sets the queue-level retry budget for transient
// failures.
func WithMaxJobAttempts(attempts int) Option {
	return func(c *Coordinator) error {
		if attempts < 1 {
			attempts = 1
		}
		c.maxJobAttempts = attempts
		return nil
	}
}

// WithEmbedRate bounds embedding calls to limit requests per second with
// the given burst.
func WithEmbedRate(limit float64, burst int) Option {
	return func(c *Coordinator) error {
		if limit <= 0 || burst < 1 {
			return fmt.Errorf("%w: embed rate must be positive", core.ErrInvalidInput)
		}
		c.limiter = rate.NewLimiter(rate.Limit(limit), burst)
		return nil
	}
}

// WithEmbedBatchSize sets how many chunks are embedded per capability call.
func WithEmbedBatchSize(size int) Option {
	return func(c *Coordinator) error {
		if size < 1 {
			size = 1
		}
		c.embedBatchSize = size
		return nil
	}
}

// WithInvalidationMode sets the post-ingest cache invalidation policy.
func WithInvalidationMode(mode InvalidationMode) Option {
	return func(c *Coordinator) error {
		switch mode {
		case InvalidationOff, InvalidationPrefix, InvalidationAll:
			c.invalidationMode = mode
			return nil
		default:
			return fmt.Errorf("%w: unknown invalidation mode %q", core.ErrInvalidInput, mode)
		}
	}
}

// WithReindexResults controls whether generated content is chunked and
// indexed back into the vector index under a synthetic source ID.
func WithReindexResults(enabled bool) Option {
	return func(c *Coordinator) error {
		c.reindexResults = enabled
		return nil
	}
}

// WithPollInterval sets how often the dispatcher polls an empty queue.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Coordinator) error {
		if interval <= 0 {
			return fmt.Errorf("%w: poll interval must be positive", core.ErrInvalidInput)
		}
		c.pollInterval = interval
		return nil
	}
}

// WithClaimTimeout sets the watchdog deadline for stale single-flight
// claims.
func WithClaimTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: claim timeout must be positive", core.ErrInvalidInput)
		}
		c.claimTimeout = timeout
		return nil
	}
}

// WithJobTimeout bounds the wall-clock time of a single job execution.
func WithJobTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: job timeout must be positive", core.ErrInvalidInput)
		}
		c.jobTimeout = timeout
		return nil
	}
}

// NewCoordinator creates a new pipeline coordinator.
func NewCoordinator(
	fragments storage.FragmentRepository,
	results storage.ResultRepository,
	cache storage.CacheRepository,
	jobs storage.JobRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Coordinator, error) {
	if fragments == nil {
		return nil, ErrFragmentRepositoryRequired
	}
	if results == nil {
		return nil, ErrResultRepositoryRequired
	}
	if cache == nil {
		return nil, ErrCacheRepositoryRequired
	}
	if jobs == nil {
		return nil, ErrJobRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		fragments:        fragments,
		results:          results,
		cache:            cache,
		jobs:             jobs,
		provider:         provider,
		pool:             pool,
		limiter:          rate.NewLimiter(rate.Limit(10), 2),
		maxChunkChars:    1200,
		overlapChars:     150,
		searchK:          5,
		embedBatchSize:   16,
		cacheTTL:         15 * time.Minute,
		maxJobAttempts:   3,
		jobTimeout:       2 * time.Minute,
		pollInterval:     250 * time.Millisecond,
		claimTimeout:     time.Minute,
		invalidationMode: InvalidationPrefix,
		reindexResults:   false,
		logger:           slog.Default().With("component", "pipeline"),
	}

	for _, opt := range opts {
		if optErr := opt(c); optErr != nil {
			c.pool.Release()
			return nil, optErr
		}
	}

	c.flights = newFlightGroup(c.claimTimeout)
	return c, nil
}

// Start launches the dispatcher. Jobs already queued become eligible
// immediately; Submit* methods work whether or not the dispatcher runs.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCoordinatorClosed
	}
	if c.running {
		return nil
	}

	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.running = true

	go c.dispatch(c.stopCh, c.doneCh)
	return nil
}

// dispatch polls the queue and hands claimed jobs to the worker pool.
func (c *Coordinator) dispatch(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		job, err := c.jobs.Dequeue(context.Background())
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				c.logger.Error("error dequeuing job", "err", err)
			}
			select {
			case <-stopCh:
				return
			case <-time.After(c.pollInterval):
			}
			continue
		}

		c.jobWG.Add(1)
		submitErr := c.pool.Submit(func() {
			defer c.jobWG.Done()
			c.execute(job)
		})
		if submitErr != nil {
			c.jobWG.Done()
			c.logger.Error("error submitting job to pool", "job", job.Id, "err", submitErr)
			c.settleFailure(job, fmt.Errorf("%w: %v", core.ErrStorageFailure, submitErr))
		}
	}
}

// execute runs a single claimed job through its state machine and settles
// its terminal status.
func (c *Coordinator) execute(job *core.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), c.jobTimeout)
	defer cancel()

	logger := c.logger.With("job", job.Id, "kind", int(job.Kind), "attempt", job.Attempts)
	logger.Info("executing job")

	var err error
	switch job.Kind {
	case core.JobKindIngest:
		err = c.runIngest(ctx, job)
	case core.JobKindQuery:
		err = c.runQuery(ctx, job)
	default:
		err = fmt.Errorf("%w: unknown job kind %d", core.ErrInvalidInput, job.Kind)
	}

	if err == nil {
		job.Status = core.JobSucceeded
		if updateErr := c.jobs.UpdateJob(context.Background(), job); updateErr != nil {
			logger.Error("error persisting job success", "err", updateErr)
		}
		logger.Info("job succeeded", "fromCache", job.FromCache)
		return
	}

	logger.Warn("job failed", "errorKind", core.ErrorKind(err), "err", err)
	c.settleFailure(job, err)
}

// settleFailure marks a job failed and requeues it when the error is
// transient and the attempt budget allows.
func (c *Coordinator) settleFailure(job *core.Job, err error) {
	job.Status = core.JobFailed
	job.ErrorKind = core.ErrorKind(err)
	job.ErrorMessage = err.Error()

	if updateErr := c.jobs.UpdateJob(context.Background(), job); updateErr != nil {
		c.logger.Error("error persisting job failure", "job", job.Id, "err", updateErr)
		return
	}

	if core.Retryable(err) && !job.Canceled && job.Attempts < c.maxJobAttempts {
		if requeueErr := c.jobs.RequeueJob(context.Background(), job.Id); requeueErr != nil {
			c.logger.Error("error requeuing job", "job", job.Id, "err", requeueErr)
			return
		}
		c.logger.Info("job requeued for retry", "job", job.Id, "attempt", job.Attempts)
	}
}

// checkCanceled observes cooperative cancellation at a stage boundary.
func (c *Coordinator) checkCanceled(ctx context.Context, job *core.Job) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", core.ErrCanceled, ctx.Err())
	}

	stored, err := c.jobs.GetJob(ctx, job.Id)
	if err != nil {
		// The flag check is best effort; the job proceeds on a read error.
		return nil
	}
	if stored.Canceled {
		job.Canceled = true
		return fmt.Errorf("%w: job canceled", core.ErrCanceled)
	}
	return nil
}

// SubmitIngest enqueues a document for asynchronous ingestion and returns
// the job ID.
func (c *Coordinator) SubmitIngest(ctx context.Context, documentText, sourceId string) (string, error) {
	job := &core.Job{
		Id:   uuid.NewString(),
		Kind: core.JobKindIngest,
		Payload: core.JobPayload{
			DocumentText: documentText,
			SourceId:     sourceId,
		},
	}
	if err := c.enqueue(ctx, job); err != nil {
		return "", err
	}
	return job.Id, nil
}

// SubmitQuery enqueues a query for asynchronous resolution and returns the
// job ID.
func (c *Coordinator) SubmitQuery(ctx context.Context, queryText string) (string, error) {
	return c.submitQuery(ctx, queryText, false)
}

func (c *Coordinator) submitQuery(ctx context.Context, queryText string, refresh bool) (string, error) {
	job := &core.Job{
		Id:   uuid.NewString(),
		Kind: core.JobKindQuery,
		Payload: core.JobPayload{
			Query:   queryText,
			Refresh: refresh,
		},
	}
	if err := c.enqueue(ctx, job); err != nil {
		return "", err
	}
	return job.Id, nil
}

func (c *Coordinator) enqueue(ctx context.Context, job *core.Job) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrCoordinatorClosed
	}

	if err := c.jobs.Enqueue(ctx, job); err != nil {
		if errors.Is(err, core.ErrInvalidInput) {
			return err
		}
		return fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}
	c.logger.Debug("job enqueued", "job", job.Id, "kind", int(job.Kind))
	return nil
}

// JobStatus returns a snapshot of a job's current state.
func (c *Coordinator) JobStatus(ctx context.Context, jobId string) (*core.Job, error) {
	return c.jobs.GetJob(ctx, jobId)
}

// CancelJob requests cooperative cancellation of a job.
func (c *Coordinator) CancelJob(ctx context.Context, jobId string) error {
	return c.jobs.CancelJob(ctx, jobId)
}

// Warm refreshes cached entries for the given topics. Topics with a live
// cache entry get a new TTL; topics without one are enqueued as refresh
// queries so the pipeline populates them. Returns the job IDs of enqueued
// queries.
func (c *Coordinator) Warm(ctx context.Context, topics []string) ([]string, error) {
	var jobIds []string
	for _, topic := range topics {
		key := core.CacheKeyForQuery(topic)

		entry, err := c.cache.Get(ctx, key)
		if err == nil {
			entry.ExpiresAt = time.Now().UTC().Add(c.cacheTTL)
			entry.Version = 0 // reassigned on put
			if putErr := c.cache.Put(ctx, entry); putErr != nil {
				c.logger.Warn("error refreshing cache entry", "key", key, "err", putErr)
			}
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("error reading cache entry during warm-up", "key", key, "err", err)
		}

		jobId, err := c.submitQuery(ctx, topic, true)
		if err != nil {
			return jobIds, err
		}
		jobIds = append(jobIds, jobId)
	}
	return jobIds, nil
}

// Shutdown stops the dispatcher, waits for in-flight jobs to drain (or ctx
// to expire) and releases the worker pool. The coordinator cannot be
// restarted afterwards.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	running := c.running
	stopCh, doneCh := c.stopCh, c.doneCh
	c.running = false
	c.mu.Unlock()

	if running {
		close(stopCh)
		<-doneCh
	}

	drained := make(chan struct{})
	go func() {
		c.jobWG.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
	}

	c.pool.Release()
	return err
}
