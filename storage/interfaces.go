package storage

import (
	"context"

	"github.com/poiesic/contentforge/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the repository and releases resources.
	Close() error
}

// FragmentRepository is the vector index: it stores embedded document
// fragments and answers nearest-neighbor queries over them.
type FragmentRepository interface {
	Repository
	// AddFragments inserts one or more fragments. Insert is idempotent by
	// fragment ID: re-inserting an existing ID overwrites the record and
	// never duplicates it. Fragments are durable before the call returns.
	// Sets CreatedAt if not already set. The vector length of the first
	// inserted fragment fixes the index dimension; later inserts with a
	// different length fail with ErrDimensionMismatch.
	AddFragments(ctx context.Context, fragments ...*core.Fragment) ([]*core.Fragment, error)

	// GetFragment retrieves a single fragment by ID.
	// Returns ErrNotFound if the fragment doesn't exist.
	GetFragment(ctx context.Context, id core.ID) (*core.Fragment, error)

	// GetFragments retrieves multiple fragments by their IDs.
	// Returns only the fragments that exist (no error for missing ones).
	GetFragments(ctx context.Context, ids ...core.ID) ([]*core.Fragment, error)

	// GetFragmentsBySource retrieves all fragments of a source document,
	// ordered by position index.
	GetFragmentsBySource(ctx context.Context, sourceDocumentId string) ([]*core.Fragment, error)

	// FindNearest returns up to k fragments ordered by ascending cosine
	// distance to the query vector. Ties are broken by position index
	// ascending, then source document ID lexicographic. k is clamped to a
	// configured maximum; k <= 0 fails with core.ErrInvalidInput.
	FindNearest(ctx context.Context, vector []float32, k int) ([]*core.FragmentMatch, error)

	// AllFragments returns every stored fragment in unspecified order.
	// Intended for offline maintenance passes over the whole index.
	AllFragments(ctx context.Context) ([]*core.Fragment, error)

	// UpdateFragmentVectors replaces the vectors of existing fragments and
	// moves the index dimension to the replacement vectors' dimension. All
	// vectors in one call must share a dimension. Returns the number of
	// fragments updated; a missing fragment fails with ErrNotFound.
	UpdateFragmentVectors(ctx context.Context, fragments ...*core.Fragment) (int, error)

	// CountFragments returns the number of stored fragments.
	CountFragments(ctx context.Context) (int, error)
}

// ResultRepository stores generated results so job-status readers can
// fetch them after the producing job completes.
type ResultRepository interface {
	Repository
	// SaveResult persists a generated result. Overwrites by ID.
	SaveResult(ctx context.Context, result *core.GeneratedResult) error

	// GetResult retrieves a generated result by ID.
	// Returns ErrNotFound if the result doesn't exist.
	GetResult(ctx context.Context, id core.ID) (*core.GeneratedResult, error)
}

// ProductRepository stores the product catalog used by the recommendation
// capability.
type ProductRepository interface {
	Repository
	// AddProducts adds one or more products. For products with ID=0,
	// derives a content-based ID from the name. Overwrites by ID.
	AddProducts(ctx context.Context, products ...*core.Product) ([]*core.Product, error)

	// GetProduct retrieves a single product by ID.
	// Returns ErrNotFound if the product doesn't exist.
	GetProduct(ctx context.Context, id core.ID) (*core.Product, error)

	// FindByCategories returns products whose category or tags match any of
	// the given categories (case-insensitive), up to limit results.
	FindByCategories(ctx context.Context, categories []string, limit int) ([]*core.Product, error)

	// CountProducts returns the number of stored products.
	CountProducts(ctx context.Context) (int, error)
}

// CacheRepository is the query-result cache: TTL-bounded entries keyed by
// normalized query hash, with explicit and prefix invalidation.
type CacheRepository interface {
	Repository
	// Get retrieves a live cache entry by key. Expiry is lazy-checked:
	// an expired entry reads as ErrNotFound and is purged in passing.
	Get(ctx context.Context, key string) (*core.CacheEntry, error)

	// Put stores a cache entry. Entries with Version=0 get the next value
	// from a monotonic sequence; an entry never overwrites a stored entry
	// with a higher version (last write wins by version). Optional tags
	// index the entry for InvalidateTag.
	Put(ctx context.Context, entry *core.CacheEntry, tags ...string) error

	// Invalidate removes a single cache entry. Missing keys are not an error.
	Invalidate(ctx context.Context, key string) error

	// InvalidatePrefix removes all cache entries whose key has the given
	// prefix. Returns the number of entries removed.
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)

	// InvalidateTag removes all cache entries tagged with tag.
	// Returns the number of entries removed.
	InvalidateTag(ctx context.Context, tag string) (int, error)

	// SweepExpired purges entries whose TTL has elapsed.
	// Returns the number of entries purged.
	SweepExpired(ctx context.Context) (int, error)
}

// JobRepository is the durable job queue backing the pipeline coordinator.
// Delivery is at-least-once: a dequeued job that is never marked terminal
// can be requeued and run again.
type JobRepository interface {
	Repository
	// Enqueue persists a job in Queued status and makes it visible to
	// Dequeue. The job must carry a non-empty ID.
	Enqueue(ctx context.Context, job *core.Job) error

	// Dequeue claims the oldest queued job, moves it to Running and
	// increments its attempt count. Returns ErrNotFound when the queue
	// is empty.
	Dequeue(ctx context.Context) (*core.Job, error)

	// UpdateJob persists job mutations. Status moves are monotonic:
	// updating a job already in a different terminal status fails with
	// ErrInvalidTransition. Use RequeueJob for failed-job retries.
	UpdateJob(ctx context.Context, job *core.Job) error

	// GetJob retrieves a job by ID.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id string) (*core.Job, error)

	// RequeueJob moves a Failed job back to Queued, preserving its attempt
	// count, and makes it visible to Dequeue again.
	RequeueJob(ctx context.Context, id string) error

	// CancelJob marks a non-terminal job canceled. Workers observe the flag
	// at stage boundaries; a canceled job settles as Failed with a
	// Canceled error kind.
	CancelJob(ctx context.Context, id string) error
}
