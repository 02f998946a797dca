package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/storage"
)

// CacheRepository implements storage.CacheRepository for BadgerDB.
//
// Expiry is enforced against an injectable clock rather than badger's
// native TTL so tests can drive time directly. Entries read through Get
// are lazily purged on expiry; SweepExpired handles the rest.
type CacheRepository struct {
	backend  *Backend
	clock    func() time.Time
	versions *badger.Sequence
}

var _ storage.CacheRepository = (*CacheRepository)(nil)

// CacheOption configures a CacheRepository.
type CacheOption func(*CacheRepository) error

// WithClock overrides the time source used for expiry checks.
func WithClock(clock func() time.Time) CacheOption {
	return func(r *CacheRepository) error {
		r.clock = clock
		return nil
	}
}

// NewCacheRepository creates a new CacheRepository.
func NewCacheRepository(backend *Backend, opts ...CacheOption) (*CacheRepository, error) {
	versions, err := backend.GetSequence(cacheVersionSeq)
	if err != nil {
		return nil, err
	}

	repo := &CacheRepository{
		backend:  backend,
		clock:    func() time.Time { return time.Now().UTC() },
		versions: versions,
	}
	for _, opt := range opts {
		if err := opt(repo); err != nil {
			versions.Release()
			return nil, err
		}
	}
	return repo, nil
}

// Close releases the version sequence.
func (r *CacheRepository) Close() error {
	return r.versions.Release()
}

// WithTransaction delegates to the backend.
func (r *CacheRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// Get retrieves a live cache entry. Expired entries read as ErrNotFound
// and are purged in passing.
func (r *CacheRepository) Get(ctx context.Context, key string) (*core.CacheEntry, error) {
	var entry *core.CacheEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		entry, err = readCacheEntry(tx, makeCacheKey(key))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, storage.ErrNotFound
	}

	if entry.Expired(r.clock()) {
		// Lazy purge. Best effort: a conflict here just leaves the entry
		// for the sweep.
		_ = r.backend.WithTxRetry(func(tx *badger.Txn) error {
			if err := tx.Delete(makeCacheKey(key)); err != nil {
				return err
			}
			return tx.Commit()
		}, true)
		return nil, storage.ErrNotFound
	}

	return entry, nil
}

// Put stores a cache entry. Last write wins by version: a stored entry with
// a higher version is never overwritten.
func (r *CacheRepository) Put(ctx context.Context, entry *core.CacheEntry, tags ...string) error {
	if entry.Version == 0 {
		next, err := r.versions.Next()
		if err != nil {
			return err
		}
		entry.Version = next + 1
	}

	return r.backend.WithTxRetry(func(tx *badger.Txn) error {
		key := makeCacheKey(entry.Key)

		existing, err := readCacheEntry(tx, key)
		if err != nil {
			return err
		}
		if existing != nil && existing.Version > entry.Version {
			return tx.Commit()
		}

		if err := tx.Set(key, storage.MarshalCacheEntry(entry)); err != nil {
			return err
		}
		for _, tag := range tags {
			if tag == "" {
				continue
			}
			tagKey := makeCacheTagKey(tag, entry.Key)
			if err := tx.Set(tagKey, []byte(entry.Key)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Invalidate removes a single cache entry. Tag index entries pointing at it
// are left dangling; InvalidateTag tolerates them.
func (r *CacheRepository) Invalidate(ctx context.Context, key string) error {
	return r.backend.WithTxRetry(func(tx *badger.Txn) error {
		if err := tx.Delete(makeCacheKey(key)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// InvalidatePrefix removes all cache entries whose logical key has the
// given prefix.
func (r *CacheRepository) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	var removed int
	err := r.backend.WithTxRetry(func(tx *badger.Txn) error {
		removed = 0

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeCacheKey(prefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)

		var keys [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return tx.Commit()
	}, true)
	return removed, err
}

// InvalidateTag removes all cache entries tagged with tag, along with the
// tag index entries themselves.
func (r *CacheRepository) InvalidateTag(ctx context.Context, tag string) (int, error) {
	var removed int
	err := r.backend.WithTxRetry(func(tx *badger.Txn) error {
		removed = 0

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialCacheTagKey(tag)
		iter := tx.NewIterator(opts)

		type pending struct {
			tagKey     []byte
			logicalKey string
		}
		var found []pending
		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			var logicalKey string
			err := item.Value(func(val []byte) error {
				logicalKey = string(val)
				return nil
			})
			if err != nil {
				iter.Close()
				return err
			}
			found = append(found, pending{tagKey: item.KeyCopy(nil), logicalKey: logicalKey})
		}
		iter.Close()

		for _, p := range found {
			entry, err := readCacheEntry(tx, makeCacheKey(p.logicalKey))
			if err != nil {
				return err
			}
			if entry != nil {
				if err := tx.Delete(makeCacheKey(p.logicalKey)); err != nil {
					return err
				}
				removed++
			}
			if err := tx.Delete(p.tagKey); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	return removed, err
}

// SweepExpired purges all entries whose TTL has elapsed.
func (r *CacheRepository) SweepExpired(ctx context.Context) (int, error) {
	now := r.clock()

	var purged int
	err := r.backend.WithTxRetry(func(tx *badger.Txn) error {
		purged = 0

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(cacheRecordPrefix + ":")
		iter := tx.NewIterator(opts)

		var expired [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			var entry *core.CacheEntry
			err := item.Value(func(val []byte) error {
				var err error
				entry, err = storage.UnmarshalCacheEntry(val)
				return err
			})
			if err != nil {
				iter.Close()
				return err
			}
			if entry != nil && entry.Expired(now) {
				expired = append(expired, item.KeyCopy(nil))
			}
		}
		iter.Close()

		for _, key := range expired {
			if err := tx.Delete(key); err != nil {
				return err
			}
			purged++
		}
		return tx.Commit()
	}, true)
	return purged, err
}

// readCacheEntry reads a cache entry from the transaction.
// Returns nil, nil when the key is absent.
func readCacheEntry(tx *badger.Txn, key []byte) (*core.CacheEntry, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var entry *core.CacheEntry
	err = item.Value(func(val []byte) error {
		var err error
		entry, err = storage.UnmarshalCacheEntry(val)
		return err
	})
	return entry, err
}
