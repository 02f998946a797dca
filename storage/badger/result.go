package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/storage"
)

// ResultRepository implements storage.ResultRepository for BadgerDB.
type ResultRepository struct {
	backend *Backend
}

var _ storage.ResultRepository = (*ResultRepository)(nil)

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(backend *Backend) (*ResultRepository, error) {
	return &ResultRepository{
		backend: backend,
	}, nil
}

// Close releases resources. ResultRepository has no resources to release.
func (r *ResultRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *ResultRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// SaveResult persists a generated result, overwriting by ID.
func (r *ResultRepository) SaveResult(ctx context.Context, result *core.GeneratedResult) error {
	return r.backend.WithTxRetry(func(tx *badger.Txn) error {
		if result.CreatedAt.IsZero() {
			result.CreatedAt = time.Now().UTC()
		}
		key := makeResultKey(result.Id)
		if err := tx.Set(key, storage.MarshalGeneratedResult(result)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetResult retrieves a generated result by ID.
func (r *ResultRepository) GetResult(ctx context.Context, id core.ID) (*core.GeneratedResult, error) {
	var result *core.GeneratedResult
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeResultKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			result, err = storage.UnmarshalGeneratedResult(val)
			return err
		})
	}, false)
	return result, err
}
