package badger

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/storage"
)

// maxSearchResults bounds k for nearest-neighbor queries.
const maxSearchResults = 100

// FragmentRepository implements storage.FragmentRepository for BadgerDB.
// It doubles as the vector index: search is a full scan over fragment
// records with in-memory distance ranking, which is adequate for the
// corpus sizes this store targets.
type FragmentRepository struct {
	backend *Backend
}

var _ storage.FragmentRepository = (*FragmentRepository)(nil)

// NewFragmentRepository creates a new FragmentRepository.
func NewFragmentRepository(backend *Backend) (*FragmentRepository, error) {
	return &FragmentRepository{
		backend: backend,
	}, nil
}

// Close releases resources. FragmentRepository has no resources to release.
func (r *FragmentRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *FragmentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddFragments inserts fragments idempotently by ID. The first inserted
// vector fixes the index dimension.
func (r *FragmentRepository) AddFragments(ctx context.Context, fragments ...*core.Fragment) ([]*core.Fragment, error) {
	err := r.backend.WithTxRetry(func(tx *badger.Txn) error {
		dim, err := readDimension(tx)
		if err != nil {
			return err
		}

		for _, fragment := range fragments {
			if err := core.ValidateFragment(fragment); err != nil {
				return err
			}

			if len(fragment.Vector) > 0 {
				if dim == 0 {
					dim = len(fragment.Vector)
					if err := tx.Set([]byte(fragmentDimKey), storage.MarshalID(core.ID(dim))); err != nil {
						return err
					}
				} else if len(fragment.Vector) != dim {
					return fmt.Errorf("%w: got %d, index dimension is %d",
						storage.ErrDimensionMismatch, len(fragment.Vector), dim)
				}
			}

			if fragment.CreatedAt.IsZero() {
				fragment.CreatedAt = time.Now().UTC()
			}

			// Re-insert overwrites both record and source index in place:
			// the composite source key is derived from immutable fields.
			key := makeFragmentKey(fragment.Id)
			if err := tx.Set(key, storage.MarshalFragment(fragment)); err != nil {
				return err
			}

			sourceKey := makeFragmentSourceKey(fragment.SourceDocumentId, fragment.PositionIndex, fragment.Id)
			if err := tx.Set(sourceKey, storage.MarshalID(fragment.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	if err != nil {
		return nil, err
	}
	return fragments, nil
}

// GetFragment retrieves a single fragment by ID.
func (r *FragmentRepository) GetFragment(ctx context.Context, id core.ID) (*core.Fragment, error) {
	var result *core.Fragment
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readFragment(tx, makeFragmentKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetFragments retrieves multiple fragments by their IDs.
func (r *FragmentRepository) GetFragments(ctx context.Context, ids ...core.ID) ([]*core.Fragment, error) {
	var result []*core.Fragment
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			fragment, err := readFragment(tx, makeFragmentKey(id))
			if err != nil {
				return err
			}
			if fragment != nil {
				result = append(result, fragment)
			}
		}
		return nil
	}, false)
	return result, err
}

// GetFragmentsBySource retrieves all fragments of a source document in
// position order.
func (r *FragmentRepository) GetFragmentsBySource(ctx context.Context, sourceDocumentId string) ([]*core.Fragment, error) {
	var results []*core.Fragment
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialFragmentSourceKey(sourceDocumentId)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var id core.ID
			err := iter.Item().Value(func(val []byte) error {
				var err error
				id, err = storage.UnmarshalID(val)
				return err
			})
			if err != nil {
				return err
			}

			fragment, err := readFragment(tx, makeFragmentKey(id))
			if err != nil {
				return err
			}
			if fragment != nil {
				results = append(results, fragment)
			}
		}
		return nil
	}, false)
	return results, err
}

// FindNearest returns up to k fragments by ascending cosine distance.
func (r *FragmentRepository) FindNearest(ctx context.Context, vector []float32, k int) ([]*core.FragmentMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", core.ErrInvalidInput, k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", core.ErrInvalidInput)
	}
	if k > maxSearchResults {
		k = maxSearchResults
	}

	var matches []*core.FragmentMatch
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(fragmentRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()

			// The dimension meta key does not share the record prefix, so
			// everything under fragrec: is a fragment record.
			var fragment *core.Fragment
			err := item.Value(func(val []byte) error {
				var err error
				fragment, err = storage.UnmarshalFragment(val)
				return err
			})
			if err != nil {
				return err
			}
			if fragment == nil || len(fragment.Vector) == 0 {
				continue
			}

			matches = append(matches, &core.FragmentMatch{
				Fragment: fragment,
				Distance: cosineDistance(vector, fragment.Vector),
			})
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	// Ascending distance; ties by position index, then source document ID,
	// so identical inputs always rank identically.
	slices.SortFunc(matches, func(a, b *core.FragmentMatch) int {
		if a.Distance != b.Distance {
			if a.Distance < b.Distance {
				return -1
			}
			return 1
		}
		if a.Fragment.PositionIndex != b.Fragment.PositionIndex {
			return a.Fragment.PositionIndex - b.Fragment.PositionIndex
		}
		return strings.Compare(a.Fragment.SourceDocumentId, b.Fragment.SourceDocumentId)
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// AllFragments returns every stored fragment. Order is unspecified. Intended
// for offline maintenance (re-embedding); the full result set is held in
// memory.
func (r *FragmentRepository) AllFragments(ctx context.Context) ([]*core.Fragment, error) {
	var results []*core.Fragment
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(fragmentRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var fragment *core.Fragment
			err := iter.Item().Value(func(val []byte) error {
				var err error
				fragment, err = storage.UnmarshalFragment(val)
				return err
			})
			if err != nil {
				return err
			}
			if fragment != nil {
				results = append(results, fragment)
			}
		}
		return nil
	}, false)
	return results, err
}

// UpdateFragmentVectors rewrites the vectors of existing fragments and moves
// the index dimension to the new vectors' dimension. Fragments must already
// exist; text and position metadata are left untouched. Returns the number of
// fragments updated.
//
// During a multi-batch re-embedding run the index briefly holds mixed
// dimensions; callers are expected to finish the run before serving searches.
func (r *FragmentRepository) UpdateFragmentVectors(ctx context.Context, fragments ...*core.Fragment) (int, error) {
	if len(fragments) == 0 {
		return 0, nil
	}

	dim := len(fragments[0].Vector)
	if dim == 0 {
		return 0, fmt.Errorf("%w: empty replacement vector", core.ErrInvalidInput)
	}
	for _, fragment := range fragments {
		if len(fragment.Vector) != dim {
			return 0, fmt.Errorf("%w: got %d and %d in one batch",
				storage.ErrDimensionMismatch, dim, len(fragment.Vector))
		}
	}

	updated := 0
	err := r.backend.WithTxRetry(func(tx *badger.Txn) error {
		updated = 0
		for _, fragment := range fragments {
			stored, err := readFragment(tx, makeFragmentKey(fragment.Id))
			if err != nil {
				return err
			}
			if stored == nil {
				return fmt.Errorf("%w: fragment %d", storage.ErrNotFound, fragment.Id)
			}

			stored.Vector = fragment.Vector
			if err := tx.Set(makeFragmentKey(stored.Id), storage.MarshalFragment(stored)); err != nil {
				return err
			}
			updated++
		}

		if err := tx.Set([]byte(fragmentDimKey), storage.MarshalID(core.ID(dim))); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	if err != nil {
		return 0, err
	}
	return updated, nil
}

// CountFragments returns the number of stored fragments.
func (r *FragmentRepository) CountFragments(ctx context.Context) (int, error) {
	var count int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(fragmentRecordPrefix + ":")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// readDimension reads the recorded index dimension, 0 if unset.
func readDimension(tx *badger.Txn) (int, error) {
	item, err := tx.Get([]byte(fragmentDimKey))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return 0, nil
		}
		return 0, err
	}
	var dim core.ID
	err = item.Value(func(val []byte) error {
		var err error
		dim, err = storage.UnmarshalID(val)
		return err
	})
	return int(dim), err
}

// readFragment reads a fragment from the transaction.
func readFragment(tx *badger.Txn, key []byte) (*core.Fragment, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var fragment *core.Fragment
	err = item.Value(func(val []byte) error {
		var err error
		fragment, err = storage.UnmarshalFragment(val)
		return err
	})
	return fragment, err
}

// cosineDistance computes 1 - cosine similarity. Zero-norm vectors are
// maximally distant.
func cosineDistance(a, b []float32) float32 {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < minLen; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	for i := minLen; i < len(a); i++ {
		normA += float64(a[i]) * float64(a[i])
	}
	for i := minLen; i < len(b); i++ {
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)))
}
