package badger

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/storage"
)

// ProductRepository implements storage.ProductRepository for BadgerDB.
// Both the category and every tag of a product are written to the same
// lowercase term index, so FindByCategories matches either.
type ProductRepository struct {
	backend *Backend
}

var _ storage.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(backend *Backend) (*ProductRepository, error) {
	return &ProductRepository{
		backend: backend,
	}, nil
}

// Close releases resources. ProductRepository has no resources to release.
func (r *ProductRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *ProductRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddProducts adds one or more products, overwriting by ID.
func (r *ProductRepository) AddProducts(ctx context.Context, products ...*core.Product) ([]*core.Product, error) {
	err := r.backend.WithTxRetry(func(tx *badger.Txn) error {
		for _, product := range products {
			if product.Id == 0 {
				product.Id = core.IDFromContent(product.Name)
			}
			if err := core.ValidateProduct(product); err != nil {
				return err
			}

			key := makeProductKey(product.Id)
			if err := tx.Set(key, storage.MarshalProduct(product)); err != nil {
				return err
			}

			for _, term := range productIndexTerms(product) {
				catKey := makeProductCategoryKey(term, product.Id)
				if err := tx.Set(catKey, storage.MarshalID(product.Id)); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	}, true)

	if err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct retrieves a single product by ID.
func (r *ProductRepository) GetProduct(ctx context.Context, id core.ID) (*core.Product, error) {
	var result *core.Product
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readProduct(tx, makeProductKey(id))
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

// FindByCategories returns products matching any category or tag,
// case-insensitive, up to limit results.
func (r *ProductRepository) FindByCategories(ctx context.Context, categories []string, limit int) ([]*core.Product, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", core.ErrInvalidInput, limit)
	}

	var results []*core.Product
	seen := make(map[core.ID]bool)

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, category := range categories {
			term := strings.ToLower(strings.TrimSpace(category))
			if term == "" {
				continue
			}

			opts := badger.DefaultIteratorOptions
			opts.Prefix = makePartialProductCategoryKey(term)
			iter := tx.NewIterator(opts)

			for iter.Rewind(); iter.Valid() && len(results) < limit; iter.Next() {
				var id core.ID
				err := iter.Item().Value(func(val []byte) error {
					var err error
					id, err = storage.UnmarshalID(val)
					return err
				})
				if err != nil {
					iter.Close()
					return err
				}
				if seen[id] {
					continue
				}
				seen[id] = true

				product, err := readProduct(tx, makeProductKey(id))
				if err != nil {
					iter.Close()
					return err
				}
				if product != nil {
					results = append(results, product)
				}
			}
			iter.Close()

			if len(results) >= limit {
				break
			}
		}
		return nil
	}, false)

	return results, err
}

// CountProducts returns the number of stored products.
func (r *ProductRepository) CountProducts(ctx context.Context) (int, error) {
	var count int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(productRecordPrefix + ":")
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

// productIndexTerms returns the deduplicated lowercase index terms for a
// product: its category plus all tags.
func productIndexTerms(product *core.Product) []string {
	terms := make([]string, 0, len(product.Tags)+1)
	seen := make(map[string]bool)

	add := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || seen[term] {
			return
		}
		seen[term] = true
		terms = append(terms, term)
	}

	add(product.Category)
	for _, tag := range product.Tags {
		add(tag)
	}
	return terms
}

// readProduct reads a product from the transaction.
func readProduct(tx *badger.Txn, key []byte) (*core.Product, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var product *core.Product
	err = item.Value(func(val []byte) error {
		var err error
		product, err = storage.UnmarshalProduct(val)
		return err
	})
	return product, err
}
