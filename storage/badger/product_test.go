package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/storage"
)

func seedCatalog(t *testing.T, ctx context.Context, stores *Stores) {
	t.Helper()
	_, err := stores.Products.AddProducts(ctx,
		&core.Product{Name: "Trail Runner", Category: "Footwear", Tags: []string{"running", "outdoor"}},
		&core.Product{Name: "Road Racer", Category: "Footwear", Tags: []string{"running"}},
		&core.Product{Name: "Rain Shell", Category: "Jackets", Tags: []string{"outdoor", "waterproof"}},
		&core.Product{Name: "Camp Stove", Category: "Camping", Tags: []string{"outdoor"}},
	)
	require.NoError(t, err)
}

func TestProductRepositoryAddAndGet(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	added, err := stores.Products.AddProducts(ctx,
		&core.Product{Name: "Trail Runner", Category: "Footwear"})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.NotZero(t, added[0].Id, "content-based id assigned")

	got, err := stores.Products.GetProduct(ctx, added[0].Id)
	require.NoError(t, err)
	assert.Equal(t, "Trail Runner", got.Name)

	t.Run("missing product", func(t *testing.T) {
		_, err := stores.Products.GetProduct(ctx, core.ID(999))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("missing category rejected", func(t *testing.T) {
		_, err := stores.Products.AddProducts(ctx, &core.Product{Name: "No Category"})
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})
}

func TestProductFindByCategories(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	seedCatalog(t, ctx, stores)

	t.Run("matches category case-insensitively", func(t *testing.T) {
		products, err := stores.Products.FindByCategories(ctx, []string{"footwear"}, 10)
		require.NoError(t, err)
		assert.Len(t, products, 2)
	})

	t.Run("matches tags too", func(t *testing.T) {
		products, err := stores.Products.FindByCategories(ctx, []string{"waterproof"}, 10)
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, "Rain Shell", products[0].Name)
	})

	t.Run("deduplicates across terms", func(t *testing.T) {
		products, err := stores.Products.FindByCategories(ctx, []string{"footwear", "running"}, 10)
		require.NoError(t, err)
		assert.Len(t, products, 2)
	})

	t.Run("respects limit", func(t *testing.T) {
		products, err := stores.Products.FindByCategories(ctx, []string{"outdoor"}, 2)
		require.NoError(t, err)
		assert.Len(t, products, 2)
	})

	t.Run("unknown category finds nothing", func(t *testing.T) {
		products, err := stores.Products.FindByCategories(ctx, []string{"spaceships"}, 10)
		require.NoError(t, err)
		assert.Empty(t, products)
	})

	t.Run("invalid limit", func(t *testing.T) {
		_, err := stores.Products.FindByCategories(ctx, []string{"footwear"}, 0)
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})
}
