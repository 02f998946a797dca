package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/storage"
)

func newTestStores(t *testing.T, cacheOpts ...CacheOption) *Stores {
	t.Helper()
	stores, backend, err := NewMemoryStores(cacheOpts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		stores.Close()
		backend.Close()
	})
	return stores
}

func testFragment(sourceId string, position int, text string, vector []float32) *core.Fragment {
	return &core.Fragment{
		Id:               core.IDFromContent(sourceId + "#" + text),
		SourceDocumentId: sourceId,
		Text:             text,
		PositionIndex:    position,
		Vector:           vector,
	}
}

func TestFragmentRepositoryAddAndGet(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	fragment := testFragment("doc-1", 0, "first fragment", []float32{1, 0, 0, 0})
	added, err := stores.Fragments.AddFragments(ctx, fragment)
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.False(t, added[0].CreatedAt.IsZero())

	got, err := stores.Fragments.GetFragment(ctx, fragment.Id)
	require.NoError(t, err)
	assert.Equal(t, fragment.Id, got.Id)
	assert.Equal(t, "doc-1", got.SourceDocumentId)
	assert.Equal(t, "first fragment", got.Text)
	assert.Equal(t, []float32{1, 0, 0, 0}, got.Vector)

	t.Run("missing fragment", func(t *testing.T) {
		_, err := stores.Fragments.GetFragment(ctx, core.ID(12345))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("invalid fragment rejected", func(t *testing.T) {
		_, err := stores.Fragments.AddFragments(ctx, &core.Fragment{})
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})
}

func TestFragmentRepositoryIdempotentInsert(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	fragment := testFragment("doc-1", 0, "same content", []float32{0.5, 0.5})

	_, err := stores.Fragments.AddFragments(ctx, fragment)
	require.NoError(t, err)
	_, err = stores.Fragments.AddFragments(ctx, fragment)
	require.NoError(t, err)

	count, err := stores.Fragments.CountFragments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFragmentRepositoryDimensionEnforced(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	_, err := stores.Fragments.AddFragments(ctx,
		testFragment("doc-1", 0, "four dims", []float32{1, 0, 0, 0}))
	require.NoError(t, err)

	_, err = stores.Fragments.AddFragments(ctx,
		testFragment("doc-1", 1, "two dims", []float32{1, 0}))
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestFragmentRepositoryGetBySource(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	// Inserted out of order; the source index must return position order.
	_, err := stores.Fragments.AddFragments(ctx,
		testFragment("doc-1", 2, "third", []float32{0, 1}),
		testFragment("doc-1", 0, "first", []float32{1, 0}),
		testFragment("doc-1", 1, "second", []float32{1, 1}),
		testFragment("doc-2", 0, "other doc", []float32{0, 0.5}),
	)
	require.NoError(t, err)

	fragments, err := stores.Fragments.GetFragmentsBySource(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, fragments, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{
		fragments[0].PositionIndex,
		fragments[1].PositionIndex,
		fragments[2].PositionIndex,
	})
}

func TestFindNearestOrdering(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	_, err := stores.Fragments.AddFragments(ctx,
		testFragment("doc-1", 0, "aligned", []float32{1, 0}),
		testFragment("doc-1", 1, "orthogonal", []float32{0, 1}),
		testFragment("doc-1", 2, "close", []float32{0.9, 0.1}),
	)
	require.NoError(t, err)

	matches, err := stores.Fragments.FindNearest(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "aligned", matches[0].Fragment.Text)
	assert.Equal(t, "close", matches[1].Fragment.Text)
	assert.Equal(t, "orthogonal", matches[2].Fragment.Text)
	assert.LessOrEqual(t, matches[0].Distance, matches[1].Distance)
	assert.LessOrEqual(t, matches[1].Distance, matches[2].Distance)
}

func TestFindNearestDeterministicTieBreak(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	// Identical vectors produce identical distances; ranking must fall back
	// to position index, then source document ID.
	vector := []float32{0.6, 0.8}
	_, err := stores.Fragments.AddFragments(ctx,
		testFragment("doc-b", 1, "b one", vector),
		testFragment("doc-a", 1, "a one", vector),
		testFragment("doc-a", 0, "a zero", vector),
	)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		matches, err := stores.Fragments.FindNearest(ctx, []float32{0.6, 0.8}, 3)
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, "a zero", matches[0].Fragment.Text)
		assert.Equal(t, "a one", matches[1].Fragment.Text)
		assert.Equal(t, "b one", matches[2].Fragment.Text)
	}
}

func TestFindNearestInvalidParams(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	t.Run("zero k", func(t *testing.T) {
		_, err := stores.Fragments.FindNearest(ctx, []float32{1, 0}, 0)
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})

	t.Run("negative k", func(t *testing.T) {
		_, err := stores.Fragments.FindNearest(ctx, []float32{1, 0}, -5)
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})

	t.Run("empty vector", func(t *testing.T) {
		_, err := stores.Fragments.FindNearest(ctx, nil, 3)
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})

	t.Run("k clamped to maximum", func(t *testing.T) {
		_, err := stores.Fragments.AddFragments(ctx,
			testFragment("doc-1", 0, "only one", []float32{1, 0}))
		require.NoError(t, err)

		matches, err := stores.Fragments.FindNearest(ctx, []float32{1, 0}, maxSearchResults*10)
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})
}
