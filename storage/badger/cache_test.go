package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/storage"
)

func testCacheEntry(key, content string, expiresAt time.Time) *core.CacheEntry {
	return &core.CacheEntry{
		Key: key,
		Payload: core.GeneratedResult{
			Id:           core.IDFromContent(key + content),
			QueryOrTopic: key,
			Content:      content,
			CreatedAt:    time.Unix(1700000000, 0).UTC(),
		},
		ExpiresAt: expiresAt,
	}
}

func TestCacheReadYourWrite(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	stores := newTestStores(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	entry := testCacheEntry("query:abc", "cached content", now.Add(time.Minute))
	require.NoError(t, stores.Cache.Put(ctx, entry))

	got, err := stores.Cache.Get(ctx, "query:abc")
	require.NoError(t, err)
	assert.Equal(t, "cached content", got.Payload.Content)
	assert.NotZero(t, got.Version, "version must be assigned on put")

	t.Run("missing key", func(t *testing.T) {
		_, err := stores.Cache.Get(ctx, "query:nothing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestCacheLazyExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	stores := newTestStores(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	entry := testCacheEntry("query:abc", "short lived", now.Add(time.Minute))
	require.NoError(t, stores.Cache.Put(ctx, entry))

	// Live before the deadline, a miss at and after it.
	_, err := stores.Cache.Get(ctx, "query:abc")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = stores.Cache.Get(ctx, "query:abc")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = stores.Cache.Get(ctx, "query:abc")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCacheVersionLastWriteWins(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	stores := newTestStores(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	newer := testCacheEntry("query:abc", "newer", now.Add(time.Hour))
	newer.Version = 10
	require.NoError(t, stores.Cache.Put(ctx, newer))

	older := testCacheEntry("query:abc", "older", now.Add(time.Hour))
	older.Version = 3
	require.NoError(t, stores.Cache.Put(ctx, older))

	got, err := stores.Cache.Get(ctx, "query:abc")
	require.NoError(t, err)
	assert.Equal(t, "newer", got.Payload.Content)
	assert.Equal(t, uint64(10), got.Version)
}

func TestCacheInvalidate(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	stores := newTestStores(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, stores.Cache.Put(ctx, testCacheEntry("query:abc", "a", now.Add(time.Hour))))
	require.NoError(t, stores.Cache.Invalidate(ctx, "query:abc"))

	_, err := stores.Cache.Get(ctx, "query:abc")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	t.Run("missing key is not an error", func(t *testing.T) {
		assert.NoError(t, stores.Cache.Invalidate(ctx, "query:absent"))
	})
}

func TestCacheInvalidatePrefix(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	stores := newTestStores(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, stores.Cache.Put(ctx, testCacheEntry("query:a", "a", now.Add(time.Hour))))
	require.NoError(t, stores.Cache.Put(ctx, testCacheEntry("query:b", "b", now.Add(time.Hour))))
	require.NoError(t, stores.Cache.Put(ctx, testCacheEntry("warm:c", "c", now.Add(time.Hour))))

	removed, err := stores.Cache.InvalidatePrefix(ctx, "query:")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = stores.Cache.Get(ctx, "query:a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = stores.Cache.Get(ctx, "warm:c")
	assert.NoError(t, err)
}

func TestCacheInvalidateTag(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	stores := newTestStores(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, stores.Cache.Put(ctx,
		testCacheEntry("query:a", "draws on doc-1", now.Add(time.Hour)), "doc-1"))
	require.NoError(t, stores.Cache.Put(ctx,
		testCacheEntry("query:b", "draws on doc-2", now.Add(time.Hour)), "doc-2"))

	removed, err := stores.Cache.InvalidateTag(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = stores.Cache.Get(ctx, "query:a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = stores.Cache.Get(ctx, "query:b")
	assert.NoError(t, err)

	t.Run("repeat invalidation finds nothing", func(t *testing.T) {
		removed, err := stores.Cache.InvalidateTag(ctx, "doc-1")
		require.NoError(t, err)
		assert.Zero(t, removed)
	})
}

func TestCacheSweepExpired(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	stores := newTestStores(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, stores.Cache.Put(ctx, testCacheEntry("query:a", "a", now.Add(time.Minute))))
	require.NoError(t, stores.Cache.Put(ctx, testCacheEntry("query:b", "b", now.Add(2*time.Minute))))
	require.NoError(t, stores.Cache.Put(ctx, testCacheEntry("query:c", "c", now.Add(time.Hour))))

	now = now.Add(5 * time.Minute)

	purged, err := stores.Cache.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	_, err = stores.Cache.Get(ctx, "query:c")
	assert.NoError(t, err)
}
