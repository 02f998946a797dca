package core

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIDFromContent(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := IDFromContent("some fragment text")
		b := IDFromContent("some fragment text")
		assert.Equal(t, a, b)
	})

	t.Run("distinct content distinct ids", func(t *testing.T) {
		a := IDFromContent("first")
		b := IDFromContent("second")
		assert.NotEqual(t, a, b)
	})

	t.Run("empty content has an id", func(t *testing.T) {
		assert.NotZero(t, IDFromContent(""))
	})
}

func TestNormalizeQuery(t *testing.T) {
	t.Run("lowercases and strips stopwords", func(t *testing.T) {
		assert.Equal(t, "solar panels", NormalizeQuery("Explain me about THE Solar Panels"))
	})

	t.Run("collapses whitespace", func(t *testing.T) {
		assert.Equal(t, "solar panels", NormalizeQuery("  solar\t\npanels  "))
	})

	t.Run("all stopwords keeps words", func(t *testing.T) {
		assert.Equal(t, "the and", NormalizeQuery("The AND"))
	})

	t.Run("blank stays blank", func(t *testing.T) {
		assert.Equal(t, "", NormalizeQuery("   "))
	})
}

func TestCacheKeyForQuery(t *testing.T) {
	t.Run("identical after normalization", func(t *testing.T) {
		a := CacheKeyForQuery("Explain me about solar panels")
		b := CacheKeyForQuery("  SOLAR   panels the")
		assert.Equal(t, a, b)
	})

	t.Run("distinct queries distinct keys", func(t *testing.T) {
		assert.NotEqual(t, CacheKeyForQuery("solar panels"), CacheKeyForQuery("wind turbines"))
	})

	t.Run("carries the cache prefix", func(t *testing.T) {
		assert.True(t, strings.HasPrefix(CacheKeyForQuery("anything"), CacheKeyPrefix))
	})
}

func TestGeneratedResultWordCount(t *testing.T) {
	r := &GeneratedResult{Content: "one two  three\nfour"}
	assert.Equal(t, 4, r.WordCount())

	empty := &GeneratedResult{}
	assert.Equal(t, 0, empty.WordCount())
}

func TestCacheEntryExpired(t *testing.T) {
	now := time.Now().UTC()
	entry := &CacheEntry{ExpiresAt: now.Add(time.Minute)}

	assert.False(t, entry.Expired(now))
	assert.False(t, entry.Expired(now.Add(59*time.Second)))
	assert.True(t, entry.Expired(now.Add(time.Minute)))
	assert.True(t, entry.Expired(now.Add(2*time.Minute)))
}

func TestJobTerminal(t *testing.T) {
	assert.False(t, (&Job{Status: JobQueued}).Terminal())
	assert.False(t, (&Job{Status: JobRunning}).Terminal())
	assert.True(t, (&Job{Status: JobSucceeded}).Terminal())
	assert.True(t, (&Job{Status: JobFailed}).Terminal())
}
