package reembed

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/contentforge/ai/mock"
	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/storage"
)

func testConfig() *Config {
	return &Config{
		BatchSize:      2,
		ReportInterval: 1,
		MaxRetries:     3,
		RetryDelay:     0,
	}
}

func TestReembedderReplacesAllVectors(t *testing.T) {
	stores := seedFragments(t, 5)
	ctx := context.Background()

	embedder := mock.NewMockEmbedder()
	embedder.Dimensions = 8

	var buf bytes.Buffer
	reembedder := NewReembedder(stores.Fragments, embedder, testConfig(), &buf)
	require.NoError(t, reembedder.Run(ctx))

	fragments, err := stores.Fragments.AllFragments(ctx)
	require.NoError(t, err)
	require.Len(t, fragments, 5)
	for _, fragment := range fragments {
		assert.Len(t, fragment.Vector, 8, "vector moved to the new dimension")
		assert.InDelta(t, 1.0, vectorMagnitude(fragment.Vector), 1e-5, "vectors are normalized")
		assert.NotEmpty(t, fragment.Text, "metadata survives the rewrite")
	}

	assert.Contains(t, buf.String(), "Re-embedding complete. Processed 5 fragments")

	t.Run("index dimension follows the new vectors", func(t *testing.T) {
		_, err := stores.Fragments.AddFragments(ctx, &core.Fragment{
			Id:               core.IDFromContent("late arrival"),
			SourceDocumentId: "doc-2",
			PositionIndex:    0,
			Text:             "late arrival",
			Vector:           []float32{1, 0, 0, 0},
		})
		assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
	})
}

func TestReembedderEmptyIndex(t *testing.T) {
	stores := seedFragments(t, 0)

	var buf bytes.Buffer
	reembedder := NewReembedder(stores.Fragments, mock.NewMockEmbedder(), testConfig(), &buf)
	require.NoError(t, reembedder.Run(context.Background()))
	assert.Contains(t, buf.String(), "No fragments found")
}

func TestReembedderRetriesTransientFailures(t *testing.T) {
	stores := seedFragments(t, 3)
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		mu.Lock()
		calls++
		failing := calls == 1
		mu.Unlock()

		if failing {
			return nil, errors.New("embedding endpoint hiccup")
		}
		embeddings := make([][]float32, len(texts))
		for i, text := range texts {
			embeddings[i] = mock.DeterministicVector(text, 8)
		}
		return embeddings, nil
	}

	var buf bytes.Buffer
	reembedder := NewReembedder(stores.Fragments, embedder, testConfig(), &buf)
	require.NoError(t, reembedder.Run(ctx))

	fragments, err := stores.Fragments.AllFragments(ctx)
	require.NoError(t, err)
	for _, fragment := range fragments {
		assert.Len(t, fragment.Vector, 8)
	}
}

func TestReembedderSurfacesPersistentFailure(t *testing.T) {
	stores := seedFragments(t, 2)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding endpoint down")
	}

	var buf bytes.Buffer
	reembedder := NewReembedder(stores.Fragments, embedder, testConfig(), &buf)
	err := reembedder.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process batch")
}

func TestReembedderDefaultConfig(t *testing.T) {
	stores := seedFragments(t, 0)

	var buf bytes.Buffer
	reembedder := NewReembedder(stores.Fragments, mock.NewMockEmbedder(), nil, &buf)
	assert.Equal(t, DefaultConfig().BatchSize, reembedder.config.BatchSize)
}
