package chunker

import (
	"strings"
	"testing"

	"github.com/poiesic/contentforge/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeParagraphs = `Solar panels convert sunlight into electricity. They are installed on rooftops. Their efficiency keeps improving every year.

Wind turbines capture kinetic energy from moving air. Modern turbines can power thousands of homes. Offshore farms produce the most output.

Battery storage smooths supply between day and night. Grid operators rely on it for stability. Costs have fallen sharply over the last decade.`

func TestChunkInvalidParameters(t *testing.T) {
	t.Run("zero max", func(t *testing.T) {
		_, err := Chunk("text", 0, 10)
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})

	t.Run("zero overlap", func(t *testing.T) {
		_, err := Chunk("text", 100, 0)
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})

	t.Run("overlap not below max", func(t *testing.T) {
		_, err := Chunk("text", 100, 100)
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := Chunk("", 100, 10)
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})

	t.Run("whitespace only text", func(t *testing.T) {
		_, err := Chunk(" \n\t \n ", 100, 10)
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})
}

func TestChunkDeterminism(t *testing.T) {
	first, err := Chunk(threeParagraphs, 500, 50)
	require.NoError(t, err)
	second, err := Chunk(threeParagraphs, 500, 50)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].PositionIndex, second[i].PositionIndex)
	}
}

func TestChunkPositionsAndBounds(t *testing.T) {
	pieces, err := Chunk(threeParagraphs, 160, 30)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(pieces), 3)

	for i, piece := range pieces {
		assert.Equal(t, i, piece.PositionIndex)
		assert.NotEmpty(t, piece.Text)
		assert.LessOrEqual(t, len(piece.Text), 160, "piece %d exceeds max size", i)
	}
}

func TestChunkOverlap(t *testing.T) {
	pieces, err := Chunk(threeParagraphs, 160, 40)
	require.NoError(t, err)
	require.Greater(t, len(pieces), 1)

	// Each chunk after the first starts with text carried from its predecessor.
	for i := 1; i < len(pieces); i++ {
		head := pieces[i].Text
		if idx := strings.IndexByte(head, ' '); idx > 0 {
			head = head[:idx]
		}
		assert.Contains(t, pieces[i-1].Text, head, "piece %d does not overlap piece %d", i, i-1)
	}
}

func TestChunkSingleShortText(t *testing.T) {
	pieces, err := Chunk("Just one short sentence.", 500, 50)
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, 0, pieces[0].PositionIndex)
	assert.Equal(t, "Just one short sentence.", pieces[0].Text)
}

func TestChunkHardCutLongSentence(t *testing.T) {
	// A single sentence far beyond the chunk size must still be split.
	long := strings.Repeat("x", 1000)
	pieces, err := Chunk(long, 100, 20)
	require.NoError(t, err)
	require.Greater(t, len(pieces), 1)
	for i, piece := range pieces {
		assert.Equal(t, i, piece.PositionIndex)
		assert.LessOrEqual(t, len(piece.Text), 100)
	}
}

func TestChunkNormalizesWhitespace(t *testing.T) {
	pieces, err := Chunk("Multiple   spaces\tand\nnewlines here.", 500, 50)
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, "Multiple spaces and newlines here.", pieces[0].Text)
}
