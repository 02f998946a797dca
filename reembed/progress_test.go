package reembed

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressTracker(t *testing.T) {
	t.Run("reports at interval boundaries", func(t *testing.T) {
		var buf bytes.Buffer
		tracker := NewProgressTracker(&buf, 100, 25)
		tracker.Start()

		tracker.Update(10)
		assert.Empty(t, buf.String(), "below the interval, nothing is written")

		tracker.Update(25)
		assert.Contains(t, buf.String(), "25/100")
		assert.Contains(t, buf.String(), "25.0%")
	})

	t.Run("finish always reports the total", func(t *testing.T) {
		var buf bytes.Buffer
		tracker := NewProgressTracker(&buf, 50, 1000)
		tracker.Start()

		tracker.Update(10)
		tracker.Finish()

		out := buf.String()
		assert.Contains(t, out, "50/50")
		assert.Contains(t, out, "100.0%")
		assert.True(t, strings.HasSuffix(out, "\n"), "final report ends the line")
	})

	t.Run("update caps at total", func(t *testing.T) {
		var buf bytes.Buffer
		tracker := NewProgressTracker(&buf, 10, 1)
		tracker.Start()

		tracker.Update(99)
		assert.Contains(t, buf.String(), "10/10")
	})

	t.Run("update before start is ignored", func(t *testing.T) {
		var buf bytes.Buffer
		tracker := NewProgressTracker(&buf, 10, 1)

		tracker.Update(5)
		tracker.Finish()
		assert.Empty(t, buf.String())
		assert.Zero(t, tracker.Elapsed())
	})

	t.Run("elapsed grows after start", func(t *testing.T) {
		var buf bytes.Buffer
		tracker := NewProgressTracker(&buf, 10, 1)
		tracker.Start()
		require.GreaterOrEqual(t, tracker.Elapsed().Nanoseconds(), int64(0))
	})
}
