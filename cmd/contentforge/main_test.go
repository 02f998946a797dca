package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func testApp() *cli.App {
	return &cli.App{
		Name: "contentforge",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info"},
			&cli.StringFlag{Name: "db", Value: "./contentforge_db"},
			&cli.StringFlag{Name: "ai-host", Value: "http://localhost:11434/v1"},
			&cli.StringFlag{Name: "embedding-model", Value: "embeddinggemma"},
			&cli.StringFlag{Name: "generation-model", Value: "qwen2.5:3b"},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{Name: "query", Action: queryCommand},
			{Name: "ingest", Action: ingestCommand, Flags: []cli.Flag{
				&cli.StringFlag{Name: "source", Required: true},
			}},
			{Name: "seed-products", Action: seedProductsCommand},
		},
	}
}

func TestQueryCommandRequiresText(t *testing.T) {
	err := testApp().Run([]string{"contentforge", "query"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query text is required")
}

func TestIngestCommandValidation(t *testing.T) {
	t.Run("missing source flag fails", func(t *testing.T) {
		err := testApp().Run([]string{"contentforge", "ingest", "doc.txt"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "source")
	})

	t.Run("missing document file fails", func(t *testing.T) {
		err := testApp().Run([]string{"contentforge", "ingest", "--source", "doc-1", "/nonexistent/doc.txt"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read document")
	})

	t.Run("no file argument fails", func(t *testing.T) {
		err := testApp().Run([]string{"contentforge", "ingest", "--source", "doc-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "document file")
	})
}

func TestSeedProductsCommandValidation(t *testing.T) {
	t.Run("missing file fails", func(t *testing.T) {
		err := testApp().Run([]string{"contentforge", "seed-products", "/nonexistent/products.json"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read products file")
	})

	t.Run("malformed json fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "products.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

		err := testApp().Run([]string{"contentforge", "seed-products", path})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse products file")
	})

	t.Run("empty catalog fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "products.json")
		require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))

		err := testApp().Run([]string{"contentforge", "seed-products", path})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})
}

func TestSetupLogger(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "WaRn"} {
			t.Run(level, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "log-level", Value: "info"},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error { return nil },
				}
				require.NoError(t, app.Run([]string{"test", "--log-level", level}))
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		app := &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "log-level", Value: "info"},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error { return nil },
		}
		err := app.Run([]string{"test", "--log-level", "loud"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}
