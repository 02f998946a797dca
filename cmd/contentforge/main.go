// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/contentforge"
	"github.com/poiesic/contentforge/ai"
	"github.com/poiesic/contentforge/ai/openai"
	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/reembed"
	badgerstore "github.com/poiesic/contentforge/storage/badger"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "contentforge",
		Usage: "Asynchronous content retrieval and generation pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
				EnvVars: []string{"CONTENTFORGE_DB"},
				Value:   "./contentforge_db",
			},
			&cli.StringFlag{
				Name:    "ai-host",
				Usage:   "OpenAI-compatible service host URL for embeddings and generation",
				EnvVars: []string{"CONTENTFORGE_AI_HOST"},
				Value:   "http://localhost:11434/v1",
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				EnvVars: []string{"CONTENTFORGE_EMBEDDING_MODEL"},
				Value:   "embeddinggemma",
			},
			&cli.StringFlag{
				Name:    "generation-model",
				Usage:   "Generation model name",
				EnvVars: []string{"CONTENTFORGE_GENERATION_MODEL"},
				Value:   "qwen2.5:3b",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the pipeline workers until interrupted",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "sweep-interval",
						Usage: "How often expired cache entries are purged",
						Value: time.Minute,
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Submit a document for ingestion",
				ArgsUsage: "FILE",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Aliases:  []string{"s"},
						Usage:    "Source document identifier",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Block until the job reaches a terminal status",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Submit a query and print the generated response",
				ArgsUsage: "QUERY TEXT",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the query to complete",
						Value: 2 * time.Minute,
					},
				},
			},
			{
				Name:      "status",
				Usage:     "Print the current state of a job",
				ArgsUsage: "JOB-ID",
				Action:    statusCommand,
			},
			{
				Name:      "cancel",
				Usage:     "Request cancellation of a job",
				ArgsUsage: "JOB-ID",
				Action:    cancelCommand,
			},
			{
				Name:   "warm",
				Usage:  "Refresh cached entries for a list of topics",
				Action: warmCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "topic",
						Aliases:  []string{"t"},
						Usage:    "Topic to warm (repeatable)",
						Required: true,
					},
				},
			},
			{
				Name:      "seed-products",
				Usage:     "Load products from a JSON file into the catalog",
				ArgsUsage: "FILE",
				Action:    seedProductsCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Re-embed every indexed fragment with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of fragments to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N fragments",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// openService builds a Service from the global flags and starts its workers.
func openService(c *cli.Context, opts ...contentforge.ServiceOption) (*contentforge.Service, error) {
	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("ai-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithGenerationModel(c.String("generation-model")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	opts = append(opts, contentforge.WithAIConfig(aiConfig))
	service, err := contentforge.NewService(c.String("db"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open service: %w", err)
	}

	if err := service.Start(); err != nil {
		service.Close()
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}
	return service, nil
}

// awaitJob polls until the job reaches a terminal status.
func awaitJob(ctx context.Context, service *contentforge.Service, jobId string) (*core.Job, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		job, err := service.JobStatus(ctx, jobId)
		if err != nil {
			return nil, err
		}
		if job.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func serveCommand(c *cli.Context) error {
	service, err := openService(c,
		contentforge.WithSweepInterval(c.Duration("sweep-interval")))
	if err != nil {
		return err
	}
	defer service.Close()

	slog.Info("pipeline running", "db", c.String("db"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	slog.Info("shutting down", "signal", sig.String())
	return nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one document file argument")
	}

	document, err := os.ReadFile(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	jobId, err := service.SubmitIngest(c.Context, string(document), c.String("source"))
	if err != nil {
		return fmt.Errorf("failed to submit ingest: %w", err)
	}
	fmt.Printf("job %s enqueued\n", jobId)

	if !c.Bool("wait") {
		return nil
	}

	job, err := awaitJob(c.Context, service, jobId)
	if err != nil {
		return err
	}
	if job.Status == core.JobFailed {
		return fmt.Errorf("ingest failed (%s): %s", job.ErrorKind, job.ErrorMessage)
	}
	fmt.Printf("job %s succeeded after %d attempt(s)\n", jobId, job.Attempts)
	return nil
}

func queryCommand(c *cli.Context) error {
	queryText := strings.Join(c.Args().Slice(), " ")
	if queryText == "" {
		return fmt.Errorf("query text is required")
	}

	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	jobId, err := service.SubmitQuery(ctx, queryText)
	if err != nil {
		return fmt.Errorf("failed to submit query: %w", err)
	}

	job, err := awaitJob(ctx, service, jobId)
	if err != nil {
		return err
	}
	if job.Status == core.JobFailed {
		return fmt.Errorf("query failed (%s): %s", job.ErrorKind, job.ErrorMessage)
	}

	response, err := service.QueryResult(ctx, jobId)
	if err != nil {
		return err
	}

	fmt.Println(response.Content)
	fmt.Println()
	fmt.Printf("[%d words, %d source fragments, cached=%t]\n",
		response.WordCount, len(response.SourceFragmentIds), response.FromCache)
	for _, product := range response.Products {
		fmt.Printf("  - %s (%s)\n", product.Name, product.Category)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one job id argument")
	}

	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	job, err := service.JobStatus(c.Context, c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to read job: %w", err)
	}

	fmt.Printf("job:      %s\n", job.Id)
	fmt.Printf("kind:     %s\n", job.Kind)
	fmt.Printf("status:   %s\n", job.Status)
	fmt.Printf("attempts: %d\n", job.Attempts)
	if job.Canceled {
		fmt.Println("canceled: true")
	}
	if job.ErrorKind != "" {
		fmt.Printf("error:    %s: %s\n", job.ErrorKind, job.ErrorMessage)
	}
	return nil
}

func cancelCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one job id argument")
	}

	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	if err := service.CancelJob(c.Context, c.Args().First()); err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	fmt.Println("cancellation requested")
	return nil
}

func warmCommand(c *cli.Context) error {
	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	enqueued, err := service.Warm(c.Context, c.StringSlice("topic"))
	if err != nil {
		return fmt.Errorf("failed to warm cache: %w", err)
	}

	fmt.Printf("%d topic(s) refreshed in place, %d enqueued\n",
		len(c.StringSlice("topic"))-len(enqueued), len(enqueued))
	for _, jobId := range enqueued {
		fmt.Printf("  job %s\n", jobId)
	}
	return nil
}

// productSeed is the JSON shape accepted by seed-products.
type productSeed struct {
	Id       uint64   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

func seedProductsCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one products file argument")
	}

	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to read products file: %w", err)
	}

	var seeds []productSeed
	if err := json.Unmarshal(data, &seeds); err != nil {
		return fmt.Errorf("failed to parse products file: %w", err)
	}
	if len(seeds) == 0 {
		return fmt.Errorf("products file is empty")
	}

	products := make([]*core.Product, len(seeds))
	for i, seed := range seeds {
		products[i] = &core.Product{
			Id:       core.ID(seed.Id),
			Name:     seed.Name,
			Category: seed.Category,
			Tags:     seed.Tags,
		}
	}

	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	if err := service.SeedProducts(c.Context, products...); err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}
	fmt.Printf("%d product(s) loaded\n", len(products))
	return nil
}

// reembedCommand runs the offline re-embedding pass directly against the
// store; pipeline workers must not be serving while it runs.
func reembedCommand(c *cli.Context) error {
	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("ai-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithGenerationModel(c.String("generation-model")),
	)
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid AI configuration: %w", err)
	}

	config := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	backend, err := badgerstore.OpenBackend(c.String("db"), false)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer backend.Close()

	fragments, err := badgerstore.NewFragmentRepository(backend)
	if err != nil {
		return fmt.Errorf("failed to create repository: %w", err)
	}
	defer fragments.Close()

	embedder, err := openai.NewEmbedder(aiConfig)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Database: %s\n", c.String("db"))
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", aiConfig.EmbeddingHost)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", aiConfig.EmbeddingModel)
	fmt.Fprintln(os.Stderr)

	reembedder := reembed.NewReembedder(fragments, embedder, config, os.Stderr)
	if err := reembedder.Run(c.Context); err != nil {
		return fmt.Errorf("re-embedding failed: %w", err)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
