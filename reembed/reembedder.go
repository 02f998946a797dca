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


package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/contentforge/ai"
	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/storage"
)

// Config holds configuration for a re-embedding pass.
type Config struct {
	// BatchSize is the number of fragments to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of fragments)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder orchestrates re-embedding every fragment in the vector index.
type Reembedder struct {
	repo      storage.FragmentRepository
	embedder  ai.Embedder
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *FragmentIterator
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(repo storage.FragmentRepository, embedder ai.Embedder, config *Config, progress io.Writer) *Reembedder {
	if config == nil {
		config = DefaultConfig()
	}

	processor := NewBatchProcessor(repo, embedder, config.MaxRetries, config.RetryDelay)
	iterator := NewFragmentIterator(repo, config.BatchSize)

	return &Reembedder{
		repo:      repo,
		embedder:  embedder,
		config:    config,
		progress:  progress,
		processor: processor,
		iterator:  iterator,
	}
}

// Run executes the re-embedding pass. Every fragment in the index is
// re-embedded with the configured embedder, and progress is reported to the
// configured writer.
func (r *Reembedder) Run(ctx context.Context) error {
	total, err := r.repo.CountFragments(ctx)
	if err != nil {
		return fmt.Errorf("failed to count fragments: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No fragments found in index (0 fragments)\n")
		return nil
	}

	fmt.Fprintf(r.progress, "Starting re-embedding of %d fragments (batch size: %d)\n",
		total, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = r.iterator.ForEach(ctx, func(fragments []*core.Fragment) error {
		if err := r.processor.Process(ctx, fragments); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}

		processed += len(fragments)
		tracker.Update(processed)
		return nil
	})
	if err != nil {
		return err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Re-embedding complete. Processed %d fragments in %v (%.1f fragments/sec)\n",
		total, elapsed.Round(time.Second), float64(total)/elapsed.Seconds())

	return nil
}
