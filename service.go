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


package contentforge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/contentforge/ai"
	"github.com/poiesic/contentforge/ai/openai"
	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/pipeline"
	"github.com/poiesic/contentforge/storage"
	"github.com/poiesic/contentforge/storage/badger"
)

// Service is the root aggregate: it owns the storage backend, the AI
// provider and the pipeline coordinator, and exposes the external
// interface of the retrieval pipeline.
type Service struct {
	backend     *badger.Backend
	stores      *badger.Stores
	provider    ai.AIProvider
	coordinator *pipeline.Coordinator

	sweepInterval time.Duration
	sweepStop     chan struct{}
	sweepDone     chan struct{}

	logger *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	aiConfig      *ai.Config
	provider      ai.AIProvider
	inMemory      bool
	sweepInterval time.Duration
	pipelineOpts  []pipeline.Option
}

// WithAIConfig sets the AI endpoint configuration.
func WithAIConfig(config *ai.Config) ServiceOption {
	return func(o *serviceOptions) {
		o.aiConfig = config
	}
}

// WithProvider injects a pre-built AI provider instead of constructing one
// from the AI config. Used by tests to run against mocks.
func WithProvider(provider ai.AIProvider) ServiceOption {
	return func(o *serviceOptions) {
		o.provider = provider
	}
}

// WithInMemory opens an in-memory storage backend. The file path passed to
// NewService is ignored.
func WithInMemory() ServiceOption {
	return func(o *serviceOptions) {
		o.inMemory = true
	}
}

// WithSweepInterval sets how often the cache maintenance sweep runs.
// Default is one minute.
func WithSweepInterval(interval time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		if interval > 0 {
			o.sweepInterval = interval
		}
	}
}

// WithPipelineOptions forwards options to the pipeline coordinator.
func WithPipelineOptions(opts ...pipeline.Option) ServiceOption {
	return func(o *serviceOptions) {
		o.pipelineOpts = append(o.pipelineOpts, opts...)
	}
}

// NewService opens the storage backend at filePath and wires up the
// repositories, the AI provider and the coordinator.
func NewService(filePath string, opts ...ServiceOption) (*Service, error) {
	options := &serviceOptions{
		aiConfig:      ai.DefaultConfig(),
		sweepInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	stores, err := badger.NewStores(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig, &catalogAdapter{products: stores.Products})
		if err != nil {
			stores.Close()
			backend.Close()
			return nil, err
		}
	}

	coordinator, err := pipeline.NewCoordinator(
		stores.Fragments, stores.Results, stores.Cache, stores.Jobs,
		provider, options.pipelineOpts...)
	if err != nil {
		provider.Close()
		stores.Close()
		backend.Close()
		return nil, err
	}

	return &Service{
		backend:       backend,
		stores:        stores,
		provider:      provider,
		coordinator:   coordinator,
		sweepInterval: options.sweepInterval,
		logger:        slog.Default().With("component", "service"),
	}, nil
}

// Start launches the pipeline workers and the cache maintenance sweep.
func (s *Service) Start() error {
	if err := s.coordinator.Start(); err != nil {
		return err
	}

	s.sweepStop = make(chan struct{})
	s.sweepDone = make(chan struct{})
	go s.sweep(s.sweepStop, s.sweepDone)
	return nil
}

// sweep periodically purges expired cache entries to bound storage growth.
func (s *Service) sweep(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			purged, err := s.stores.Cache.SweepExpired(context.Background())
			if err != nil {
				s.logger.Warn("error sweeping expired cache entries", "err", err)
				continue
			}
			if purged > 0 {
				s.logger.Debug("swept expired cache entries", "purged", purged)
			}
		}
	}
}

// SubmitIngest enqueues a document for asynchronous ingestion.
func (s *Service) SubmitIngest(ctx context.Context, documentText, sourceId string) (string, error) {
	return s.coordinator.SubmitIngest(ctx, documentText, sourceId)
}

// SubmitQuery enqueues a query for asynchronous resolution.
func (s *Service) SubmitQuery(ctx context.Context, queryText string) (string, error) {
	return s.coordinator.SubmitQuery(ctx, queryText)
}

// JobStatus returns a snapshot of a job's current state.
func (s *Service) JobStatus(ctx context.Context, jobId string) (*core.Job, error) {
	return s.coordinator.JobStatus(ctx, jobId)
}

// CancelJob requests cooperative cancellation of a job.
func (s *Service) CancelJob(ctx context.Context, jobId string) error {
	return s.coordinator.CancelJob(ctx, jobId)
}

// Warm refreshes cached entries for the given topics, enqueuing refresh
// queries for topics without a live entry.
func (s *Service) Warm(ctx context.Context, topics []string) ([]string, error) {
	return s.coordinator.Warm(ctx, topics)
}

// QueryResult assembles the response payload for a succeeded query job.
func (s *Service) QueryResult(ctx context.Context, jobId string) (*core.QueryResponse, error) {
	job, err := s.coordinator.JobStatus(ctx, jobId)
	if err != nil {
		return nil, err
	}
	if job.Kind != core.JobKindQuery {
		return nil, fmt.Errorf("%w: job %s is not a query job", core.ErrInvalidInput, jobId)
	}
	if job.Status != core.JobSucceeded {
		return nil, fmt.Errorf("%w: job %s has not succeeded", core.ErrInvalidInput, jobId)
	}

	result, err := s.stores.Results.GetResult(ctx, job.ResultId)
	if err != nil {
		return nil, err
	}

	products := make([]core.ProductRef, 0, len(result.ProductIds))
	for _, id := range result.ProductIds {
		product, err := s.stores.Products.GetProduct(ctx, id)
		if err != nil {
			// A product removed from the catalog after ranking is skipped.
			continue
		}
		products = append(products, core.ProductRef{
			Id:       product.Id,
			Name:     product.Name,
			Category: product.Category,
		})
	}

	return &core.QueryResponse{
		Content:           result.Content,
		WordCount:         result.WordCount(),
		SourceFragmentIds: result.SourceFragmentIds,
		Products:          products,
		FromCache:         job.FromCache,
	}, nil
}

// SeedProducts loads products into the catalog.
func (s *Service) SeedProducts(ctx context.Context, products ...*core.Product) error {
	_, err := s.stores.Products.AddProducts(ctx, products...)
	return err
}

// FragmentRepository exposes the vector index for tooling.
func (s *Service) FragmentRepository() storage.FragmentRepository {
	return s.stores.Fragments
}

// ProductRepository exposes the product catalog for tooling.
func (s *Service) ProductRepository() storage.ProductRepository {
	return s.stores.Products
}

// Close drains the pipeline, stops the sweep and releases all resources.
func (s *Service) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.coordinator.Shutdown(ctx); err != nil {
		s.logger.Error("error draining pipeline", "err", err)
	}

	if s.sweepStop != nil {
		close(s.sweepStop)
		<-s.sweepDone
		s.sweepStop = nil
	}

	if err := s.provider.Close(); err != nil {
		s.logger.Error("error closing AI provider", "err", err)
	}
	if err := s.stores.Close(); err != nil {
		s.logger.Error("error closing repositories", "err", err)
		return err
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// catalogAdapter bridges the product repository to the recommendation
// capability's catalog interface.
type catalogAdapter struct {
	products storage.ProductRepository
}

var _ ai.CatalogSearcher = (*catalogAdapter)(nil)

// FindByCategories looks up catalog products matching the extracted
// categories.
func (a *catalogAdapter) FindByCategories(ctx context.Context, categories []string, limit int) ([]ai.RankedProduct, error) {
	products, err := a.products.FindByCategories(ctx, categories, limit)
	if err != nil {
		return nil, err
	}

	ranked := make([]ai.RankedProduct, len(products))
	for i, product := range products {
		ranked[i] = ai.RankedProduct{
			Id:       uint64(product.Id),
			Name:     product.Name,
			Category: product.Category,
		}
	}
	return ranked, nil
}
