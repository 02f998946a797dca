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


package openai

import (
	"context"
	"log/slog"

	"github.com/poiesic/contentforge/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Recommender implements ai.Recommender using OpenAI-compatible chat APIs.
// It extracts product categories from generated content with an LLM and ranks
// catalog products matching those categories.
type Recommender struct {
	client        llms.Model
	catalog       ai.CatalogSearcher
	maxCategories int
	maxProducts   int
	logger        *slog.Logger
}

// newRecommender is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newRecommender(config *ai.Config, catalog ai.CatalogSearcher) (*Recommender, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Use "none" as token for local OpenAI-compatible services that don't require authentication
	client, err := openai.New(
		openai.WithBaseURL(config.GenerationHost),
		openai.WithToken("none"),
		openai.WithModel(config.GenerationModel),
	)
	if err != nil {
		return nil, err
	}

	return &Recommender{
		client:        client,
		catalog:       catalog,
		maxCategories: config.MaxCategories,
		maxProducts:   config.MaxProducts,
		logger:        slog.Default().With("component", "openai-recommender"),
	}, nil
}

// NewRecommender creates a new recommender using the provided configuration
// and product catalog.
//
// Returns ai.Recommender interface to enforce abstraction.
func NewRecommender(config *ai.Config, catalog ai.CatalogSearcher) (ai.Recommender, error) {
	return newRecommender(config, catalog)
}

// Recommend extracts product categories from the content and returns matching
// catalog products, best match first. An empty result is not an error.
func (r *Recommender) Recommend(ctx context.Context, content string) ([]ai.RankedProduct, error) {
	prompt := buildCategoryPrompt(content, r.maxCategories)

	messages := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(prompt),
			},
		},
	}

	// Low temperature: category names should be stable, not creative.
	response, err := r.client.GenerateContent(ctx, messages, llms.WithTemperature(0.3))
	if err != nil {
		r.logger.Error("failed to extract product categories", "err", err)
		return nil, err
	}
	if len(response.Choices) < 1 {
		r.logger.Debug("no choices returned from model")
		return []ai.RankedProduct{}, nil
	}

	categories := parseCategories(response.Choices[0].Content, r.maxCategories)
	r.logger.Debug("extracted product categories", "categories", categories)
	if len(categories) == 0 {
		return []ai.RankedProduct{}, nil
	}

	products, err := r.catalog.FindByCategories(ctx, categories, r.maxProducts)
	if err != nil {
		r.logger.Error("catalog lookup failed", "err", err)
		return nil, err
	}
	return products, nil
}
