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
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/contentforge/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
// Generated content is grounded strictly in the supplied context fragments.
type Generator struct {
	client      llms.Model
	targetWords int
	logger      *slog.Logger
}

// newGenerator is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newGenerator(config *ai.Config) (*Generator, error) {
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

	return &Generator{
		client:      client,
		targetWords: config.TargetWords,
		logger:      slog.Default().With("component", "openai-generator"),
	}, nil
}

// NewGenerator creates a new generator using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

// Generate produces content about the topic using only the given context
// fragments. Returns ai.ErrInsufficientContext when the model reports that the
// context cannot ground the topic, or when no fragments are supplied.
func (g *Generator) Generate(ctx context.Context, topic string, contextFragments []string) (string, error) {
	if len(contextFragments) == 0 {
		return "", fmt.Errorf("%w: no context fragments for %q", ai.ErrInsufficientContext, topic)
	}

	prompt := buildGenerationPrompt(topic, contextFragments, g.targetWords)
	g.logger.Debug("generating content", "topic", topic, "fragments", len(contextFragments), "promptChars", len(prompt))

	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(prompt),
			},
		},
	}

	response, err := g.client.GenerateContent(ctx, content, llms.WithTemperature(0.6))
	if err != nil {
		g.logger.Error("failed to generate content", "topic", topic, "err", err)
		return "", err
	}
	if len(response.Choices) < 1 {
		return "", fmt.Errorf("model returned no choices for topic %q", topic)
	}

	text := strings.TrimSpace(response.Choices[0].Content)
	if strings.Contains(text, insufficientContextSentinel) {
		return "", fmt.Errorf("%w: %q", ai.ErrInsufficientContext, topic)
	}

	// Trim overlong output toward the target word count.
	words := strings.Fields(text)
	if len(words) > g.targetWords {
		text = strings.Join(words[:g.targetWords], " ")
	}

	return text, nil
}
