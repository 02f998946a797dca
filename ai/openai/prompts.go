package openai

import (
	"fmt"
	"strings"
)

// maxContextChars bounds how much retrieved context is inlined into the
// generation prompt.
const maxContextChars = 2000

// insufficientContextSentinel is the marker the model is instructed to emit
// when the supplied context cannot ground the requested content.
const insufficientContextSentinel = "INSUFFICIENT_CONTEXT"

const generationPromptTemplate = `Based on ONLY the following context information, write about %s.
If you cannot find enough relevant information in the context, respond with '%s'.

CONTEXT:
%s

RULES:
1. Use ONLY information from the context
2. Do not add external knowledge
3. Write exactly %d words
4. Include technical details from context
5. Be specific and accurate
6. No general statements
7. Focus on factual content

Write the content:`

// buildGenerationPrompt assembles the strict context-bound generation prompt.
// Context is truncated to maxContextChars so oversized retrievals cannot blow
// the model's window.
func buildGenerationPrompt(topic string, contextFragments []string, targetWords int) string {
	contextText := strings.Join(contextFragments, "\n")
	if len(contextText) > maxContextChars {
		contextText = contextText[:maxContextChars]
	}
	return fmt.Sprintf(generationPromptTemplate, topic, insufficientContextSentinel, contextText, targetWords)
}

const categoryPromptTemplate = `Based on this content, suggest %d specific product categories.
Content: %s

Requirements:
- List only product category names
- One per line
- Focus on practical items
- Must be relevant to topic

Categories:`

// maxCategoryContentChars bounds how much generated content is shown to the
// category extraction prompt.
const maxCategoryContentChars = 500

// buildCategoryPrompt assembles the product category extraction prompt.
func buildCategoryPrompt(content string, maxCategories int) string {
	if len(content) > maxCategoryContentChars {
		content = content[:maxCategoryContentChars] + "..."
	}
	return fmt.Sprintf(categoryPromptTemplate, maxCategories, content)
}

// categoryLinePrefixes are echoes of the prompt scaffolding that models tend
// to repeat; lines starting with any of these are not categories.
var categoryLinePrefixes = []string{"Based", "Categories", "Requirements", "Content"}

// parseCategories extracts category names from a model response, one per
// line, skipping prompt echoes and list markers.
func parseCategories(response string, maxCategories int) []string {
	var categories []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. ")
		if line == "" {
			continue
		}
		if hasAnyPrefix(line, categoryLinePrefixes) {
			continue
		}
		categories = append(categories, line)
		if len(categories) == maxCategories {
			break
		}
	}
	return categories
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
