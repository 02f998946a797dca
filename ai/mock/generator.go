package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/poiesic/contentforge/ai"
)

// MockGenerator is a test double for ai.Generator.
// It allows custom behavior injection via function fields.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, uses default deterministic behavior.
	GenerateFunc func(ctx context.Context, topic string, contextFragments []string) (string, error)

	mu        sync.Mutex
	callCount int
}

// NewMockGenerator creates a mock generator with default deterministic behavior.
// Note: Returns concrete type to allow test assertions via GetMockGenerator().
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate produces deterministic content derived from the topic and context.
// With no fragments it returns ai.ErrInsufficientContext like the production
// implementation.
func (m *MockGenerator) Generate(ctx context.Context, topic string, contextFragments []string) (string, error) {
	m.mu.Lock()
	m.callCount++
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, topic, contextFragments)
	}

	if len(contextFragments) == 0 {
		return "", fmt.Errorf("%w: no context fragments for %q", ai.ErrInsufficientContext, topic)
	}

	return fmt.Sprintf("Generated content about %s drawing on %d fragments. %s",
		topic, len(contextFragments), strings.Join(contextFragments, " ")), nil
}

// CallCount returns the number of times Generate was called.
// Safe for concurrent use, so single-flight tests can assert on it.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and injected behavior.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.GenerateFunc = nil
}
