package mock

import (
	"context"
	"sync"

	"github.com/poiesic/contentforge/ai"
)

// MockRecommender is a test double for ai.Recommender.
// It allows custom behavior injection via function fields.
type MockRecommender struct {
	// RecommendFunc is called by Recommend if set.
	// If nil, returns Products.
	RecommendFunc func(ctx context.Context, content string) ([]ai.RankedProduct, error)

	// Products is the default recommendation result.
	Products []ai.RankedProduct

	mu        sync.Mutex
	callCount int
}

// NewMockRecommender creates a mock recommender that returns an empty list by
// default. Note: Returns concrete type to allow test assertions via
// GetMockRecommender().
func NewMockRecommender() *MockRecommender {
	return &MockRecommender{}
}

// Recommend returns the configured products or delegates to RecommendFunc.
func (m *MockRecommender) Recommend(ctx context.Context, content string) ([]ai.RankedProduct, error) {
	m.mu.Lock()
	m.callCount++
	fn := m.RecommendFunc
	products := m.Products
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, content)
	}
	return products, nil
}

// CallCount returns the number of times Recommend was called.
func (m *MockRecommender) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and injected behavior.
func (m *MockRecommender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.RecommendFunc = nil
	m.Products = nil
}
