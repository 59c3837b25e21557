// Package composertest provides test helpers for the composer package.
package composertest

import (
	"context"
	"sync"

	"github.com/flemzord/recall/internal/composer"
)

// MockGenerator is a configurable composer.TextGenerator. An unset
// GenerateFunc returns an empty answer, which the composer rejects.
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, prompt string, c composer.Constraints) (string, error)

	mu      sync.Mutex
	prompts []string
}

// Answer returns a mock that always replies text.
func Answer(text string) *MockGenerator {
	return &MockGenerator{
		GenerateFunc: func(context.Context, string, composer.Constraints) (string, error) {
			return text, nil
		},
	}
}

// Generate records prompt and delegates to GenerateFunc.
func (m *MockGenerator) Generate(ctx context.Context, prompt string, c composer.Constraints) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.GenerateFunc == nil {
		return "", nil
	}
	return m.GenerateFunc(ctx, prompt, c)
}

// Prompts returns every prompt received.
func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

var _ composer.TextGenerator = (*MockGenerator)(nil)
