// Package plannertest provides test helpers for the planner package.
package plannertest

import (
	"context"
	"sync"

	"github.com/flemzord/recall/internal/planner"
)

// MockClassifier is a configurable planner.TextClassifier. An unset
// ClassifyFunc returns the zero Classification, whose empty intent the
// planner rejects.
type MockClassifier struct {
	ClassifyFunc func(ctx context.Context, text string) (planner.Classification, error)

	mu    sync.Mutex
	texts []string
}

// Classify records text and delegates to ClassifyFunc.
func (m *MockClassifier) Classify(ctx context.Context, text string) (planner.Classification, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()
	if m.ClassifyFunc == nil {
		return planner.Classification{}, nil
	}
	return m.ClassifyFunc(ctx, text)
}

// Calls returns every text classified so far.
func (m *MockClassifier) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.texts))
	copy(out, m.texts)
	return out
}

var _ planner.TextClassifier = (*MockClassifier)(nil)
