package mocks

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrMockUnavailable = errors.New("mock backend unavailable")

// MockEmbeddingService embeds text as letter frequencies, so texts sharing
// letters are similar. It never returns a zero vector.
type MockEmbeddingService struct {
	mu        sync.Mutex
	failCalls int
	calls     int
	batches   [][]string
}

func NewMockEmbeddingService() *MockEmbeddingService {
	return &MockEmbeddingService{}
}

func (m *MockEmbeddingService) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := m.tick(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), texts...))
	m.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = letterVector(t)
	}
	return out, nil
}

func (m *MockEmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := m.tick(); err != nil {
		return nil, err
	}
	return letterVector(text), nil
}

func (m *MockEmbeddingService) tick() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failCalls > 0 {
		m.failCalls--
		return ErrMockUnavailable
	}
	return nil
}

// SetFailNext makes the next n calls fail.
func (m *MockEmbeddingService) SetFailNext(n int) {
	m.mu.Lock()
	m.failCalls = n
	m.mu.Unlock()
}

func (m *MockEmbeddingService) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Batches returns the texts of every EmbedDocuments call.
func (m *MockEmbeddingService) Batches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}

func letterVector(text string) []float32 {
	v := make([]float32, 27)
	v[26] = 0.1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}
