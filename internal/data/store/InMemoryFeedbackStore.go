package store

import (
	"context"
	"sync"

	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
)

type InMemoryFeedbackStore struct {
	mu      *sync.RWMutex
	records []commonModels.FeedbackRecord
}

func InitInMemoryFeedbackStore() *InMemoryFeedbackStore {
	return &InMemoryFeedbackStore{mu: new(sync.RWMutex)}
}

func (s *InMemoryFeedbackStore) AppendFeedback(ctx context.Context, record commonModels.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *InMemoryFeedbackStore) ListFeedback(ctx context.Context) ([]commonModels.FeedbackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]commonModels.FeedbackRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}
