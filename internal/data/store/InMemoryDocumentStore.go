package store

import (
	"context"
	"sync"

	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/domain/jobModel"
)

type InMemoryDocumentStore struct {
	mu   *sync.RWMutex
	docs map[string]commonModels.Document
}

func InitInMemoryDocumentStore() *InMemoryDocumentStore {
	return &InMemoryDocumentStore{
		mu:   new(sync.RWMutex),
		docs: make(map[string]commonModels.Document),
	}
}

func (s *InMemoryDocumentStore) SaveDocument(ctx context.Context, doc commonModels.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.Id] = doc
	return nil
}

func (s *InMemoryDocumentStore) GetDocument(ctx context.Context, documentId string) (commonModels.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, found := s.docs[documentId]
	return doc, found
}

func (s *InMemoryDocumentStore) DeleteDocument(ctx context.Context, documentId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, documentId)
	return nil
}

func (s *InMemoryDocumentStore) ListDocuments(ctx context.Context, filter jobModel.DocumentFilter) ([]commonModels.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]commonModels.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		if filter.Matches(doc) {
			docs = append(docs, doc)
		}
	}
	sortDocuments(docs)
	return docs, nil
}
