package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/data/redisStore"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/domain/jobModel"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
	"github.com/redis/go-redis/v9"
)

const (
	documentKeyPrefix = "document:"
	documentIndexKey  = "documents"
)

// RedisDocumentStore keeps document records without a TTL, failed ones included, so operators can
// inspect them later.
type RedisDocumentStore struct {
	store  *redisStore.Store
	logger *logger_i.Logger
}

func GetRedisDocumentStore(ctx context.Context, opts redisStore.Options) *RedisDocumentStore {
	s := redisStore.GetRedisStore(ctx, opts, config.RedisDocumentStore)
	if s == nil {
		return nil
	}
	return NewRedisDocumentStore(s)
}

func NewRedisDocumentStore(s *redisStore.Store) *RedisDocumentStore {
	return &RedisDocumentStore{
		store:  s,
		logger: logger_i.NewLogger("DocumentStore"),
	}
}

func documentKey(id string) string {
	return documentKeyPrefix + id
}

func (s *RedisDocumentStore) SaveDocument(ctx context.Context, doc commonModels.Document) error {
	log := s.logger.WithTrace(ctx).With("documentId", doc.Id)
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	err = s.store.Atomic(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, documentKey(doc.Id), data, 0)
		pipe.SAdd(ctx, documentIndexKey, doc.Id)
		return nil
	})
	if err != nil {
		log.Error("saving document failed", "error", err)
		return err
	}
	log.Debug("saved document", "status", doc.Status)
	return nil
}

func (s *RedisDocumentStore) GetDocument(ctx context.Context, documentId string) (commonModels.Document, bool) {
	var doc commonModels.Document
	val, err := s.store.Get(ctx, documentKey(documentId))
	if s.store.IsNil(err) {
		return doc, false
	} else if err != nil {
		s.logger.WithTrace(ctx).Error("reading document failed", "documentId", documentId, "error", err)
		return doc, false
	}

	if err = json.Unmarshal([]byte(val), &doc); err != nil {
		s.logger.WithTrace(ctx).Error("corrupt document record", "documentId", documentId, "error", err)
		return doc, false
	}
	return doc, true
}

func (s *RedisDocumentStore) DeleteDocument(ctx context.Context, documentId string) error {
	return s.store.Atomic(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, documentKey(documentId))
		pipe.SRem(ctx, documentIndexKey, documentId)
		return nil
	})
}

func (s *RedisDocumentStore) ListDocuments(ctx context.Context, filter jobModel.DocumentFilter) ([]commonModels.Document, error) {
	ids, err := s.store.SetMembers(ctx, documentIndexKey)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = documentKey(id)
	}
	values, err := s.store.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}

	docs := make([]commonModels.Document, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var doc commonModels.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			continue
		}
		if filter.Matches(doc) {
			docs = append(docs, doc)
		}
	}
	sortDocuments(docs)
	return docs, nil
}

// newest first, id breaks ties so listings are stable
func sortDocuments(docs []commonModels.Document) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].Id < docs[j].Id
	})
}
