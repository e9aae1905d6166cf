package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/data/redisStore"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

const feedbackKey = "feedback"

type RedisFeedbackStore struct {
	store  *redisStore.Store
	logger *logger_i.Logger
}

func GetRedisFeedbackStore(ctx context.Context, opts redisStore.Options) *RedisFeedbackStore {
	s := redisStore.GetRedisStore(ctx, opts, config.RedisFeedbackStore)
	if s == nil {
		return nil
	}
	return NewRedisFeedbackStore(s)
}

func NewRedisFeedbackStore(s *redisStore.Store) *RedisFeedbackStore {
	return &RedisFeedbackStore{
		store:  s,
		logger: logger_i.NewLogger("FeedbackStore"),
	}
}

func (s *RedisFeedbackStore) AppendFeedback(ctx context.Context, record commonModels.FeedbackRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	if err = s.store.ListPush(ctx, feedbackKey, data); err != nil {
		s.logger.WithTrace(ctx).Error("saving feedback failed", "answerId", record.AnswerId, "error", err)
		return err
	}
	s.logger.WithTrace(ctx).Debug("feedback saved", "answerId", record.AnswerId, "verdict", record.Verdict)
	return nil
}

func (s *RedisFeedbackStore) ListFeedback(ctx context.Context) ([]commonModels.FeedbackRecord, error) {
	raw, err := s.store.ListGetAll(ctx, feedbackKey)
	if err != nil {
		return nil, err
	}
	records := make([]commonModels.FeedbackRecord, 0, len(raw))
	for _, item := range raw {
		var record commonModels.FeedbackRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			s.logger.WithTrace(ctx).Warn("skipping corrupt feedback entry", "error", err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
