package qdrantDB

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// SemanticCache stores grounded answers keyed by the translated query vector. A hit needs the
// same jurisdiction, the same answer language and a near identical question.
type SemanticCache struct {
	client     *qdrant.Client
	collection string
	cutoff     float32
	logger     *logger_i.Logger
}

func NewSemanticCache(ctx context.Context, client *qdrant.Client, dimension uint64) (*SemanticCache, error) {
	if err := createCollection(ctx, client, config.AnswerCacheCollection, dimension); err != nil {
		return nil, fmt.Errorf("qdrant: create answer cache: %w", err)
	}
	_, err := client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: config.AnswerCacheCollection,
		FieldName:      "jurisdiction_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: index answer cache: %w", err)
	}
	return &SemanticCache{
		client:     client,
		collection: config.AnswerCacheCollection,
		cutoff:     config.CacheSimilarityCutoff,
		logger:     logger_i.NewLogger("semantic cache"),
	}, nil
}

func (c *SemanticCache) Lookup(ctx context.Context, jurisdictionId, language string, vector []float32) (commonModels.Answer, bool) {
	log := c.logger.WithTrace(ctx)
	result, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter: &qdrant.Filter{Must: []*qdrant.Condition{
			qdrant.NewMatch("jurisdiction_id", jurisdictionId),
			qdrant.NewMatch("language", language),
		}},
		Limit:          qdrant.PtrOf(uint64(1)),
		ScoreThreshold: qdrant.PtrOf(c.cutoff),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		log.Warn("cache query failed", "error", err)
		return commonModels.Answer{}, false
	}
	if len(result) == 0 {
		return commonModels.Answer{}, false
	}

	var answer commonModels.Answer
	if err := json.Unmarshal([]byte(result[0].GetPayload()["answer"].GetStringValue()), &answer); err != nil {
		log.Warn("corrupt cache entry", "error", err)
		return commonModels.Answer{}, false
	}
	log.Debug("cache hit", "semantic similarity score", result[0].GetScore())
	return answer, true
}

func (c *SemanticCache) Store(ctx context.Context, jurisdictionId, language string, vector []float32, answer commonModels.Answer) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	_, err = c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(uuid.NewString()),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"jurisdiction_id": jurisdictionId,
					"language":        language,
					"answer":          string(data),
					"timestamp":       time.Now().Unix(),
				}),
			},
		},
	})
	if err != nil {
		c.logger.WithTrace(ctx).Error("saving answer to cache failed", "error", err)
	}
	return err
}

// Invalidate drops every cached answer of a jurisdiction, called whenever its documents change.
func (c *SemanticCache) Invalidate(ctx context.Context, jurisdictionId string) error {
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.collection,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{Must: []*qdrant.Condition{
			qdrant.NewMatch("jurisdiction_id", jurisdictionId),
		}}),
	})
	return err
}
