package qdrantDB

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/internal/rag/lexical"
	"github.com/akolanti/CivicRAG/internal/rag/vectorDB"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
	"github.com/qdrant/go-client/qdrant"
)

const (
	upsertBatchSize = 256
	// upper bound for one document's chunks and for the relaxed prefix scan
	scrollLimit = 10000
)

type Config struct {
	Host       string
	Port       int
	Collection string
	Dimension  uint64
}

// ChunkStore keeps every jurisdiction in one collection, isolation is a payload filter on
// jurisdiction_id applied to every read.
type ChunkStore struct {
	client     *qdrant.Client
	collection string
	dimension  uint64
	logger     *logger_i.Logger
}

func NewClient(cfg Config) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		UseTLS:   config.QdrantUseTLS,
		PoolSize: uint(config.QdrantPoolSize),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	return client, nil
}

func NewChunkStore(ctx context.Context, client *qdrant.Client, cfg Config) (*ChunkStore, error) {
	s := &ChunkStore{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		logger:     logger_i.NewLogger("qdrant chunk store"),
	}
	if err := createCollection(ctx, client, cfg.Collection, cfg.Dimension); err != nil {
		return nil, fmt.Errorf("qdrant: create collection %s: %w", cfg.Collection, err)
	}
	if err := s.createPayloadIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ChunkStore) createPayloadIndexes(ctx context.Context) error {
	for _, field := range []string{"jurisdiction_id", "document_id"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("qdrant: index %s: %w", field, err)
		}
	}
	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "text",
		FieldType:      qdrant.FieldType_FieldTypeText.Enum(),
		FieldIndexParams: qdrant.NewPayloadIndexParamsText(&qdrant.TextIndexParams{
			Tokenizer: qdrant.TokenizerType_Word,
			Lowercase: qdrant.PtrOf(true),
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant: text index: %w", err)
	}
	return nil
}

func (s *ChunkStore) Close() error {
	s.logger.Info("closing qdrant")
	return s.client.Close()
}

func jurisdictionFilter(jurisdictionId string, extra ...*qdrant.Condition) *qdrant.Filter {
	return &qdrant.Filter{Must: append([]*qdrant.Condition{qdrant.NewMatch("jurisdiction_id", jurisdictionId)}, extra...)}
}

func documentFilter(documentId string) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentId)}}
}

func (s *ChunkStore) InsertChunks(ctx context.Context, documentId string, chunks []commonModels.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	dim := vectorDB.UniformDimension(chunks)
	if dim <= 0 || uint64(dim) != s.dimension {
		return fmt.Errorf("%w: collection expects %d, document %s has %d", ragErrors.ErrDimensionMismatch, s.dimension, documentId, dim)
	}
	if err := s.checkModel(ctx, chunks[0].JurisdictionId, chunks[0].EmbeddingModel); err != nil {
		return err
	}

	start := time.Now()
	defer func() { metrics.CaptureDependencyLatency("qdrant_upsert", time.Since(start)) }()

	for from := 0; from < len(chunks); from += upsertBatchSize {
		to := min(from+upsertBatchSize, len(chunks))
		points := make([]*qdrant.PointStruct, 0, to-from)
		for _, c := range chunks[from:to] {
			if c.DocumentId != documentId {
				return fmt.Errorf("chunk %s belongs to document %s, not %s", c.Id, c.DocumentId, documentId)
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(c.Id),
				Vectors: qdrant.NewVectors(c.Embedding...),
				Payload: qdrant.NewValueMap(toPayload(c)),
			})
		}
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			// undo the batches that already landed so the document is never half indexed
			if _, cleanupErr := s.DeleteByDocument(context.WithoutCancel(ctx), documentId); cleanupErr != nil {
				s.logger.WithTrace(ctx).Error("compensating delete failed", "documentId", documentId, "error", cleanupErr)
			}
			return fmt.Errorf("qdrant upsert failed: %w", err)
		}
	}
	return nil
}

// checkModel rejects inserts into a jurisdiction already holding vectors from another model.
func (s *ChunkStore) checkModel(ctx context.Context, jurisdictionId, model string) error {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			Must:    []*qdrant.Condition{qdrant.NewMatch("jurisdiction_id", jurisdictionId)},
			MustNot: []*qdrant.Condition{qdrant.NewMatch("embedding_model", model)},
		},
		Limit:       qdrant.PtrOf(uint32(1)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return err
	}
	if len(points) > 0 {
		other := points[0].GetPayload()["embedding_model"].GetStringValue()
		return fmt.Errorf("%w: jurisdiction %s is indexed with %s, got %s", ragErrors.ErrDimensionMismatch, jurisdictionId, other, model)
	}
	return nil
}

func (s *ChunkStore) DeleteByDocument(ctx context.Context, documentId string) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         documentFilter(documentId),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(documentFilter(documentId)),
	})
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *ChunkStore) FindByDocument(ctx context.Context, documentId string) ([]commonModels.Chunk, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         documentFilter(documentId),
		Limit:          qdrant.PtrOf(uint32(scrollLimit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	chunks := make([]commonModels.Chunk, 0, len(points))
	for _, p := range points {
		chunks = append(chunks, fromPayload(p.GetId().GetUuid(), p.GetPayload()))
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].SequenceIndex < chunks[j].SequenceIndex })
	return chunks, nil
}

func (s *ChunkStore) FindByJurisdiction(ctx context.Context, jurisdictionId string, text string, limit int) ([]commonModels.Chunk, error) {
	if limit <= 0 {
		limit = 100
	}
	filter := jurisdictionFilter(jurisdictionId)
	if text != "" {
		filter = jurisdictionFilter(jurisdictionId, qdrant.NewMatchText("text", text))
	}
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	chunks := make([]commonModels.Chunk, 0, len(points))
	for _, p := range points {
		chunks = append(chunks, fromPayload(p.GetId().GetUuid(), p.GetPayload()))
	}
	return chunks, nil
}

func (s *ChunkStore) CountByJurisdiction(ctx context.Context, jurisdictionId string) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         jurisdictionFilter(jurisdictionId),
		Exact:          qdrant.PtrOf(true),
	})
	return int(count), err
}

func (s *ChunkStore) SearchDense(ctx context.Context, jurisdictionId string, vector []float32, limit int) ([]commonModels.ScoredChunk, error) {
	if uint64(len(vector)) != s.dimension {
		return nil, fmt.Errorf("%w: collection expects %d, query has %d", ragErrors.ErrDimensionMismatch, s.dimension, len(vector))
	}
	start := time.Now()
	defer func() { metrics.CaptureDependencyLatency("qdrant_search", time.Since(start)) }()

	result, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         jurisdictionFilter(jurisdictionId),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		s.logger.WithTrace(ctx).Error("error querying qdrant", "error", err)
		return nil, err
	}
	hits := make([]commonModels.ScoredChunk, 0, len(result))
	for _, hit := range result {
		hits = append(hits, commonModels.ScoredChunk{
			Chunk: fromPayload(hit.GetId().GetUuid(), hit.GetPayload()),
			Score: float64(hit.GetScore()),
		})
	}
	return hits, nil
}

// SearchLexical uses the full text payload index for exact terms. Prefix terms cannot be served by
// a word index, so the relaxed variant scans the jurisdiction and matches locally.
func (s *ChunkStore) SearchLexical(ctx context.Context, jurisdictionId string, query vectorDB.LexicalQuery, limit int) ([]commonModels.ScoredChunk, error) {
	if len(query.Terms) == 0 {
		return nil, nil
	}
	filter := jurisdictionFilter(jurisdictionId)
	scanLimit := uint32(scrollLimit)
	if !query.Prefix {
		should := make([]*qdrant.Condition, 0, len(query.Terms))
		for _, term := range query.Terms {
			should = append(should, qdrant.NewMatchText("text", term))
		}
		filter.Should = should
		scanLimit = uint32(max(limit*5, 50))
	}

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(scanLimit),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	hits := make([]commonModels.ScoredChunk, 0, len(points))
	for _, p := range points {
		c := fromPayload(p.GetId().GetUuid(), p.GetPayload())
		score := lexical.NewIndex(c.Text).Score(query.Terms, query.Prefix)
		if score == 0 {
			continue
		}
		hits = append(hits, commonModels.ScoredChunk{Chunk: c, Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.Id < hits[j].Chunk.Id
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func createCollection(ctx context.Context, client *qdrant.Client, collectionName string, dimension uint64) error {
	if collectionName == "" {
		return errors.New("empty collection name")
	}

	exists, err := client.CollectionExists(ctx, collectionName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	return client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}
