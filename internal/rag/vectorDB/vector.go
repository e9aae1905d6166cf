package vectorDB

import (
	"context"
	"math"

	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
)

// ChunkStore is the persistent chunk index. Every read is scoped by jurisdiction or document,
// nothing crosses tenants.
type ChunkStore interface {
	// InsertChunks persists all chunks of one document or none of them.
	InsertChunks(ctx context.Context, documentId string, chunks []commonModels.Chunk) error
	// DeleteByDocument removes every chunk of the document and reports how many were removed.
	DeleteByDocument(ctx context.Context, documentId string) (int, error)
	FindByDocument(ctx context.Context, documentId string) ([]commonModels.Chunk, error)
	// FindByJurisdiction lists chunks of a jurisdiction, optionally narrowed by a text search.
	FindByJurisdiction(ctx context.Context, jurisdictionId string, text string, limit int) ([]commonModels.Chunk, error)
	CountByJurisdiction(ctx context.Context, jurisdictionId string) (int, error)

	SearchDense(ctx context.Context, jurisdictionId string, vector []float32, limit int) ([]commonModels.ScoredChunk, error)
	SearchLexical(ctx context.Context, jurisdictionId string, query LexicalQuery, limit int) ([]commonModels.ScoredChunk, error)

	Close() error
}

// LexicalQuery: with Prefix set every term matches tokens starting with it.
type LexicalQuery struct {
	Terms  []string
	Prefix bool
}

// AnswerCache short-circuits repeated questions. Entries are scoped by jurisdiction and language.
type AnswerCache interface {
	Lookup(ctx context.Context, jurisdictionId, language string, vector []float32) (commonModels.Answer, bool)
	Store(ctx context.Context, jurisdictionId, language string, vector []float32, answer commonModels.Answer) error
	Invalidate(ctx context.Context, jurisdictionId string) error
}

type NoopCache struct{}

func (NoopCache) Lookup(context.Context, string, string, []float32) (commonModels.Answer, bool) {
	return commonModels.Answer{}, false
}

func (NoopCache) Store(context.Context, string, string, []float32, commonModels.Answer) error {
	return nil
}

func (NoopCache) Invalidate(context.Context, string) error {
	return nil
}

// CosineSimilarity is dot(a,b)/(|a||b|). Zero vectors and mismatched lengths score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// UniformDimension returns the shared embedding length of chunks, or -1 when they differ or any is empty.
func UniformDimension(chunks []commonModels.Chunk) int {
	if len(chunks) == 0 {
		return 0
	}
	dim := len(chunks[0].Embedding)
	for _, c := range chunks {
		if len(c.Embedding) != dim || dim == 0 {
			return -1
		}
	}
	return dim
}
