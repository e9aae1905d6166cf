package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
	"github.com/akolanti/CivicRAG/internal/rag/llm"
	mocks "github.com/akolanti/CivicRAG/internal/rag/rag_test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const compensationText = "The Land Acquisition Act, 2013 defines compensation in Section 26."

func chunk(id, jurisdictionId, text string) commonModels.Chunk {
	return commonModels.Chunk{
		Id:             id,
		DocumentId:     "doc-" + id,
		JurisdictionId: jurisdictionId,
		Text:           text,
		Embedding:      mocks.HashEmbedding(text),
	}
}

type harness struct {
	store    *mocks.MockChunkStore
	embedder *mocks.MockEmbedder
	language *mocks.FakeLanguage
	llm      *mocks.MockLLM
	tuning   config.Tuning
}

func newHarness(chunks ...commonModels.Chunk) *harness {
	h := &harness{
		store:    mocks.NewMockChunkStore(),
		embedder: &mocks.MockEmbedder{},
		language: &mocks.FakeLanguage{},
		llm:      &mocks.MockLLM{},
		tuning:   config.DefaultTuning(),
	}
	h.tuning.Retrieval.ExpansionCount = 0
	for _, c := range chunks {
		_ = h.store.InsertChunks(context.Background(), c.DocumentId, []commonModels.Chunk{c})
	}
	return h
}

func (h *harness) engine() Engine {
	return NewEngine(h.store, h.embedder, h.language, h.llm, config.StaticTuning(h.tuning))
}

func TestSearch_EmptyJurisdictionSkipsProviders(t *testing.T) {
	h := newHarness(chunk("c1", "J2", compensationText))

	res, _, err := h.engine().Search(context.Background(), "J1", "What does the act say about compensation?")

	require.ErrorIs(t, err, ragErrors.ErrNoEvidence)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, TierNone, res.Tier)
	assert.Equal(t, int32(0), h.language.DetectCalls.Load())
	assert.Equal(t, int32(0), h.embedder.Calls.Load())
	assert.Equal(t, int32(0), h.llm.Calls.Load())
	assert.Equal(t, int32(0), h.store.SearchCalls.Load())
}

func TestSearch_KeywordExactTier(t *testing.T) {
	h := newHarness(
		chunk("c1", "J1", compensationText),
		chunk("c2", "J1", "Appeals lie to the Authority under Section 64."),
	)

	res, q, err := h.engine().Search(context.Background(), "J1", "What does the act say about compensation?")
	require.NoError(t, err)

	assert.Equal(t, []string{"compensation"}, q.Keywords)
	assert.Equal(t, TierKeywordExact, res.Tier)
	require.Len(t, res.Candidates, 1)
	top := res.Candidates[0]
	assert.Equal(t, "c1", top.Chunk.Id)
	assert.True(t, top.LexicalMatched)
	assert.True(t, top.KeywordMatched)
	assert.True(t, top.HasDense())
	assert.InDelta(t, top.DenseScore+0.15+0.10, top.CombinedScore, 1e-9)
}

func TestSearch_JurisdictionIsolation(t *testing.T) {
	query := "What does the act say about compensation?"
	h := newHarness(
		chunk("a1", "J1", compensationText),
		chunk("b1", "J2", query),
		chunk("b2", "J2", "compensation compensation compensation"),
	)

	res, _, err := h.engine().Search(context.Background(), "J1", query)
	require.NoError(t, err)
	for _, c := range res.Candidates {
		assert.Equal(t, "J1", c.Chunk.JurisdictionId)
	}

	// a store that leaks another tenant's chunk must not leak it further
	leaky := chunk("b1", "J2", query)
	h.store.OnSearchDense = func(ctx context.Context, jurisdictionId string, vector []float32, limit int) ([]commonModels.ScoredChunk, error) {
		return []commonModels.ScoredChunk{{Chunk: leaky, Score: 0.99}}, nil
	}
	res, _, err = h.engine().Search(context.Background(), "J1", query)
	require.NoError(t, err)
	for _, c := range res.Candidates {
		assert.Equal(t, "J1", c.Chunk.JurisdictionId)
	}
}

func TestSearch_DenseFailureFallsBackToLexical(t *testing.T) {
	h := newHarness(chunk("c1", "J1", compensationText))
	h.embedder.OnGetEmbedding = func(context.Context, string) ([]float32, error) {
		return nil, errors.New("embedding quota")
	}

	res, q, err := h.engine().Search(context.Background(), "J1", "compensation under the act")
	require.NoError(t, err)

	assert.Nil(t, q.PrimaryVector())
	assert.True(t, res.DenseDegraded)
	require.Len(t, res.Candidates, 1)
	assert.False(t, res.Candidates[0].HasDense())
	assert.Equal(t, int32(0), h.store.DenseCalls.Load())
}

func TestSearch_NothingAnywhere(t *testing.T) {
	h := newHarness(chunk("c1", "J1", "Ward offices open at nine."))
	h.tuning.Retrieval.MinSimilarity = 0.99
	h.tuning.Retrieval.RelaxedMinSimilarity = 0.99

	_, _, err := h.engine().Search(context.Background(), "J1", "groundwater extraction permits")
	assert.ErrorIs(t, err, ragErrors.ErrNoEvidence)
}

func TestSearch_StoreDownIsNotNoEvidence(t *testing.T) {
	h := newHarness(chunk("c1", "J1", compensationText))
	h.store.OnSearchDense = func(context.Context, string, []float32, int) ([]commonModels.ScoredChunk, error) {
		return nil, errors.New("connection refused")
	}

	// no keywords, so dense search is the only signal
	_, _, err := h.engine().Search(context.Background(), "J1", "what is it about")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ragErrors.ErrNoEvidence)
}

func TestPrepare_Expansion(t *testing.T) {
	h := newHarness()
	h.tuning.Retrieval.ExpansionCount = 2
	h.llm.OnComplete = func(_ context.Context, system string, messages []llm.Message) (string, error) {
		assert.Contains(t, system, "in 2 different ways")
		return "1. How is compensation determined under the act?\n2) compensation rules\n- How is compensation determined under the act?\n\nextra line", nil
	}

	q := h.engine().Prepare(context.Background(), "What does the act say about compensation?")

	assert.Equal(t, []string{
		"What does the act say about compensation?",
		"How is compensation determined under the act?",
		"compensation rules",
	}, q.Variants)
	require.Len(t, q.Vectors, 3)
	for _, v := range q.Vectors {
		assert.NotNil(t, v)
	}
}

func TestPrepare_ExpansionFailureDegrades(t *testing.T) {
	h := newHarness()
	h.tuning.Retrieval.ExpansionCount = 2
	h.llm.OnComplete = func(context.Context, string, []llm.Message) (string, error) {
		return "", errors.New("rate limited")
	}

	q := h.engine().Prepare(context.Background(), "compensation")
	assert.Equal(t, []string{"compensation"}, q.Variants)
}

func TestPrepare_DeduplicatesPrefixesAndVariants(t *testing.T) {
	h := newHarness()
	h.tuning.Retrieval.ExpansionCount = 3
	h.llm.OnComplete = func(context.Context, string, []llm.Message) (string, error) {
		return "Compensation payable\ncompensation PAYABLE\nAward of compensation", nil
	}

	q := h.engine().Prepare(context.Background(), "compensation compensated compensating")

	assert.Equal(t, []string{"compe"}, q.Prefixes)
	assert.Equal(t, []string{
		"compensation compensated compensating",
		"Compensation payable",
		"Award of compensation",
	}, q.Variants)
}

func TestPrepare_TranslatesToPivot(t *testing.T) {
	h := newHarness()
	hindi := "अधिनियम मुआवजे के बारे में क्या कहता है?"
	h.language.Dictionary = map[string]string{hindi: "What does the act say about compensation?"}

	q := h.engine().Prepare(context.Background(), hindi)
	assert.Equal(t, "hi", q.Language)
	assert.Equal(t, "What does the act say about compensation?", q.Translated)
	assert.Equal(t, []string{"compensation"}, q.Keywords)
	assert.Equal(t, []string{"compe"}, q.Prefixes)
}

func candidate(id string, dense float64, denseRank int, lexical, keyword, prefix bool) Candidate {
	c := Candidate{
		Chunk:                commonModels.Chunk{Id: id},
		DenseScore:           dense,
		DenseRank:            denseRank,
		LexicalMatched:       lexical,
		KeywordMatched:       keyword,
		KeywordPrefixMatched: prefix || keyword,
	}
	if lexical {
		c.LexicalRank = 1
	}
	c.combine(config.DefaultTuning().Retrieval)
	return c
}

func TestTiers(t *testing.T) {
	tuning := config.DefaultTuning().Retrieval

	tests := []struct {
		name     string
		pool     []Candidate
		wantTier string
		wantIds  []string
	}{
		{
			name: "exact keyword beats higher similarity without keyword",
			pool: []Candidate{
				candidate("a", 0.90, 1, false, false, false),
				candidate("b", 0.60, 2, false, true, true),
			},
			wantTier: TierKeywordExact,
			wantIds:  []string{"b"},
		},
		{
			name: "prefix tier when no exact keyword",
			pool: []Candidate{
				candidate("a", 0.70, 1, false, false, true),
				candidate("b", 0.80, 2, false, false, false),
			},
			wantTier: TierKeywordPrefix,
			wantIds:  []string{"a"},
		},
		{
			name: "unfiltered when no keyword anywhere",
			pool: []Candidate{
				candidate("a", 0.70, 2, false, false, false),
				candidate("b", 0.80, 1, false, false, false),
				candidate("c", 0.20, 3, false, false, false),
			},
			wantTier: TierUnfiltered,
			wantIds:  []string{"b", "a"},
		},
		{
			name: "relaxed lexical when everything is below threshold",
			pool: []Candidate{
				candidate("a", 0.30, 1, false, false, true),
				candidate("b", 0.10, 2, false, false, true),
				candidate("c", 0.40, 3, false, false, false),
			},
			wantTier: TierLexicalRelax,
			wantIds:  []string{"a"},
		},
		{
			name: "prefix match without any dense hit",
			pool: []Candidate{
				candidate("a", 0, 0, false, false, true),
			},
			wantTier: TierLexicalRelax,
			wantIds:  []string{"a"},
		},
		{
			name:     "nothing",
			pool:     []Candidate{candidate("a", 0.10, 1, false, false, false)},
			wantTier: TierNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, tier := SelectTier(tt.pool, tuning)
			assert.Equal(t, tt.wantTier, tier)
			var ids []string
			for _, c := range selected {
				ids = append(ids, c.Chunk.Id)
			}
			assert.Equal(t, tt.wantIds, ids)
		})
	}
}

func TestSelectTier_TruncatesToTopK(t *testing.T) {
	tuning := config.DefaultTuning().Retrieval
	tuning.TopK = 3
	var pool []Candidate
	for i := 0; i < 10; i++ {
		pool = append(pool, candidate(fmt.Sprintf("c%d", i), 0.6+float64(i)/100, 10-i, false, true, true))
	}

	selected, _ := SelectTier(pool, tuning)
	require.Len(t, selected, 3)
	assert.Equal(t, "c9", selected[0].Chunk.Id)
}

func TestSortCandidates_Deterministic(t *testing.T) {
	base := []Candidate{
		candidate("a", 0.70, 3, true, true, true),
		candidate("b", 0.70, 1, true, true, true),
		candidate("c", 0.70, 0, true, true, true),
		candidate("d", 0.99, 2, false, false, false),
		candidate("e", 0.70, 1, true, true, true),
	}
	// "c" has no dense hit, so it scores only its bonuses
	base[2].DenseScore = 0
	base[2].combine(config.DefaultTuning().Retrieval)

	want := append([]Candidate(nil), base...)
	SortCandidates(want)
	var wantIds []string
	for _, c := range want {
		wantIds = append(wantIds, c.Chunk.Id)
	}
	assert.Equal(t, []string{"d", "b", "e", "a", "c"}, wantIds)

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		shuffled := append([]Candidate(nil), base...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		SortCandidates(shuffled)
		for k := range shuffled {
			assert.Equal(t, wantIds[k], shuffled[k].Chunk.Id)
		}
	}
}
