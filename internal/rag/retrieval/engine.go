package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/SaiNageswarS/go-collection-boot/async"
	"github.com/SaiNageswarS/go-collection-boot/linq"
	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/internal/rag/embedding"
	"github.com/akolanti/CivicRAG/internal/rag/language"
	"github.com/akolanti/CivicRAG/internal/rag/lexical"
	"github.com/akolanti/CivicRAG/internal/rag/llm"
	"github.com/akolanti/CivicRAG/internal/rag/vectorDB"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

// PreparedQuery is the normalized form of a user question. Vectors line up with Variants and hold
// nil where embedding failed.
type PreparedQuery struct {
	Original   string
	Language   string
	Translated string
	Variants   []string
	Vectors    [][]float32
	Keywords   []string
	Prefixes   []string
}

// PrimaryVector is the embedding of the translated query itself, or nil.
func (q PreparedQuery) PrimaryVector() []float32 {
	if len(q.Vectors) == 0 {
		return nil
	}
	return q.Vectors[0]
}

type Result struct {
	Candidates []Candidate
	Tier       string
	// DenseDegraded is set when dense search could not contribute and lexical signals carried the result.
	DenseDegraded bool
}

// Engine finds the evidence for a question inside one jurisdiction.
type Engine interface {
	// Count is the number of chunks the jurisdiction holds.
	Count(ctx context.Context, jurisdictionId string) (int, error)
	Prepare(ctx context.Context, query string) PreparedQuery
	// Retrieve returns ErrNoEvidence when no tier selects anything.
	Retrieve(ctx context.Context, jurisdictionId string, q PreparedQuery) (Result, error)
	// Search is Count, Prepare and Retrieve in one call. An empty jurisdiction returns before any
	// provider is called.
	Search(ctx context.Context, jurisdictionId, query string) (Result, PreparedQuery, error)
}

type engine struct {
	chunks   vectorDB.ChunkStore
	embedder embedding.Embedder
	language language.Service
	llm      llm.Provider
	tuning   config.TuningSource
	logger   *logger_i.Logger
}

// NewEngine wires the engine. provider may be nil, which disables query expansion.
func NewEngine(chunks vectorDB.ChunkStore, embedder embedding.Embedder, lang language.Service, provider llm.Provider, tuning config.TuningSource) Engine {
	return &engine{
		chunks:   chunks,
		embedder: embedder,
		language: lang,
		llm:      provider,
		tuning:   tuning,
		logger:   logger_i.NewLogger("retrieval"),
	}
}

func (e *engine) Count(ctx context.Context, jurisdictionId string) (int, error) {
	return e.chunks.CountByJurisdiction(ctx, jurisdictionId)
}

func (e *engine) Search(ctx context.Context, jurisdictionId, query string) (Result, PreparedQuery, error) {
	n, err := e.Count(ctx, jurisdictionId)
	if err != nil {
		return Result{Tier: TierNone}, PreparedQuery{}, err
	}
	if n == 0 {
		metrics.CaptureRetrievalTier(TierNone)
		return Result{Tier: TierNone}, PreparedQuery{Original: query}, ragErrors.ErrNoEvidence
	}
	q := e.Prepare(ctx, query)
	res, err := e.Retrieve(ctx, jurisdictionId, q)
	return res, q, err
}

func (e *engine) Prepare(ctx context.Context, query string) PreparedQuery {
	t := e.tuning.Current().Retrieval
	pivot := e.language.Pivot()

	q := PreparedQuery{Original: query}
	q.Language = e.language.Detect(ctx, query)
	q.Translated = strings.TrimSpace(e.language.Translate(ctx, query, q.Language, pivot))
	if q.Translated == "" {
		q.Translated = strings.TrimSpace(query)
	}
	q.Keywords = lexical.Keywords(q.Translated, lexical.StopwordSet(t.Stopwords), t.MinKeywordLength)
	q.Prefixes = linq.Distinct(linq.Map(q.Keywords, func(k string) string {
		return lexical.Prefix(k, t.KeywordPrefixLength)
	}), func(p string) string { return p })

	q.Variants = append([]string{q.Translated}, e.expand(ctx, q.Translated, t.ExpansionCount)...)
	q.Vectors = e.embedVariants(ctx, q.Variants)
	return q
}

const expansionPrompt = "You help a search engine over government documents. Rewrite the user's question in %d " +
	"different ways that keep its meaning, using the formal terms an act, rule or notification would use. " +
	"Reply with one rewrite per line and nothing else."

// expand asks the model for paraphrases. Failure only costs recall, so it degrades to none.
func (e *engine) expand(ctx context.Context, query string, n int) []string {
	if n <= 0 || e.llm == nil {
		return nil
	}
	start := time.Now()
	answer, err := e.llm.Complete(ctx, fmt.Sprintf(expansionPrompt, n), llm.UserMessage(query), llm.WithTemperature(0.3), llm.WithMaxTokens(256))
	metrics.CaptureDependencyLatency("query_expansion", time.Since(start))
	if err != nil {
		e.logger.WithTrace(ctx).Warn("query expansion skipped", "error", err)
		metrics.CaptureDegradation("query_expansion")
		return nil
	}

	var variants []string
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(strings.TrimLeftFunc(line, func(r rune) bool {
			return unicode.IsDigit(r) || r == '.' || r == ')' || r == '-' || r == '*' || unicode.IsSpace(r)
		}))
		line = strings.Trim(line, `"`)
		if line == "" || strings.EqualFold(line, query) {
			continue
		}
		variants = append(variants, line)
	}
	variants = linq.Distinct(variants, strings.ToLower)
	if len(variants) > n {
		variants = variants[:n]
	}
	return variants
}

// embedVariants embeds every variant concurrently. A failed variant keeps a nil slot.
func (e *engine) embedVariants(ctx context.Context, variants []string) [][]float32 {
	tasks := make([]<-chan async.Result[[]float32], len(variants))
	for i, v := range variants {
		tasks[i] = async.Go(func() ([]float32, error) {
			return e.embedder.GetEmbedding(ctx, v)
		})
	}

	start := time.Now()
	vectors := make([][]float32, len(variants))
	for i, task := range tasks {
		vector, err := async.Await(task)
		if err != nil {
			e.logger.WithTrace(ctx).Warn("query embedding failed", "variant", i, "error", err)
			continue
		}
		vectors[i] = vector
	}
	metrics.CaptureDependencyLatency("query_embedding", time.Since(start))
	return vectors
}

type pool struct {
	jurisdictionId string
	byId           map[string]*Candidate
	order          []string
	dropped        int
}

func (p *pool) get(chunk commonModels.Chunk) *Candidate {
	if c, ok := p.byId[chunk.Id]; ok {
		return c
	}
	c := &Candidate{Chunk: chunk}
	p.byId[chunk.Id] = c
	p.order = append(p.order, chunk.Id)
	return c
}

// admit rejects chunks from other jurisdictions whatever the store returned.
func (p *pool) admit(hit commonModels.ScoredChunk) bool {
	if hit.Chunk.JurisdictionId != p.jurisdictionId {
		p.dropped++
		return false
	}
	return true
}

func (e *engine) Retrieve(ctx context.Context, jurisdictionId string, q PreparedQuery) (Result, error) {
	t := e.tuning.Current().Retrieval
	log := e.logger.WithTrace(ctx).With("jurisdictionId", jurisdictionId)

	var denseTasks []<-chan async.Result[[]commonModels.ScoredChunk]
	for _, vector := range q.Vectors {
		if vector == nil {
			continue
		}
		denseTasks = append(denseTasks, async.Go(func() ([]commonModels.ScoredChunk, error) {
			return e.chunks.SearchDense(ctx, jurisdictionId, vector, t.DenseCandidates)
		}))
	}

	var exactTask, prefixTask <-chan async.Result[[]commonModels.ScoredChunk]
	if len(q.Keywords) > 0 {
		exactTask = async.Go(func() ([]commonModels.ScoredChunk, error) {
			return e.chunks.SearchLexical(ctx, jurisdictionId, vectorDB.LexicalQuery{Terms: q.Keywords}, t.LexicalCandidates)
		})
		prefixTask = async.Go(func() ([]commonModels.ScoredChunk, error) {
			return e.chunks.SearchLexical(ctx, jurisdictionId, vectorDB.LexicalQuery{Terms: q.Prefixes, Prefix: true}, t.LexicalCandidates)
		})
	}

	p := &pool{jurisdictionId: jurisdictionId, byId: make(map[string]*Candidate)}
	var failures []error
	denseOk := false
	for _, task := range denseTasks {
		hits, err := async.Await(task)
		if err != nil {
			failures = append(failures, err)
			log.Warn("dense search failed", "error", err)
			continue
		}
		denseOk = true
		for rank, hit := range hits {
			if !p.admit(hit) {
				continue
			}
			c := p.get(hit.Chunk)
			if !c.HasDense() || hit.Score > c.DenseScore {
				c.DenseScore = hit.Score
			}
			if !c.HasDense() || rank+1 < c.DenseRank {
				c.DenseRank = rank + 1
			}
		}
	}

	lexicalOk := false
	if exactTask != nil {
		if hits, err := async.Await(exactTask); err != nil {
			failures = append(failures, err)
			log.Warn("lexical search failed", "error", err)
		} else {
			lexicalOk = true
			for rank, hit := range hits {
				if !p.admit(hit) {
					continue
				}
				c := p.get(hit.Chunk)
				c.LexicalMatched = true
				c.LexicalScore = hit.Score
				c.LexicalRank = rank + 1
			}
		}
		if hits, err := async.Await(prefixTask); err != nil {
			log.Warn("prefix search failed", "error", err)
		} else {
			for _, hit := range hits {
				if p.admit(hit) {
					p.get(hit.Chunk)
				}
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{Tier: TierNone}, err
	}
	// with no keywords lexical search never runs, so dense is the only signal
	if !denseOk && !lexicalOk {
		if len(failures) == 0 {
			failures = append(failures, errors.New("no query embedding"))
		}
		return Result{Tier: TierNone}, fmt.Errorf("retrieval unavailable: %w", errors.Join(failures...))
	}
	denseDegraded := !denseOk
	if denseDegraded {
		metrics.CaptureDegradation("dense_retrieval")
		log.Warn("dense retrieval unavailable, lexical signals only")
	}
	if p.dropped > 0 {
		log.Error("store returned chunks outside the jurisdiction", "dropped", p.dropped)
	}

	candidates := make([]Candidate, 0, len(p.order))
	for _, id := range p.order {
		c := p.byId[id]
		ix := lexical.NewIndex(c.Chunk.Text)
		c.KeywordMatched = ix.ContainsAny(q.Keywords)
		c.KeywordPrefixMatched = ix.ContainsAnyPrefix(q.Keywords, t.KeywordPrefixLength)
		c.combine(t)
		candidates = append(candidates, *c)
	}

	selected, tier := SelectTier(candidates, t)
	metrics.CaptureRetrievalTier(tier)
	if tier != TierKeywordExact && tier != TierNone {
		log.Warn("retrieval fell back", "tier", tier, "pool", len(candidates))
	}
	result := Result{Candidates: selected, Tier: tier, DenseDegraded: denseDegraded}
	if len(selected) == 0 {
		return result, ragErrors.ErrNoEvidence
	}
	log.Debug("retrieved evidence", "tier", tier, "selected", len(selected), "pool", len(candidates))
	return result, nil
}
