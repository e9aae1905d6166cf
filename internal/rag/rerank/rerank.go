package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/internal/rag/llm"
	"github.com/akolanti/CivicRAG/internal/rag/retrieval"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

// Reranker narrows retrieval candidates to the few passages most relevant to the query.
// It never fails: any problem with the model falls back to the candidates' own order.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []retrieval.Candidate) []retrieval.Candidate
}

type llmReranker struct {
	provider llm.Provider
	tuning   config.TuningSource
	logger   *logger_i.Logger
}

func NewReranker(provider llm.Provider, tuning config.TuningSource) Reranker {
	return &llmReranker{
		provider: provider,
		tuning:   tuning,
		logger:   logger_i.NewLogger("rerank"),
	}
}

const rerankPrompt = "You rank passages from government documents by how well they answer a question. " +
	"Passages are numbered. Reply with a JSON array of the numbers of the at most %d most relevant " +
	"passages, best first, for example [3,1]. Reply with the array only."

func (r *llmReranker) Rerank(ctx context.Context, query string, candidates []retrieval.Candidate) []retrieval.Candidate {
	t := r.tuning.Current().Rerank
	k := t.TopK
	if k <= 0 || k > len(candidates) {
		k = len(candidates)
	}
	fallback := candidates[:k]
	if !t.Enabled || r.provider == nil || len(candidates) <= 1 {
		return fallback
	}

	log := r.logger.WithTrace(ctx)
	start := time.Now()
	answer, err := r.provider.Complete(ctx, fmt.Sprintf(rerankPrompt, k),
		llm.UserMessage(buildPassages(query, candidates, t.MaxPassageChars)),
		llm.WithTemperature(0), llm.WithMaxTokens(64))
	metrics.CaptureDependencyLatency("rerank", time.Since(start))
	if err != nil {
		log.Warn("rerank skipped", "error", err)
		metrics.CaptureDegradation("rerank")
		return fallback
	}

	order, err := parseOrder(answer, len(candidates))
	if err != nil {
		log.Warn("rerank output rejected", "error", err, "output", truncate(answer, 200))
		metrics.CaptureDegradation("rerank")
		return fallback
	}
	if len(order) > k {
		order = order[:k]
	}
	out := make([]retrieval.Candidate, len(order))
	for i, n := range order {
		out[i] = candidates[n-1]
	}
	log.Debug("reranked", "in", len(candidates), "out", len(out))
	return out
}

func buildPassages(query string, candidates []retrieval.Candidate, maxChars int) string {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nPassages:\n")
	for i, c := range candidates {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, truncate(c.Chunk.Text, maxChars))
	}
	return sb.String()
}

// parseOrder reads the first JSON array of passage numbers in the model output. Every number must
// refer to a passage that was sent; repeats are dropped.
func parseOrder(output string, n int) ([]int, error) {
	open := strings.Index(output, "[")
	if open < 0 {
		return nil, fmt.Errorf("no array in output")
	}
	end := strings.Index(output[open:], "]")
	if end < 0 {
		return nil, fmt.Errorf("unterminated array")
	}

	var raw []int
	if err := json.Unmarshal([]byte(output[open:open+end+1]), &raw); err != nil {
		return nil, fmt.Errorf("malformed array: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty selection")
	}

	seen := make(map[int]bool, len(raw))
	order := make([]int, 0, len(raw))
	for _, i := range raw {
		if i < 1 || i > n {
			return nil, fmt.Errorf("passage %d out of range 1..%d", i, n)
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		order = append(order, i)
	}
	return order, nil
}

func truncate(s string, maxChars int) string {
	r := []rune(s)
	if maxChars <= 0 || len(r) <= maxChars {
		return s
	}
	return string(r[:maxChars]) + "…"
}
