package retrieval

import (
	"sort"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
)

// Candidate is one chunk with every signal the search stages produced for it. Rank fields are
// 1-based and zero when the stage did not return the chunk.
type Candidate struct {
	Chunk commonModels.Chunk

	DenseScore float64
	DenseRank  int

	LexicalScore   float64
	LexicalRank    int
	LexicalMatched bool

	KeywordMatched       bool
	KeywordPrefixMatched bool

	CombinedScore float64
}

func (c Candidate) HasDense() bool {
	return c.DenseRank > 0
}

// Score is what citations show: dense similarity when there is one, the combined score otherwise.
func (c Candidate) Score() float64 {
	if c.HasDense() {
		return c.DenseScore
	}
	return c.CombinedScore
}

// combine is base dense similarity plus fixed bonuses for a lexical hit and a keyword hit.
func (c *Candidate) combine(t config.RetrievalTuning) {
	score := 0.0
	if c.HasDense() {
		score = c.DenseScore
	}
	if c.LexicalMatched {
		score += t.LexicalBonus
	}
	if c.KeywordMatched {
		score += t.KeywordBonus
	}
	c.CombinedScore = score
}

// SortCandidates orders by combined score, then dense rank, then lexical rank, then chunk id, so
// identical inputs always produce the identical order.
func SortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if r := compareRank(a.DenseRank, b.DenseRank); r != 0 {
			return r < 0
		}
		if r := compareRank(a.LexicalRank, b.LexicalRank); r != 0 {
			return r < 0
		}
		return a.Chunk.Id < b.Chunk.Id
	})
}

// compareRank sorts missing ranks after every present one.
func compareRank(a, b int) int {
	switch {
	case a == b:
		return 0
	case a == 0:
		return 1
	case b == 0:
		return -1
	case a < b:
		return -1
	default:
		return 1
	}
}

const (
	TierKeywordExact  = "keyword-exact"
	TierKeywordPrefix = "keyword-prefix"
	TierUnfiltered    = "unfiltered"
	TierLexicalRelax  = "lexical-relaxed"
	TierNone          = "none"
)

// Tier is one step of the fallback chain. Select is pure: it sees the merged pool and never
// mutates it.
type Tier struct {
	Name   string
	Select func(pool []Candidate, t config.RetrievalTuning) []Candidate
}

// Tiers are tried in order and the first non-empty selection wins.
var Tiers = []Tier{
	{Name: TierKeywordExact, Select: keywordExact},
	{Name: TierKeywordPrefix, Select: keywordPrefix},
	{Name: TierUnfiltered, Select: unfiltered},
	{Name: TierLexicalRelax, Select: lexicalRelaxed},
}

// aboveThreshold: a dense hit at or over the minimum similarity, or any lexical hit.
func aboveThreshold(c Candidate, t config.RetrievalTuning) bool {
	return c.LexicalMatched || (c.HasDense() && c.DenseScore >= t.MinSimilarity)
}

func filter(pool []Candidate, keep func(Candidate) bool) []Candidate {
	var out []Candidate
	for _, c := range pool {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func keywordExact(pool []Candidate, t config.RetrievalTuning) []Candidate {
	return filter(pool, func(c Candidate) bool { return aboveThreshold(c, t) && c.KeywordMatched })
}

func keywordPrefix(pool []Candidate, t config.RetrievalTuning) []Candidate {
	return filter(pool, func(c Candidate) bool { return aboveThreshold(c, t) && c.KeywordPrefixMatched })
}

func unfiltered(pool []Candidate, t config.RetrievalTuning) []Candidate {
	return filter(pool, func(c Candidate) bool { return aboveThreshold(c, t) })
}

// lexicalRelaxed keeps term matches whose dense similarity, if any, clears the relaxed threshold.
func lexicalRelaxed(pool []Candidate, t config.RetrievalTuning) []Candidate {
	return filter(pool, func(c Candidate) bool {
		if !c.LexicalMatched && !c.KeywordPrefixMatched {
			return false
		}
		return !c.HasDense() || c.DenseScore >= t.RelaxedMinSimilarity
	})
}

// SelectTier runs the chain, then sorts and truncates the winning set to TopK.
func SelectTier(pool []Candidate, t config.RetrievalTuning) ([]Candidate, string) {
	for _, tier := range Tiers {
		selected := tier.Select(pool, t)
		if len(selected) == 0 {
			continue
		}
		SortCandidates(selected)
		if t.TopK > 0 && len(selected) > t.TopK {
			selected = selected[:t.TopK]
		}
		return selected, tier.Name
	}
	return nil, TierNone
}
