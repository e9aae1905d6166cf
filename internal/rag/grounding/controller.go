package grounding

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/akolanti/CivicRAG/internal/adapter/utils"
	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/internal/rag/language"
	"github.com/akolanti/CivicRAG/internal/rag/llm"
	"github.com/akolanti/CivicRAG/internal/rag/retrieval"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

// NotFoundResponse is the refusal returned whenever the documents do not support an answer.
const NotFoundResponse = "I could not find an answer to your question in the available documents."

const notFoundSentinel = "NOT_FOUND"

// Refusal reasons carried on Answer.Reason.
const (
	ReasonNoEvidence      = "no_evidence"
	ReasonKeywordsAbsent  = "keywords_absent"
	ReasonModelNotFound   = "model_not_found"
	ReasonUncited         = "uncited"
	ReasonGenerationError = "generation_unavailable"
	ReasonGreeting        = "greeting"
)

// Controller turns evidence into an answer that only says what the evidence says.
type Controller interface {
	// Greeting answers chit-chat without touching any provider. ok is false for real questions.
	Greeting(query string) (answer commonModels.Answer, ok bool)
	// NotFound is the canned refusal in the query's language.
	NotFound(ctx context.Context, q retrieval.PreparedQuery, reason string) commonModels.Answer
	// Answer generates from the evidence, refusing when it cannot be grounded. Generation failures
	// become refusals, so it always returns a usable answer.
	Answer(ctx context.Context, q retrieval.PreparedQuery, evidence []retrieval.Candidate, tier string) commonModels.Answer
}

type controller struct {
	provider llm.Provider
	language language.Service
	tuning   config.TuningSource
	logger   *logger_i.Logger
}

func NewController(provider llm.Provider, lang language.Service, tuning config.TuningSource) Controller {
	return &controller{
		provider: provider,
		language: lang,
		tuning:   tuning,
		logger:   logger_i.NewLogger("grounding"),
	}
}

func (c *controller) Greeting(query string) (commonModels.Answer, bool) {
	lang, ok := matchGreeting(query)
	if !ok {
		return commonModels.Answer{}, false
	}
	reply, ok := greetingReplies[lang]
	if !ok {
		reply = greetingReplies["en"]
	}
	return commonModels.Answer{
		AnswerId:         utils.GetNewUUID(),
		Content:          reply,
		Citations:        []commonModels.Citation{},
		DetectedLanguage: lang,
		TranslatedQuery:  query,
		Reason:           ReasonGreeting,
	}, true
}

func (c *controller) NotFound(ctx context.Context, q retrieval.PreparedQuery, reason string) commonModels.Answer {
	lang := q.Language
	if lang == "" {
		lang = c.language.Pivot()
	}
	content := NotFoundResponse
	if lang != c.language.Pivot() {
		content = c.language.Translate(ctx, NotFoundResponse, c.language.Pivot(), lang)
	}
	return commonModels.Answer{
		AnswerId:         utils.GetNewUUID(),
		Content:          content,
		Citations:        []commonModels.Citation{},
		DetectedLanguage: lang,
		TranslatedQuery:  q.Translated,
		RetrievalTier:    retrieval.TierNone,
		Reason:           reason,
	}
}

const answerPrompt = `You answer questions about government documents for citizens.
Rules:
1. Use only the numbered context passages below. Do not use any other knowledge.
2. Quote or closely paraphrase the passage text and cite every statement with its passage number, like [1] or [2].
3. If the context does not contain the answer, reply with exactly ` + notFoundSentinel + ` and nothing else.
4. Answer in ` + "%s" + `, in plain language, without greetings.

Context:
%s`

func (c *controller) Answer(ctx context.Context, q retrieval.PreparedQuery, evidence []retrieval.Candidate, tier string) commonModels.Answer {
	t := c.tuning.Current().Retrieval
	log := c.logger.WithTrace(ctx)

	if len(evidence) == 0 {
		return c.NotFound(ctx, q, ReasonNoEvidence)
	}
	if !keywordsPresent(q, evidence) {
		log.Info("refusing, no query keyword in evidence", "keywords", q.Keywords, "tier", tier)
		return c.NotFound(ctx, q, ReasonKeywordsAbsent)
	}
	if t.MaxContextChunks > 0 && len(evidence) > t.MaxContextChunks {
		evidence = evidence[:t.MaxContextChunks]
	}

	start := time.Now()
	output, err := c.provider.Complete(ctx,
		fmt.Sprintf(answerPrompt, language.Name(c.language.Pivot()), buildContext(evidence, t.MaxContextChunkLength)),
		llm.UserMessage(q.Translated), llm.WithTemperature(0))
	metrics.CaptureDependencyLatency("generation", time.Since(start))
	if err != nil {
		log.Error("generation failed, refusing", "error", err)
		metrics.CaptureDegradation("generation")
		return c.NotFound(ctx, q, ReasonGenerationError)
	}

	output = strings.TrimSpace(output)
	if isRefusal(output) {
		return c.NotFound(ctx, q, ReasonModelNotFound)
	}

	content, cited := selectCitations(output, len(evidence))
	if len(cited) == 0 {
		log.Warn("refusing, generated answer cites no passage", "tier", tier)
		return c.NotFound(ctx, q, ReasonUncited)
	}
	citations := make([]commonModels.Citation, 0, len(cited))
	for _, n := range cited {
		citations = append(citations, CitationOf(evidence[n-1]))
	}

	if q.Language != "" && q.Language != c.language.Pivot() {
		content = c.language.Translate(ctx, content, c.language.Pivot(), q.Language)
	}

	return commonModels.Answer{
		AnswerId:         utils.GetNewUUID(),
		Content:          content,
		Citations:        citations,
		DetectedLanguage: q.Language,
		TranslatedQuery:  q.Translated,
		Grounded:         true,
		RetrievalTier:    tier,
	}
}

var (
	emphasis       = strings.NewReplacer("*", "", "`", "", "~", "", "#", "")
	spacedSentinel = regexp.MustCompile(`\bNOT\s+FOUND\b`)
)

// isRefusal spots the sentinel anywhere in the output, with or without markdown around it.
func isRefusal(output string) bool {
	if output == "" || strings.Contains(output, NotFoundResponse) {
		return true
	}
	plain := emphasis.Replace(output)
	return strings.Contains(plain, notFoundSentinel) || spacedSentinel.MatchString(plain)
}

// keywordsPresent holds when the query has no keywords or some evidence carries one of them,
// exactly or by prefix.
func keywordsPresent(q retrieval.PreparedQuery, evidence []retrieval.Candidate) bool {
	if len(q.Keywords) == 0 {
		return true
	}
	for _, e := range evidence {
		if e.KeywordMatched || e.KeywordPrefixMatched {
			return true
		}
	}
	return false
}

func buildContext(evidence []retrieval.Candidate, maxLength int) string {
	var sb strings.Builder
	for i, e := range evidence {
		page := "page unknown"
		if e.Chunk.PageNumber != nil {
			page = "page " + strconv.Itoa(*e.Chunk.PageNumber)
		}
		text := []rune(e.Chunk.Text)
		if maxLength > 0 && len(text) > maxLength {
			text = text[:maxLength]
		}
		fmt.Fprintf(&sb, "[%d] (%s, %s, paragraph %d)\n%s\n\n", i+1, e.Chunk.FileName, page, e.Chunk.ParagraphIndex, string(text))
	}
	return strings.TrimRight(sb.String(), "\n")
}

var citationMarker = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// selectCitations finds the passages the model cited and renumbers its markers to positions in the
// returned citation list. Markers naming passages that were never sent are removed. cited is empty
// when no valid marker was found.
func selectCitations(output string, n int) (string, []int) {
	position := make(map[int]int)
	var cited []int
	for _, m := range citationMarker.FindAllStringSubmatch(output, -1) {
		for _, part := range strings.Split(m[1], ",") {
			k, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || k < 1 || k > n {
				continue
			}
			if _, ok := position[k]; !ok {
				cited = append(cited, k)
				position[k] = len(cited)
			}
		}
	}

	if len(cited) == 0 {
		return citationMarker.ReplaceAllString(output, ""), nil
	}

	content := citationMarker.ReplaceAllStringFunc(output, func(marker string) string {
		var renumbered []string
		for _, part := range strings.Split(strings.Trim(marker, "[]"), ",") {
			k, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				continue
			}
			if p, ok := position[k]; ok {
				renumbered = append(renumbered, strconv.Itoa(p))
			}
		}
		if len(renumbered) == 0 {
			return ""
		}
		return "[" + strings.Join(renumbered, ", ") + "]"
	})
	return content, cited
}

// CitationOf is how a piece of evidence is shown to the caller.
func CitationOf(c retrieval.Candidate) commonModels.Citation {
	return commonModels.Citation{
		ChunkId:        c.Chunk.Id,
		DocumentId:     c.Chunk.DocumentId,
		FileName:       c.Chunk.FileName,
		PageNumber:     c.Chunk.PageNumber,
		ParagraphIndex: c.Chunk.ParagraphIndex,
		SequenceIndex:  c.Chunk.SequenceIndex,
		Score:          c.Score(),
		SourceUri:      c.Chunk.SourceUri,
	}
}
