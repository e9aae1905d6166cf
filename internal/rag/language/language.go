package language

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/internal/rag/llm"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

// Service detects and translates text. Neither operation returns an error: detection falls back
// to the pivot language and translation to the input text.
type Service interface {
	Detect(ctx context.Context, text string) string
	Translate(ctx context.Context, text, from, to string) string
	Pivot() string
}

type service struct {
	provider llm.Provider
	tuning   config.TuningSource
	logger   *logger_i.Logger
}

func NewService(provider llm.Provider, tuning config.TuningSource) Service {
	return &service{
		provider: provider,
		tuning:   tuning,
		logger:   logger_i.NewLogger("language"),
	}
}

var names = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"mr": "Marathi",
	"fr": "French",
	"es": "Spanish",
	"de": "German",
	"zh": "Chinese",
	"ar": "Arabic",
}

// Name returns the English name of a language code, or the code itself.
func Name(code string) string {
	if n, ok := names[code]; ok {
		return n
	}
	return code
}

const detectPrompt = "You identify the language of text. Reply with only the two letter ISO 639-1 code " +
	"of the language the user's text is written in, for example en, hi or fr. No other words."

func (s *service) Pivot() string {
	return s.tuning.Current().Language.Pivot
}

func (s *service) Detect(ctx context.Context, text string) string {
	t := s.tuning.Current().Language
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < t.MinDetectLength {
		return t.Pivot
	}

	sample := truncateRunes(trimmed, t.DetectSample)
	answer, err := s.provider.Complete(ctx, detectPrompt, llm.UserMessage(sample), llm.WithTemperature(0), llm.WithMaxTokens(10))
	if err != nil {
		s.logger.WithTrace(ctx).Warn("language detection degraded to pivot", "error", err)
		metrics.CaptureDegradation("language_detection")
		return t.Pivot
	}

	code := normalizeCode(answer)
	if !slices.Contains(t.Supported, code) {
		s.logger.WithTrace(ctx).Debug("detected language outside whitelist", "code", code)
		return t.Pivot
	}
	return code
}

func (s *service) Translate(ctx context.Context, text, from, to string) string {
	if from == to || strings.TrimSpace(text) == "" {
		return text
	}

	segments := splitSegments(text, s.tuning.Current().Language.TranslateSegment)
	system := fmt.Sprintf("You are a professional translator. Translate the user's text from %s to %s. "+
		"Preserve the meaning, legal terminology, names, numbers, section references and paragraph breaks. "+
		"Reply with the translation only.", Name(from), Name(to))

	out := make([]string, len(segments))
	translatedAny := false
	for i, segment := range segments {
		translated, err := s.provider.Complete(ctx, system, llm.UserMessage(segment), llm.WithTemperature(0), llm.WithMaxTokens(4096))
		translated = strings.TrimSpace(translated)
		if err != nil || translated == "" {
			s.logger.WithTrace(ctx).Warn("translation degraded to original text", "from", from, "to", to, "segment", i, "error", err)
			metrics.CaptureDegradation("translation")
			out[i] = segment
			continue
		}
		out[i] = translated
		translatedAny = true
	}
	if !translatedAny {
		return text
	}
	return strings.Join(out, "\n\n")
}

// normalizeCode turns answers like "Hindi (hi)", "EN-us" or "'en'." into a bare code.
func normalizeCode(answer string) string {
	answer = strings.ToLower(strings.TrimSpace(answer))
	if open := strings.Index(answer, "("); open >= 0 {
		if end := strings.Index(answer[open:], ")"); end > 0 {
			answer = answer[open+1 : open+end]
		}
	}
	fields := strings.FieldsFunc(answer, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// splitSegments groups paragraphs into pieces of at most limit runes. A single paragraph longer
// than limit becomes its own segment.
func splitSegments(text string, limit int) []string {
	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	var segments []string
	var current strings.Builder
	currentLen := 0
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		pLen := len([]rune(p))
		if currentLen > 0 && currentLen+pLen+2 > limit {
			segments = append(segments, current.String())
			current.Reset()
			currentLen = 0
		}
		if currentLen > 0 {
			current.WriteString("\n\n")
			currentLen += 2
		}
		current.WriteString(p)
		currentLen += pLen
	}
	if currentLen > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
