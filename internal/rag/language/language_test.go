package language

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/rag/llm"
	"github.com/stretchr/testify/assert"
)

type fakeProvider struct {
	calls      int
	onComplete func(system string, user string) (string, error)
}

func (f *fakeProvider) Complete(_ context.Context, system string, messages []llm.Message, _ ...llm.Option) (string, error) {
	f.calls++
	return f.onComplete(system, messages[len(messages)-1].Content)
}

func newTestService(p llm.Provider) Service {
	return NewService(p, config.StaticTuning(config.DefaultTuning()))
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		answer string
		err    error
		want   string
	}{
		{"plain code", "भूमि अधिग्रहण के लिए मुआवजा क्या है?", "hi", nil, "hi"},
		{"noisy answer", "Quelle est la procédure de recours?", "French (fr).", nil, "fr"},
		{"outside whitelist", "Hoe werkt de bouwvergunning hier?", "nl", nil, "en"},
		{"provider error", "What is the compensation rate?", "", errors.New("boom"), "en"},
		{"short text skips provider", "hi", "fr", nil, "en"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{onComplete: func(string, string) (string, error) { return tt.answer, tt.err }}
			got := newTestService(p).Detect(context.Background(), tt.text)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetect_ShortTextNeverCallsProvider(t *testing.T) {
	p := &fakeProvider{onComplete: func(string, string) (string, error) { return "hi", nil }}
	newTestService(p).Detect(context.Background(), "ok")
	assert.Equal(t, 0, p.calls)
}

func TestTranslate_SameLanguageIsIdentity(t *testing.T) {
	p := &fakeProvider{onComplete: func(string, string) (string, error) { return "changed", nil }}
	got := newTestService(p).Translate(context.Background(), "unchanged text", "en", "en")
	assert.Equal(t, "unchanged text", got)
	assert.Equal(t, 0, p.calls)
}

func TestTranslate_FailureReturnsOriginal(t *testing.T) {
	p := &fakeProvider{onComplete: func(string, string) (string, error) { return "", errors.New("quota") }}
	got := newTestService(p).Translate(context.Background(), "मुआवजा दर", "hi", "en")
	assert.Equal(t, "मुआवजा दर", got)
}

func TestTranslate_SegmentsLongText(t *testing.T) {
	tuning := config.DefaultTuning()
	tuning.Language.TranslateSegment = 30
	p := &fakeProvider{onComplete: func(system, user string) (string, error) {
		assert.Contains(t, system, "from Hindi to English")
		return strings.ToUpper(user), nil
	}}
	svc := NewService(p, config.StaticTuning(tuning))

	text := "first paragraph here\n\nsecond paragraph here\n\nthird"
	got := svc.Translate(context.Background(), text, "hi", "en")

	assert.Equal(t, "FIRST PARAGRAPH HERE\n\nSECOND PARAGRAPH HERE\n\nTHIRD", got)
	assert.Equal(t, 2, p.calls)
}

func TestTranslate_PartialFailureKeepsSegment(t *testing.T) {
	tuning := config.DefaultTuning()
	tuning.Language.TranslateSegment = 10
	p := &fakeProvider{onComplete: func(_, user string) (string, error) {
		if user == "bad part" {
			return "", errors.New("boom")
		}
		return "ok:" + user, nil
	}}
	svc := NewService(p, config.StaticTuning(tuning))

	got := svc.Translate(context.Background(), "good part\n\nbad part", "fr", "en")
	assert.Equal(t, "ok:good part\n\nbad part", got)
}

func TestTranslate_TotalFailureKeepsExactInput(t *testing.T) {
	p := &fakeProvider{onComplete: func(string, string) (string, error) { return "", errors.New("quota") }}
	text := "  Clause 1\n\n\n\nClause 2\r\n\r\nClause 3  "

	got := newTestService(p).Translate(context.Background(), text, "hi", "en")
	assert.Equal(t, text, got)
	assert.Equal(t, 1, p.calls)
}

// dictionaryProvider translates by exact lookup and fails for anything it does not know.
func dictionaryProvider(pairs map[string]string) *fakeProvider {
	return &fakeProvider{onComplete: func(_ string, user string) (string, error) {
		if out, ok := pairs[user]; ok {
			return out, nil
		}
		return "", errors.New("unknown text")
	}}
}

func TestTranslate_RoundTrip(t *testing.T) {
	const (
		english = "Compensation under Section 26 of the Land Acquisition Act, 2013 is paid within three months."
		hindi   = "भूमि अधिग्रहण अधिनियम, 2013 की धारा 26 के तहत मुआवजा तीन महीने के भीतर दिया जाता है।"
	)
	keyTerms := []string{"Section 26", "2013", "Compensation"}

	t.Run("both directions", func(t *testing.T) {
		svc := newTestService(dictionaryProvider(map[string]string{english: hindi, hindi: english}))

		there := svc.Translate(context.Background(), english, "en", "hi")
		assert.Equal(t, hindi, there)
		back := svc.Translate(context.Background(), there, "hi", "en")
		for _, term := range keyTerms {
			assert.Contains(t, back, term)
		}
	})

	t.Run("return direction degrades", func(t *testing.T) {
		svc := newTestService(dictionaryProvider(map[string]string{english: hindi}))

		there := svc.Translate(context.Background(), english, "en", "hi")
		back := svc.Translate(context.Background(), there, "hi", "en")
		assert.Equal(t, hindi, back)
		assert.Contains(t, back, "26")
		assert.Contains(t, back, "2013")
	})

	t.Run("outbound direction degrades", func(t *testing.T) {
		svc := newTestService(dictionaryProvider(map[string]string{hindi: english}))

		there := svc.Translate(context.Background(), english, "en", "hi")
		assert.Equal(t, english, there)
		for _, term := range keyTerms {
			assert.Contains(t, there, term)
		}
	})
}

func TestSplitSegments(t *testing.T) {
	assert.Empty(t, splitSegments("  \n\n ", 100))
	assert.Equal(t, []string{"a\n\nb"}, splitSegments("a\n\nb", 100))
	assert.Equal(t, []string{"aaaa", "bbbb"}, splitSegments("aaaa\r\n\r\nbbbb", 5))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "en", normalizeCode(" EN-us "))
	assert.Equal(t, "hi", normalizeCode("Hindi (hi)"))
	assert.Equal(t, "en", normalizeCode("'en'."))
	assert.Equal(t, "", normalizeCode("..."))
}
