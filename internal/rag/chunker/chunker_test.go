package chunker

import (
	"math/rand"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reconstruct(passages []Passage) string {
	var b strings.Builder
	for i, p := range passages {
		if i == 0 {
			b.WriteString(p.Text)
			continue
		}
		b.WriteString(string([]rune(p.Text)[p.Overlap:]))
	}
	return b.String()
}

var vocabulary = []string{
	"the", "land", "acquisition", "act", "2013", "defines", "compensation", "in", "section", "26.",
	"market", "value", "shall", "be", "determined", "by", "collector;", "appeal?",
	"भूमि", "अधिग्रहण", "अधिनियम", "मुआवजा", "धारा", "में", "परिभाषित", "है।",
	"supercalifragilisticexpialidociousandthensomemorelettersforgoodmeasure",
}

func randomDocument(rng *rand.Rand, words int) string {
	var b strings.Builder
	for i := 0; i < words; i++ {
		if i > 0 {
			switch rng.Intn(40) {
			case 0:
				b.WriteString("\n\n")
			case 1:
				b.WriteString("\n")
			case 2:
				b.WriteString("  ")
			default:
				b.WriteString(" ")
			}
		}
		b.WriteString(vocabulary[rng.Intn(len(vocabulary))])
	}
	return b.String()
}

func TestSplit_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	options := []Options{
		{TargetSize: 1000, Overlap: 200, Tolerance: 200},
		{TargetSize: 120, Overlap: 30, Tolerance: 40},
		{TargetSize: 50, Overlap: 0, Tolerance: 10},
		{TargetSize: 64, Overlap: 60, Tolerance: 0},
	}
	for _, o := range options {
		for trial := 0; trial < 50; trial++ {
			text := randomDocument(rng, 10+rng.Intn(800))
			passages := Split(text, o)

			require.NotEmpty(t, passages)
			assert.Equal(t, text, reconstruct(passages), "options %+v trial %d", o, trial)
			for i, p := range passages {
				assert.LessOrEqual(t, len([]rune(p.Text)), o.TargetSize)
				assert.Equal(t, i, p.SequenceIndex)
				if i > 0 {
					assert.Greater(t, p.Start, passages[i-1].Start, "passages must advance")
				}
			}
		}
	}
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	a := strings.Repeat("word ", 180)[:900]
	b := strings.Repeat("next ", 50)
	passages := Split(a+"\n\n"+b, Options{TargetSize: 1000, Overlap: 200, Tolerance: 200})

	require.Len(t, passages, 2)
	assert.Equal(t, 902, passages[0].End)
	assert.True(t, strings.HasSuffix(passages[0].Text, "\n\n"))
}

func TestSplit_PrefersSentenceOverWhitespace(t *testing.T) {
	text := strings.Repeat("a", 85) + ". " + strings.Repeat("b ", 20)
	passages := Split(text, Options{TargetSize: 100, Overlap: 0, Tolerance: 30})

	require.GreaterOrEqual(t, len(passages), 2)
	assert.True(t, strings.HasSuffix(passages[0].Text, ". "))
}

func TestSplit_OverlapStartsOnWord(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	text := randomDocument(rng, 600)
	passages := Split(text, Options{TargetSize: 200, Overlap: 50, Tolerance: 50})
	r := []rune(text)

	for _, p := range passages[1:] {
		if p.Overlap == 0 {
			continue
		}
		assert.True(t, unicode.IsSpace(r[p.Start-1]), "overlap at %d splits a word", p.Start)
		assert.False(t, unicode.IsSpace(r[p.Start]))
	}
}

func TestSplit_HardCut(t *testing.T) {
	text := strings.Repeat("a", 2500)
	passages := Split(text, Options{TargetSize: 1000, Overlap: 200, Tolerance: 200})

	require.Len(t, passages, 3)
	for _, p := range passages {
		assert.Equal(t, 0, p.Overlap)
	}
	assert.Equal(t, text, reconstruct(passages))
}

func TestSplit_Edges(t *testing.T) {
	assert.Nil(t, Split("", Options{TargetSize: 10}))
	assert.Nil(t, Split(" \n\n\t", Options{TargetSize: 10}))

	single := Split("short text", Options{TargetSize: 1000, Overlap: 200})
	require.Len(t, single, 1)
	assert.Equal(t, "short text", single[0].Text)

	trailing := Split(strings.Repeat("x ", 10)+strings.Repeat(" ", 30), Options{TargetSize: 25, Overlap: 5, Tolerance: 5})
	assert.Len(t, trailing, 1, "trailing whitespace must not become its own passage")
}

func TestChunkParagraphs_Attribution(t *testing.T) {
	page := func(n int) *int { return &n }
	original := func(s string) *string { return &s }

	paras := []Paragraph{
		{Text: strings.TrimSpace(strings.Repeat("alpha ", 100)), Page: page(1), Original: original("अल्फा")},
		{Text: strings.TrimSpace(strings.Repeat("beta ", 100)), Page: page(2), Original: original("बीटा")},
		{Text: strings.TrimSpace(strings.Repeat("gamma ", 100)), Page: nil, Original: original("गामा")},
	}
	passages := ChunkParagraphs(paras, Options{TargetSize: 700, Overlap: 100, Tolerance: 150})
	require.NotEmpty(t, passages)

	first := passages[0]
	assert.Equal(t, 0, first.ParagraphIndex)
	require.NotNil(t, first.PageNumber)
	assert.Equal(t, 1, *first.PageNumber)
	assert.Equal(t, 0, first.LastParagraph, "first passage ends on the paragraph break")
	assert.Equal(t, "अल्फा", *OriginalText(paras, first))

	require.GreaterOrEqual(t, len(passages), 3)
	spanning := passages[1]
	assert.Equal(t, 0, spanning.FirstParagraph)
	assert.Equal(t, 1, spanning.LastParagraph)
	assert.Equal(t, "अल्फा\n\nबीटा", *OriginalText(paras, spanning))

	last := passages[len(passages)-1]
	assert.Equal(t, 2, last.LastParagraph)
	assert.True(t, strings.HasSuffix(last.Text, "gamma"))

	for i := 1; i < len(passages); i++ {
		assert.GreaterOrEqual(t, passages[i].ParagraphIndex, passages[i-1].ParagraphIndex)
	}
}

func TestOriginalText_NilForPivotDocuments(t *testing.T) {
	paras := []Paragraph{{Text: "The Land Acquisition Act, 2013 defines compensation in Section 26."}}
	passages := ChunkParagraphs(paras, Options{TargetSize: 1000, Overlap: 200, Tolerance: 200})

	require.Len(t, passages, 1)
	assert.Nil(t, OriginalText(paras, passages[0]))
	assert.Nil(t, passages[0].PageNumber)
}
