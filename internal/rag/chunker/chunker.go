package chunker

import (
	"sort"
	"strings"
	"unicode"

	"github.com/akolanti/CivicRAG/internal/config"
)

// Options are measured in characters (runes), not bytes.
type Options struct {
	TargetSize int
	Overlap    int
	// Tolerance is how far before TargetSize a chunk may end to land on a nicer boundary.
	Tolerance int
}

func OptionsFrom(t config.ChunkTuning) Options {
	return Options{TargetSize: t.TargetSize, Overlap: t.Overlap, Tolerance: t.Tolerance}
}

func (o Options) normalize() Options {
	if o.TargetSize <= 0 {
		o.TargetSize = 1000
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.TargetSize {
		o.Overlap = o.TargetSize / 5
	}
	if o.Tolerance < 0 {
		o.Tolerance = 0
	}
	if o.Tolerance >= o.TargetSize {
		o.Tolerance = o.TargetSize - 1
	}
	return o
}

// Passage is one chunk of the source. Text is exactly source[Start:End] in runes and its first
// Overlap runes repeat the tail of the previous passage.
type Passage struct {
	Text          string
	Start         int
	End           int
	Overlap       int
	SequenceIndex int

	PageNumber     *int
	ParagraphIndex int
	FirstParagraph int
	LastParagraph  int
}

// Split cuts text greedily into passages of at most TargetSize runes. The end of a passage is the
// last paragraph break, sentence end or whitespace inside the tolerance window, in that order of
// preference, and a hard cut otherwise. The next passage starts Overlap runes back, moved forward
// to a word start.
func Split(text string, opts Options) []Passage {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	o := opts.normalize()
	r := []rune(text)
	n := len(r)

	var out []Passage
	start, prevEnd := 0, 0
	for {
		end := n
		if n-start > o.TargetSize {
			end = breakPoint(r, start, o)
			if onlySpace(r[end:]) {
				end = n
			}
		}
		overlap := 0
		if len(out) > 0 {
			overlap = prevEnd - start
		}
		out = append(out, Passage{
			Text:          string(r[start:end]),
			Start:         start,
			End:           end,
			Overlap:       overlap,
			SequenceIndex: len(out),
		})
		if end >= n {
			return out
		}
		prevEnd = end
		start = nextStart(r, start, end, o.Overlap)
	}
}

func breakPoint(r []rune, start int, o Options) int {
	limit := start + o.TargetSize
	low := limit - o.Tolerance
	if low <= start {
		low = start + 1
	}

	for p := limit; p >= low; p-- {
		if p >= 2 && r[p-1] == '\n' && r[p-2] == '\n' {
			return p
		}
	}
	for p := limit; p >= low; p-- {
		if p >= 2 && unicode.IsSpace(r[p-1]) && isSentenceEnd(r[p-2]) {
			return p
		}
	}
	for p := limit; p >= low; p-- {
		if unicode.IsSpace(r[p-1]) {
			return p
		}
	}
	return limit
}

func nextStart(r []rune, start, end, overlap int) int {
	if overlap == 0 {
		return end
	}
	next := end - overlap
	if next <= start {
		next = start + 1
	}
	for next < end && !unicode.IsSpace(r[next-1]) {
		next++
	}
	for next < end && unicode.IsSpace(r[next]) {
		next++
	}
	return next
}

func isSentenceEnd(c rune) bool {
	switch c {
	case '.', '!', '?', ';', '।', '॥', '。':
		return true
	}
	return false
}

func onlySpace(r []rune) bool {
	for _, c := range r {
		if !unicode.IsSpace(c) {
			return false
		}
	}
	return true
}

// Paragraph is a unit of extracted text with the page it came from and, for translated documents,
// the source language text it was translated from.
type Paragraph struct {
	Text     string
	Page     *int
	Original *string
}

const paragraphSeparator = "\n\n"

// ChunkParagraphs joins the paragraphs with blank lines, splits the result and attributes every
// passage to the paragraph holding its first visible character. Paragraph indexes refer to paras.
func ChunkParagraphs(paras []Paragraph, opts Options) []Passage {
	texts := make([]string, len(paras))
	offsets := make([]int, len(paras))
	pos := 0
	for i, p := range paras {
		texts[i] = p.Text
		offsets[i] = pos
		pos += len([]rune(p.Text)) + len(paragraphSeparator)
	}

	full := strings.Join(texts, paragraphSeparator)
	passages := Split(full, opts)
	r := []rune(full)

	owner := func(at int) int {
		return sort.Search(len(offsets), func(i int) bool { return offsets[i] > at }) - 1
	}
	for i := range passages {
		p := &passages[i]
		first, last := p.Start, p.End-1
		for first < p.End && unicode.IsSpace(r[first]) {
			first++
		}
		for last > first && unicode.IsSpace(r[last]) {
			last--
		}
		p.FirstParagraph = max(owner(first), 0)
		p.LastParagraph = max(owner(last), p.FirstParagraph)
		p.ParagraphIndex = p.FirstParagraph
		if p.FirstParagraph < len(paras) {
			p.PageNumber = paras[p.FirstParagraph].Page
		}
	}
	return passages
}

// OriginalText joins the source language text of the paragraphs a passage spans. It is nil when
// none of them carry one, which is the case for documents already in the pivot language.
func OriginalText(paras []Paragraph, p Passage) *string {
	var parts []string
	for i := p.FirstParagraph; i <= p.LastParagraph && i < len(paras); i++ {
		if paras[i].Original != nil {
			parts = append(parts, *paras[i].Original)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	joined := strings.Join(parts, paragraphSeparator)
	return &joined
}
