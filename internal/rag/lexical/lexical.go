package lexical

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokenize lowercases text and splits it into letter/digit runs.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r) && !unicode.Is(unicode.Mc, r)
	})
}

// Keywords returns the significant query terms in first-seen order: tokens longer than minLength
// that are not stopwords. Purely numeric tokens are kept regardless of length because section and
// year references are often the most precise terms in a legal query.
func Keywords(text string, stopwords map[string]struct{}, minLength int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Tokenize(text) {
		if _, dup := seen[tok]; dup {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if !isNumeric(tok) && utf8.RuneCountInString(tok) <= minLength {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func StopwordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

// Prefix shortens a keyword to its first n runes for relaxed matching. Short keywords are kept whole.
func Prefix(keyword string, n int) string {
	r := []rune(keyword)
	if len(r) <= n {
		return keyword
	}
	return string(r[:n])
}

// Index is a token bag for one passage.
type Index struct {
	counts map[string]int
	total  int
}

func NewIndex(text string) Index {
	tokens := Tokenize(text)
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return Index{counts: counts, total: len(tokens)}
}

// ContainsAny reports whether any keyword appears as a whole token.
func (ix Index) ContainsAny(keywords []string) bool {
	for _, k := range keywords {
		if ix.counts[k] > 0 {
			return true
		}
	}
	return false
}

// ContainsAnyPrefix reports whether any token starts with the prefix of a keyword.
func (ix Index) ContainsAnyPrefix(keywords []string, prefixLength int) bool {
	for _, k := range keywords {
		p := Prefix(k, prefixLength)
		for tok := range ix.counts {
			if strings.HasPrefix(tok, p) {
				return true
			}
		}
	}
	return false
}

// Score is a saturating term frequency score over the query terms, higher is better. With prefix
// set a term matches every token starting with it.
func (ix Index) Score(terms []string, prefix bool) float64 {
	if ix.total == 0 {
		return 0
	}
	var score float64
	for _, term := range terms {
		tf := 0
		if prefix {
			for tok, c := range ix.counts {
				if strings.HasPrefix(tok, term) {
					tf += c
				}
			}
		} else {
			tf = ix.counts[term]
		}
		if tf == 0 {
			continue
		}
		score += float64(tf) / (float64(tf) + 1.2)
	}
	// shorter passages with the same hits rank higher
	return score / (1 + math.Log1p(float64(ix.total)/100))
}

func isNumeric(tok string) bool {
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return tok != ""
}
