package index

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "have": {}, "in": {},
	"is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {}, "that": {},
	"the": {}, "to": {}, "was": {}, "were": {}, "will": {}, "with": {},
}

// Tokenize lowercases, strips punctuation and drops stopwords. The same
// function feeds both the indexer's sparse signatures and the query side,
// so the two representations stay comparable.
func Tokenize(text string) []string {
	var sb strings.Builder
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(unicode.ToLower(r))
		default:
			sb.WriteRune(' ')
		}
	}
	fields := strings.Fields(sb.String())
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// SparseVector builds a length-normalized term frequency map.
func SparseVector(text string) map[string]float64 {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return map[string]float64{}
	}
	vec := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		vec[t]++
	}
	total := float64(len(tokens))
	for t := range vec {
		vec[t] /= total
	}
	return vec
}
