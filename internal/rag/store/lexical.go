package store

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it on non-alphanumeric runes.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// LexicalScore rates how well content matches the query terms,
// returning a value in [0, 1]. The score is the fraction of distinct
// query terms present in the content, each weighted by a dampened term
// frequency so repeated matches help without dominating.
//
// The exact-scan backends share this scorer; SQL backends use their
// native ranking (ts_rank) which the engine normalizes before
// blending.
func LexicalScore(query, content string) float32 {
	queryTerms := Tokenize(query)
	if len(queryTerms) == 0 {
		return 0
	}

	distinct := make(map[string]struct{}, len(queryTerms))
	for _, term := range queryTerms {
		distinct[term] = struct{}{}
	}

	counts := make(map[string]int)
	for _, term := range Tokenize(content) {
		if _, ok := distinct[term]; ok {
			counts[term]++
		}
	}
	if len(counts) == 0 {
		return 0
	}

	var score float32
	for _, tf := range counts {
		// Dampen term frequency: 1 occurrence scores 0.5, saturating
		// towards 1 as the term repeats.
		score += float32(tf) / float32(tf+1)
	}
	return score / float32(len(distinct))
}
