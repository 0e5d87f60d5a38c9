package search

import (
	"math"
	"strings"
	"unicode"
)

// BM25 parameters: k1 controls term-frequency saturation, b the strength
// of document-length normalization.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// tokenize lowercases text and splits it on every non-alphanumeric rune.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// bm25Scores computes a BM25 score per document for the given query tokens.
// The IDF is ln(1+(N-df+0.5)/(df+0.5)), which stays positive even for terms
// present in most of the corpus, so common query terms still contribute.
func bm25Scores(queryTokens []string, docs [][]string) []float64 {
	n := len(docs)
	scores := make([]float64, n)
	if n == 0 || len(queryTokens) == 0 {
		return scores
	}

	docFreq := make(map[string]int)
	termFreqs := make([]map[string]int, n)
	totalLen := 0
	for i, doc := range docs {
		tf := make(map[string]int, len(doc))
		for _, tok := range doc {
			tf[tok]++
		}
		termFreqs[i] = tf
		totalLen += len(doc)
		for tok := range tf {
			docFreq[tok]++
		}
	}
	avgLen := float64(totalLen) / float64(n)
	if avgLen == 0 {
		return scores
	}

	for _, term := range queryTokens {
		df := docFreq[term]
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))

		for i := range docs {
			tf := float64(termFreqs[i][term])
			if tf == 0 {
				continue
			}
			norm := bm25K1 * (1 - bm25B + bm25B*float64(len(docs[i]))/avgLen)
			scores[i] += idf * tf * (bm25K1 + 1) / (tf + norm)
		}
	}
	return scores
}
