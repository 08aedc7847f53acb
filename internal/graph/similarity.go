package graph

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// Similarity weights: edit distance carries the decision, embeddings refine it.
const (
	nameWeight      = 0.6
	embeddingWeight = 0.4
)

// NameSimilarity scores two surface forms in [0,1], case-insensitive.
// Whole-string Levenshtein handles typos; a token pass handles the common
// shapes of the same name ("Jef", "jef a.", "Jef Adriaenssens"), where a
// shared full token or a matching initial counts as a hit. The higher of
// the two scores wins.
func NameSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	whole := levenshtein.Similarity(a, b, nil)
	if token := tokenSimilarity(a, b); token > whole {
		return token
	}
	return whole
}

// tokenSimilarity covers the smaller token set: every token of the shorter
// name must find a counterpart in the longer one for the pair to score
// high. "jef smith" vs "jef adriaenssens" shares only the first name and
// lands well under the dedup threshold.
func tokenSimilarity(a, b string) float64 {
	at := nameTokens(a)
	bt := nameTokens(b)
	if len(at) == 0 || len(bt) == 0 {
		return 0
	}
	if len(bt) < len(at) {
		at, bt = bt, at
	}

	var sum float64
	for _, t := range at {
		best := 0.0
		for _, u := range bt {
			if s := tokenMatch(t, u); s > best {
				best = s
			}
		}
		sum += best
	}
	return sum / float64(len(at))
}

func nameTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// tokenMatch treats a single-rune token as an initial, so "a" matches
// "adriaenssens" in full.
func tokenMatch(t, u string) float64 {
	if t == u {
		return 1
	}
	if utf8.RuneCountInString(t) == 1 && strings.HasPrefix(u, t) {
		return 1
	}
	if utf8.RuneCountInString(u) == 1 && strings.HasPrefix(t, u) {
		return 1
	}
	return levenshtein.Similarity(t, u, nil)
}

// CosineSimilarity returns the cosine of two embedding vectors, clamped to
// [0,1]. Mismatched or empty vectors score zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}

// CombinedSimilarity blends name and embedding similarity. When either
// embedding is missing the name score stands alone, so dedup still works
// without an embedding backend.
func CombinedSimilarity(nameA, nameB string, embA, embB []float32) float64 {
	name := NameSimilarity(nameA, nameB)
	if len(embA) == 0 || len(embB) == 0 || len(embA) != len(embB) {
		return name
	}
	return nameWeight*name + embeddingWeight*CosineSimilarity(embA, embB)
}
