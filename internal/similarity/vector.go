package similarity

import (
	"sort"
	"strings"
)

// fallbackVocabSize bounds the pair-local bag-of-words vocabulary.
const fallbackVocabSize = 100

// pairVectors resolves the comparison vectors for one admitted pair. Each
// document prefers its full embedding, then its summary embedding. If either
// side has no embedding at all, both sides are rebuilt as term-frequency
// vectors over a vocabulary derived from this pair alone, so the two vectors
// share an index space. Fallback vectors are valid only within the pair and
// are never reused. The second return is false when no vectors can be built
// because both documents have empty token sets.
func pairVectors(a, b Document) ([]float64, []float64, bool) {
	va := embeddingOf(a)
	vb := embeddingOf(b)
	if va != nil && vb != nil && len(va) == len(vb) {
		return va, vb, true
	}
	ta := normalizeTokens(a.Tokens)
	tb := normalizeTokens(b.Tokens)
	if len(ta) == 0 && len(tb) == 0 {
		return nil, nil, false
	}
	vocab := sharedVocabulary(ta, tb)
	return termFrequencyVector(ta, vocab), termFrequencyVector(tb, vocab), true
}

func embeddingOf(d Document) []float64 {
	if len(d.FullEmbedding) > 0 {
		return d.FullEmbedding
	}
	if len(d.SummaryEmbedding) > 0 {
		return d.SummaryEmbedding
	}
	return nil
}

// normalizeTokens lowercases tokens and drops stopwords and empties.
func normalizeTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// sharedVocabulary picks the top terms by combined frequency across both
// token lists and assigns each a stable index. Ties break lexicographically
// so the vocabulary is deterministic for a given pair.
func sharedVocabulary(a, b []string) map[string]int {
	freq := make(map[string]int)
	for _, tok := range a {
		freq[tok]++
	}
	for _, tok := range b {
		freq[tok]++
	}
	terms := make([]string, 0, len(freq))
	for term := range freq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > fallbackVocabSize {
		terms = terms[:fallbackVocabSize]
	}
	vocab := make(map[string]int, len(terms))
	for i, term := range terms {
		vocab[term] = i
	}
	return vocab
}

func termFrequencyVector(tokens []string, vocab map[string]int) []float64 {
	vec := make([]float64, len(vocab))
	for _, tok := range tokens {
		if idx, ok := vocab[tok]; ok {
			vec[idx]++
		}
	}
	return vec
}
