// Package similarity computes the pairwise relationship graph across a set of
// analyzed documents: a cheap metadata gate first, then cosine similarity on
// embedding vectors (with a bag-of-words fallback) for the pairs that pass.
package similarity

import "strings"

// Document is the slice of an analysis the pair engine needs.
type Document struct {
	FileKey          string
	DocumentType     string
	Topics           []string
	KeyTerms         []string
	FullEmbedding    []float64
	SummaryEmbedding []float64
	Tokens           []string
}

// Gate is the metadata pre-filter that decides whether a pair is worth a
// vector comparison at all.
type Gate struct {
	threshold float64
}

// NewGate returns a Gate admitting pairs at or above threshold. A zero or
// negative threshold falls back to 0.7.
func NewGate(threshold float64) Gate {
	if threshold <= 0 {
		threshold = 0.7
	}
	return Gate{threshold: threshold}
}

// Evaluate returns the metadata similarity of a and b and whether the pair is
// admitted for vector comparison. Documents of different types never pass,
// and two documents with no topics or key terms at all score 0 rather than a
// vacuous 1.
func (g Gate) Evaluate(a, b Document) (float64, bool) {
	if a.DocumentType != b.DocumentType {
		return 0, false
	}
	setA := termSet(a)
	setB := termSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0, false
	}
	score := jaccard(setA, setB)
	return score, score >= g.threshold
}

// termSet merges a document's topics and key terms into one normalized set.
func termSet(d Document) map[string]struct{} {
	set := make(map[string]struct{}, len(d.Topics)+len(d.KeyTerms))
	for _, lists := range [][]string{d.Topics, d.KeyTerms} {
		for _, term := range lists {
			term = strings.ToLower(strings.TrimSpace(term))
			if term != "" {
				set[term] = struct{}{}
			}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersect := 0
	for term := range a {
		if _, ok := b[term]; ok {
			intersect++
		}
	}
	union := len(a) + len(b) - intersect
	if union == 0 {
		return 0
	}
	return float64(intersect) / float64(union)
}
