package similarity

import "math"

// Pair is one gate-passing comparison between two documents. File1 and File2
// keep the order in which the pairing was first seen.
type Pair struct {
	File1              string  `json:"file_1"`
	File2              string  `json:"file_2"`
	MetadataSimilarity float64 `json:"metadata_similarity"`
	Similarity         float64 `json:"similarity"`
}

// Engine runs the gate and the cosine comparison over every document pair.
type Engine struct {
	gate Gate
}

// NewEngine returns an Engine whose gate admits pairs at or above
// gateThreshold.
func NewEngine(gateThreshold float64) *Engine {
	return &Engine{gate: NewGate(gateThreshold)}
}

// Pairs compares every unordered pair of docs and returns the admitted ones
// in first-seen order. Pairs whose vectors cannot be resolved on either side
// are dropped entirely rather than reported as zero.
func (e *Engine) Pairs(docs []Document) []Pair {
	var pairs []Pair
	for i := 0; i < len(docs); i++ {
		for j := i + 1; j < len(docs); j++ {
			meta, admit := e.gate.Evaluate(docs[i], docs[j])
			if !admit {
				continue
			}
			va, vb, ok := pairVectors(docs[i], docs[j])
			if !ok {
				continue
			}
			pairs = append(pairs, Pair{
				File1:              docs[i].FileKey,
				File2:              docs[j].FileKey,
				MetadataSimilarity: meta,
				Similarity:         Cosine(va, vb),
			})
		}
	}
	return pairs
}

// Cosine returns the cosine similarity of u and v clamped to [0,1].
// Embedding noise can push the raw value slightly outside the range; a zero
// vector on either side yields 0.
func Cosine(u, v []float64) float64 {
	if len(u) != len(v) || len(u) == 0 {
		return 0
	}
	var dot, normU, normV float64
	for i := range u {
		dot += u[i] * v[i]
		normU += u[i] * u[i]
		normV += v[i] * v[i]
	}
	if normU == 0 || normV == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normU) * math.Sqrt(normV))
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}
