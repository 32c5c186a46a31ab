package scans

import (
	"encoding/json"
	"fmt"
	"strings"

	"docquality-backend/internal/scoring"
)

// Metadata set names the analysis payload is expected to carry. Absent or
// empty sets are tolerated everywhere downstream.
const (
	metadataTopics   = "topics"
	metadataKeyTerms = "key_terms"
)

// analysisPayload is the decoded shape of one analysis response.
type analysisPayload struct {
	DocumentType     string                    `json:"document_type"`
	Summary          string                    `json:"summary"`
	Context          string                    `json:"context"`
	Metadata         map[string][]string       `json:"metadata"`
	Dimensions       map[string]scoring.Signal `json:"dimensions"`
	FullEmbedding    []float64                 `json:"full_embedding,omitempty"`
	SummaryEmbedding []float64                 `json:"summary_embedding,omitempty"`
}

// parseAnalysisPayload decodes and normalizes a raw analysis response.
// Unknown dimension names are dropped so a chatty model cannot widen the
// fixed dimension set.
func parseAnalysisPayload(raw json.RawMessage) (analysisPayload, error) {
	var p analysisPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return analysisPayload{}, fmt.Errorf("llm output parse: %w", err)
	}
	p.DocumentType = normalizeLabel(p.DocumentType)
	if p.DocumentType == "" {
		return analysisPayload{}, fmt.Errorf("llm output invalid: missing document_type")
	}
	if p.Metadata == nil {
		p.Metadata = map[string][]string{}
	}
	for name, values := range p.Metadata {
		p.Metadata[name] = trimValues(values)
	}
	for name := range p.Dimensions {
		if !scoring.IsDimension(name) {
			delete(p.Dimensions, name)
		}
	}
	return p, nil
}

func (p analysisPayload) topics() []string   { return p.Metadata[metadataTopics] }
func (p analysisPayload) keyTerms() []string { return p.Metadata[metadataKeyTerms] }

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

func trimValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
