package scans

import (
	"sort"
	"time"

	"docquality-backend/internal/scoring"
	"docquality-backend/internal/similarity"
)

// Consolidate merges per-document quality results and the canonical pair list
// into one immutable ConsolidatedResult. duplicate_pairs and the per-file
// views are filters over the single canonical list, so duplicate_pairs is a
// subset of similarity_pairs by construction. Documents that errored appear
// in files with their error but never as a pair endpoint.
func Consolidate(scanID string, docs []DocumentAnalysis, qualities map[string]scoring.Result, pairs []similarity.Pair, duplicateThreshold float64, generatedAt time.Time) ConsolidatedResult {
	canonical := make([]PairView, 0, len(pairs))
	for _, p := range pairs {
		canonical = append(canonical, PairView{
			File1:              p.File1,
			File2:              p.File2,
			MetadataSimilarity: p.MetadataSimilarity,
			Similarity:         p.Similarity,
			Tier:               similarity.Tier(p.Similarity),
		})
	}
	// Highest similarity first; ties keep first-seen pairing order.
	sort.SliceStable(canonical, func(i, j int) bool {
		return canonical[i].Similarity > canonical[j].Similarity
	})

	duplicates := make([]PairView, 0)
	for _, p := range canonical {
		if p.Similarity >= duplicateThreshold {
			duplicates = append(duplicates, p)
		}
	}

	files := make([]FileResult, 0, len(docs))
	for _, doc := range docs {
		files = append(files, buildFileResult(doc, qualities, canonical, duplicateThreshold))
	}

	return ConsolidatedResult{
		ScanID:          scanID,
		GeneratedAt:     generatedAt,
		Files:           files,
		DuplicatePairs:  duplicates,
		SimilarityPairs: canonical,
	}
}

func buildFileResult(doc DocumentAnalysis, qualities map[string]scoring.Result, canonical []PairView, duplicateThreshold float64) FileResult {
	fr := FileResult{
		FileKey:             doc.FileKey,
		FileName:            doc.FileName,
		Status:              doc.Status,
		PotentialDuplicates: []PairView{},
		SimilarityPairs:     []PairView{},
	}
	if doc.Status == DocStatusError {
		fr.ErrorCode = doc.ErrorCode
		fr.Error = doc.ErrorMessage
		return fr
	}

	fr.DocumentType = doc.DocumentType
	fr.Summary = doc.Summary
	fr.Context = doc.Context
	fr.Metadata = doc.Metadata
	if !doc.UploadedAt.IsZero() {
		uploaded := doc.UploadedAt
		fr.UploadTimestamp = &uploaded
	}
	if !doc.AnalyzedAt.IsZero() {
		analyzed := doc.AnalyzedAt
		fr.AnalysisTimestamp = &analyzed
	}
	if q, ok := qualities[doc.FileKey]; ok {
		fr.Quality = &q
	}
	for _, p := range canonical {
		if !p.Touches(doc.FileKey) {
			continue
		}
		fr.SimilarityPairs = append(fr.SimilarityPairs, p)
		if p.Similarity >= duplicateThreshold {
			fr.PotentialDuplicates = append(fr.PotentialDuplicates, p)
		}
	}
	return fr
}
