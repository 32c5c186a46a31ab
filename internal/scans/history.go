package scans

import (
	"context"
	"fmt"
	"math"
	"time"

	"docquality-backend/internal/scoring"
)

// Rescore records a manual score override for one dimension of one document.
// The override is appended to the score history and a new consolidated result
// is built around it; the prior result object is superseded, never patched.
func (s *Service) Rescore(ctx context.Context, scanID, fileKey, dimension string, score int, evidence string) (FileResult, error) {
	if !scoring.IsDimension(dimension) {
		return FileResult{}, fmt.Errorf("unknown dimension %q", dimension)
	}
	if score < 0 || score > 100 {
		return FileResult{}, fmt.Errorf("score must be within 0..100, got %d", score)
	}

	scan, err := s.Repo.GetByID(ctx, scanID)
	if err != nil {
		return FileResult{}, err
	}
	if scan.Result == nil {
		return FileResult{}, ErrNotReady
	}
	idx := -1
	for i, file := range scan.Result.Files {
		if file.FileKey == fileKey {
			idx = i
			break
		}
	}
	if idx < 0 {
		return FileResult{}, ErrNotFound
	}
	if scan.Result.Files[idx].Quality == nil {
		return FileResult{}, ErrNotRescorable
	}

	now := time.Now().UTC()
	if err := s.Repo.AppendScore(ctx, ScoreEntry{
		ScanID:     scanID,
		FileKey:    fileKey,
		Dimension:  dimension,
		Score:      score,
		Evidence:   evidence,
		RecordedAt: now,
	}); err != nil {
		return FileResult{}, err
	}

	entries, err := s.Repo.ListScores(ctx, scanID, fileKey)
	if err != nil {
		return FileResult{}, err
	}

	result := rescoredResult(*scan.Result, idx, dimension, score, evidence, s.Scorer, now)
	result.Files[idx].ScoreHistory = entries
	if err := s.Repo.UpdateResult(ctx, scanID, &result); err != nil {
		return FileResult{}, err
	}
	s.saveJSON(ctx, resultKey(scanID), result)
	s.saveJSON(ctx, result.Files[idx].FileKey+".quality.json", result.Files[idx])

	return result.Files[idx], nil
}

// ScoreHistory returns the append-only score history for one document.
func (s *Service) ScoreHistory(ctx context.Context, scanID, fileKey string) ([]ScoreEntry, error) {
	if _, err := s.Repo.GetByID(ctx, scanID); err != nil {
		return nil, err
	}
	return s.Repo.ListScores(ctx, scanID, fileKey)
}

// rescoredResult builds a fresh ConsolidatedResult with one dimension of one
// file replaced and that file's overall score and action recomputed. All
// other files and both pair lists carry over unchanged.
func rescoredResult(prev ConsolidatedResult, idx int, dimension string, score int, evidence string, scorer *scoring.Scorer, generatedAt time.Time) ConsolidatedResult {
	files := make([]FileResult, len(prev.Files))
	copy(files, prev.Files)

	old := files[idx].Quality
	dims := make([]scoring.DimensionScore, len(old.Dimensions))
	copy(dims, old.Dimensions)
	sum := 0
	for i := range dims {
		if dims[i].Name == dimension {
			dims[i].Score = score
			dims[i].Evidence = evidence
		}
		sum += dims[i].Score
	}
	overall := int(math.Round(float64(sum) / float64(len(dims))))
	files[idx].Quality = &scoring.Result{
		Dimensions:        dims,
		OverallScore:      overall,
		RecommendedAction: scorer.Action(overall),
	}

	return ConsolidatedResult{
		ScanID:          prev.ScanID,
		GeneratedAt:     generatedAt,
		Files:           files,
		DuplicatePairs:  prev.DuplicatePairs,
		SimilarityPairs: prev.SimilarityPairs,
	}
}
