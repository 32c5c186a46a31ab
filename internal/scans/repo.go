package scans

import (
	"context"
	"time"
)

// Repo defines persistence operations for scans and score history.
type Repo interface {
	Create(ctx context.Context, scan Scan) error
	GetByID(ctx context.Context, scanID string) (Scan, error)
	List(ctx context.Context, limit, offset int) ([]Scan, error)
	SetProcessing(ctx context.Context, scanID string, startedAt time.Time) error
	Complete(ctx context.Context, scanID string, result *ConsolidatedResult, completedAt time.Time) error
	UpdateResult(ctx context.Context, scanID string, result *ConsolidatedResult) error
	Fail(ctx context.Context, scanID, errorCode, errorMessage string, completedAt time.Time) error

	AppendScore(ctx context.Context, entry ScoreEntry) error
	ListScores(ctx context.Context, scanID, fileKey string) ([]ScoreEntry, error)
}
