package scans

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores scans in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu     sync.RWMutex
	byID   map[string]Scan
	order  []string
	scores []ScoreEntry
	nextID int64
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Scan)}
}

// Create stores the scan.
func (r *MemoryRepo) Create(ctx context.Context, scan Scan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[scan.ID] = scan
	r.order = append(r.order, scan.ID)
	return nil
}

// GetByID returns a scan by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, scanID string) (Scan, error) {
	if err := ctx.Err(); err != nil {
		return Scan{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	scan, ok := r.byID[scanID]
	if !ok {
		return Scan{}, ErrNotFound
	}
	return scan, nil
}

// List returns scans newest-first.
func (r *MemoryRepo) List(ctx context.Context, limit, offset int) ([]Scan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	scans := make([]Scan, 0, len(r.byID))
	for _, id := range r.order {
		scans = append(scans, r.byID[id])
	}
	sort.SliceStable(scans, func(i, j int) bool {
		return scans[i].CreatedAt.After(scans[j].CreatedAt)
	})
	if offset >= len(scans) {
		return []Scan{}, nil
	}
	scans = scans[offset:]
	if limit > 0 && limit < len(scans) {
		scans = scans[:limit]
	}
	return scans, nil
}

// SetProcessing marks the scan as processing and stamps its start time.
func (r *MemoryRepo) SetProcessing(ctx context.Context, scanID string, startedAt time.Time) error {
	return r.update(ctx, scanID, func(scan *Scan) {
		scan.Status = StatusProcessing
		scan.StartedAt = &startedAt
	})
}

// Complete stores the consolidated result and marks the scan completed.
func (r *MemoryRepo) Complete(ctx context.Context, scanID string, result *ConsolidatedResult, completedAt time.Time) error {
	return r.update(ctx, scanID, func(scan *Scan) {
		scan.Status = StatusCompleted
		scan.Result = result
		scan.ErrorCode = nil
		scan.ErrorMessage = nil
		scan.CompletedAt = &completedAt
	})
}

// UpdateResult replaces the stored consolidated result. Used by rescoring,
// which supersedes the prior result with a newly built one.
func (r *MemoryRepo) UpdateResult(ctx context.Context, scanID string, result *ConsolidatedResult) error {
	return r.update(ctx, scanID, func(scan *Scan) {
		scan.Result = result
	})
}

// Fail records a run-level failure.
func (r *MemoryRepo) Fail(ctx context.Context, scanID, errorCode, errorMessage string, completedAt time.Time) error {
	return r.update(ctx, scanID, func(scan *Scan) {
		scan.Status = StatusFailed
		scan.ErrorCode = &errorCode
		scan.ErrorMessage = &errorMessage
		scan.CompletedAt = &completedAt
	})
}

// AppendScore adds one score history entry.
func (r *MemoryRepo) AppendScore(ctx context.Context, entry ScoreEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry.ID = r.nextID
	r.scores = append(r.scores, entry)
	return nil
}

// ListScores returns the score history for one document, oldest first.
func (r *MemoryRepo) ListScores(ctx context.Context, scanID, fileKey string) ([]ScoreEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]ScoreEntry, 0)
	for _, e := range r.scores {
		if e.ScanID == scanID && e.FileKey == fileKey {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (r *MemoryRepo) update(ctx context.Context, scanID string, apply func(*Scan)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	scan, ok := r.byID[scanID]
	if !ok {
		return ErrNotFound
	}
	apply(&scan)
	now := time.Now().UTC()
	scan.UpdatedAt = &now
	r.byID[scanID] = scan
	return nil
}
