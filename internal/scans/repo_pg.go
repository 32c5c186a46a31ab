package scans

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new scan.
func (r *PGRepo) Create(ctx context.Context, scan Scan) error {
	const query = `
INSERT INTO scans (id, status, bucket, file_keys, provider, model, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	keys, err := json.Marshal(scan.FileKeys)
	if err != nil {
		return fmt.Errorf("marshal file keys: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, query,
		scan.ID,
		scan.Status,
		scan.Bucket,
		keys,
		scan.Provider,
		scan.Model,
		scan.CreatedAt,
	)
	return err
}

// GetByID returns a scan by ID.
func (r *PGRepo) GetByID(ctx context.Context, scanID string) (Scan, error) {
	const query = `
SELECT id, status, bucket, file_keys, provider, model, result,
       error_code, error_message, started_at, completed_at, created_at, updated_at
FROM scans
WHERE id = $1
LIMIT 1`
	scan, err := scanRow(r.DB.QueryRowContext(ctx, query, scanID))
	if errors.Is(err, sql.ErrNoRows) {
		return Scan{}, ErrNotFound
	}
	return scan, err
}

// List returns scans newest-first.
func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Scan, error) {
	const query = `
SELECT id, status, bucket, file_keys, provider, model, result,
       error_code, error_message, started_at, completed_at, created_at, updated_at
FROM scans
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		scan, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	return scans, rows.Err()
}

// SetProcessing marks the scan as processing and stamps its start time.
func (r *PGRepo) SetProcessing(ctx context.Context, scanID string, startedAt time.Time) error {
	const query = `
UPDATE scans
SET status = $2, started_at = $3, updated_at = now()
WHERE id = $1`
	return r.exec(ctx, query, scanID, StatusProcessing, startedAt)
}

// Complete stores the consolidated result and marks the scan completed.
func (r *PGRepo) Complete(ctx context.Context, scanID string, result *ConsolidatedResult, completedAt time.Time) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	const query = `
UPDATE scans
SET status = $2, result = $3, error_code = NULL, error_message = NULL,
    completed_at = $4, updated_at = now()
WHERE id = $1`
	return r.exec(ctx, query, scanID, StatusCompleted, payload, completedAt)
}

// UpdateResult replaces the stored consolidated result. Used by rescoring,
// which supersedes the prior result with a newly built one.
func (r *PGRepo) UpdateResult(ctx context.Context, scanID string, result *ConsolidatedResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	const query = `
UPDATE scans
SET result = $2, updated_at = now()
WHERE id = $1`
	return r.exec(ctx, query, scanID, payload)
}

// Fail records a run-level failure.
func (r *PGRepo) Fail(ctx context.Context, scanID, errorCode, errorMessage string, completedAt time.Time) error {
	const query = `
UPDATE scans
SET status = $2, error_code = $3, error_message = $4, completed_at = $5, updated_at = now()
WHERE id = $1`
	return r.exec(ctx, query, scanID, StatusFailed, errorCode, errorMessage, completedAt)
}

// AppendScore adds one score history entry.
func (r *PGRepo) AppendScore(ctx context.Context, entry ScoreEntry) error {
	const query = `
INSERT INTO score_history (scan_id, file_key, dimension, score, evidence, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.DB.ExecContext(ctx, query,
		entry.ScanID,
		entry.FileKey,
		entry.Dimension,
		entry.Score,
		entry.Evidence,
		entry.RecordedAt,
	)
	return err
}

// ListScores returns the score history for one document, oldest first.
func (r *PGRepo) ListScores(ctx context.Context, scanID, fileKey string) ([]ScoreEntry, error) {
	const query = `
SELECT id, scan_id, file_key, dimension, score, evidence, recorded_at
FROM score_history
WHERE scan_id = $1 AND file_key = $2
ORDER BY id ASC`
	rows, err := r.DB.QueryContext(ctx, query, scanID, fileKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ScoreEntry
	for rows.Next() {
		var e ScoreEntry
		if err := rows.Scan(&e.ID, &e.ScanID, &e.FileKey, &e.Dimension, &e.Score, &e.Evidence, &e.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *PGRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (Scan, error) {
	var s Scan
	var bucket sql.NullString
	var keys []byte
	var provider sql.NullString
	var model sql.NullString
	var result []byte
	var errorCode sql.NullString
	var errorMessage sql.NullString
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	var updatedAt sql.NullTime
	if err := row.Scan(
		&s.ID,
		&s.Status,
		&bucket,
		&keys,
		&provider,
		&model,
		&result,
		&errorCode,
		&errorMessage,
		&startedAt,
		&completedAt,
		&s.CreatedAt,
		&updatedAt,
	); err != nil {
		return Scan{}, err
	}
	s.Bucket = bucket.String
	s.Provider = provider.String
	s.Model = model.String
	if len(keys) > 0 {
		if err := json.Unmarshal(keys, &s.FileKeys); err != nil {
			return Scan{}, fmt.Errorf("unmarshal file keys: %w", err)
		}
	}
	if len(result) > 0 {
		var consolidated ConsolidatedResult
		if err := json.Unmarshal(result, &consolidated); err != nil {
			return Scan{}, fmt.Errorf("unmarshal result: %w", err)
		}
		s.Result = &consolidated
	}
	if errorCode.Valid {
		s.ErrorCode = &errorCode.String
	}
	if errorMessage.Valid {
		s.ErrorMessage = &errorMessage.String
	}
	if startedAt.Valid {
		s.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	if updatedAt.Valid {
		s.UpdatedAt = &updatedAt.Time
	}
	return s, nil
}
