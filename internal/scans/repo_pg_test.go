package scans

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	scan := Scan{
		ID:        "scan-1",
		Status:    StatusQueued,
		Bucket:    "docs",
		FileKeys:  []string{"a.txt", "b.txt"},
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO scans").
		WithArgs(
			scan.ID,
			scan.Status,
			scan.Bucket,
			sqlmock.AnyArg(), // file_keys JSON
			scan.Provider,
			scan.Model,
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), scan); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	createdAt := time.Now().UTC()
	completedAt := createdAt.Add(30 * time.Second)
	result := ConsolidatedResult{
		ScanID:          "scan-1",
		GeneratedAt:     completedAt,
		Files:           []FileResult{{FileKey: "a.txt", Status: DocStatusAnalyzed, PotentialDuplicates: []PairView{}, SimilarityPairs: []PairView{}}},
		DuplicatePairs:  []PairView{},
		SimilarityPairs: []PairView{},
	}
	payload, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}

	rows := sqlmock.NewRows([]string{
		"id", "status", "bucket", "file_keys", "provider", "model", "result",
		"error_code", "error_message", "started_at", "completed_at", "created_at", "updated_at",
	}).AddRow(
		"scan-1", StatusCompleted, "docs", []byte(`["a.txt"]`), "openai", "gpt-4o-mini", payload,
		nil, nil, createdAt, completedAt, createdAt, completedAt,
	)
	mock.ExpectQuery("SELECT id, status, bucket, file_keys").
		WithArgs("scan-1").
		WillReturnRows(rows)

	scan, err := repo.GetByID(context.Background(), "scan-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if scan.Status != StatusCompleted {
		t.Errorf("expected %s, got %s", StatusCompleted, scan.Status)
	}
	if len(scan.FileKeys) != 1 || scan.FileKeys[0] != "a.txt" {
		t.Errorf("unexpected file keys: %v", scan.FileKeys)
	}
	if scan.Result == nil || len(scan.Result.Files) != 1 {
		t.Fatalf("expected decoded result, got %+v", scan.Result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT id, status, bucket, file_keys").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.GetByID(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoCompleteMissingScan(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE scans").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Complete(context.Background(), "nope", &ConsolidatedResult{}, time.Now().UTC())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoAppendScore(t *testing.T) {
	repo, mock := newMockRepo(t)
	entry := ScoreEntry{
		ScanID:     "scan-1",
		FileKey:    "a.txt",
		Dimension:  "accuracy",
		Score:      42,
		Evidence:   "manually reviewed",
		RecordedAt: time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO score_history").
		WithArgs(entry.ScanID, entry.FileKey, entry.Dimension, entry.Score, entry.Evidence, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.AppendScore(context.Background(), entry); err != nil {
		t.Fatalf("AppendScore: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
