package scans

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"docquality-backend/internal/llm"
	"docquality-backend/internal/scoring"
	"docquality-backend/internal/shared/storage/object"
	"docquality-backend/internal/shared/storage/object/local"
)

type staticLLM struct {
	responses map[string]string
	err       error
}

func (s staticLLM) AnalyzeDocument(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
	_ = ctx
	if s.err != nil {
		return nil, s.err
	}
	resp, ok := s.responses[input.FileName]
	if !ok {
		return nil, fmt.Errorf("no canned response for %s", input.FileName)
	}
	return json.RawMessage(resp), nil
}

type staticEmbedder struct {
	vec []float64
}

func (s staticEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	_ = ctx
	_ = text
	return s.vec, nil
}

func invoicePayload(summary string) string {
	return `{
		"document_type": "invoice",
		"summary": "` + summary + `",
		"context": "",
		"metadata": {"topics": ["billing", "q3"], "key_terms": ["invoice"]},
		"dimensions": {
			"completeness": {"score": 90, "evidence": "all fields present"},
			"accuracy": {"score": 85, "evidence": "figures add up"}
		}
	}`
}

func setupService(t *testing.T, llmClient llm.Client, keys []string) (*Service, *MemoryRepo, object.ObjectStore) {
	t.Helper()
	store := local.New(t.TempDir())
	for _, key := range keys {
		if _, err := store.SaveWithKey(context.Background(), key, "text/plain", bytes.NewReader([]byte("invoice for q3 billing"))); err != nil {
			t.Fatalf("save %s: %v", key, err)
		}
	}
	repo := NewMemoryRepo()
	svc := &Service{
		Repo:               repo,
		Store:              store,
		LLM:                llmClient,
		Embedder:           staticEmbedder{vec: []float64{1, 0, 0}},
		Scorer:             scoring.New(scoring.Options{}),
		Provider:           "openai",
		Model:              "gpt-4o-mini",
		GateThreshold:      0.7,
		DuplicateThreshold: 0.95,
	}
	return svc, repo, store
}

func queueScan(t *testing.T, repo *MemoryRepo, keys []string) Scan {
	t.Helper()
	scan := Scan{
		ID:        "scan-1",
		Status:    StatusQueued,
		FileKeys:  keys,
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), scan); err != nil {
		t.Fatalf("create scan: %v", err)
	}
	return scan
}

func TestCompleteAsyncHappyPath(t *testing.T) {
	keys := []string{"docs/a.txt", "docs/b.txt"}
	llmClient := staticLLM{responses: map[string]string{
		"a.txt": invoicePayload("Quarterly invoice"),
		"b.txt": invoicePayload("Quarterly invoice copy"),
	}}
	svc, repo, store := setupService(t, llmClient, keys)
	scan := queueScan(t, repo, keys)

	svc.completeAsync(context.Background(), scan.ID)

	got, err := repo.GetByID(context.Background(), scan.ID)
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected status %s, got %s (error=%v)", StatusCompleted, got.Status, got.ErrorMessage)
	}
	if got.Result == nil {
		t.Fatal("expected consolidated result")
	}
	if len(got.Result.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(got.Result.Files))
	}
	for _, file := range got.Result.Files {
		if file.Status != DocStatusAnalyzed {
			t.Errorf("file %s: expected analyzed, got %s (%s)", file.FileKey, file.Status, file.Error)
		}
		if file.Quality == nil {
			t.Fatalf("file %s: missing quality result", file.FileKey)
		}
		if len(file.Quality.Dimensions) != len(scoring.DimensionNames) {
			t.Errorf("file %s: expected %d dimensions, got %d", file.FileKey, len(scoring.DimensionNames), len(file.Quality.Dimensions))
		}
	}
	// Identical embedder vectors drive cosine to 1.0: one pair, flagged duplicate.
	if len(got.Result.SimilarityPairs) != 1 || len(got.Result.DuplicatePairs) != 1 {
		t.Fatalf("expected 1 pair and 1 duplicate, got %d and %d", len(got.Result.SimilarityPairs), len(got.Result.DuplicatePairs))
	}
	if got.Result.SimilarityPairs[0].Similarity < 0.99 {
		t.Errorf("expected near-identical similarity, got %v", got.Result.SimilarityPairs[0].Similarity)
	}

	// Run object and per-file results are persisted alongside the repo copy.
	if _, err := store.Stat(context.Background(), "scans/scan-1.json"); err != nil {
		t.Errorf("run result not persisted: %v", err)
	}
	if _, err := store.Stat(context.Background(), "docs/a.txt.quality.json"); err != nil {
		t.Errorf("per-file result not persisted: %v", err)
	}
}

func TestCompleteAsyncDocumentErrorDoesNotAbortBatch(t *testing.T) {
	keys := []string{"docs/a.txt"}
	llmClient := staticLLM{responses: map[string]string{
		"a.txt": invoicePayload("Quarterly invoice"),
	}}
	svc, repo, _ := setupService(t, llmClient, keys)
	scan := queueScan(t, repo, []string{"docs/a.txt", "docs/missing.txt"})

	svc.completeAsync(context.Background(), scan.ID)

	got, err := repo.GetByID(context.Background(), scan.ID)
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed run despite per-document failure, got %s", got.Status)
	}
	byKey := make(map[string]FileResult)
	for _, f := range got.Result.Files {
		byKey[f.FileKey] = f
	}
	if f := byKey["docs/a.txt"]; f.Status != DocStatusAnalyzed {
		t.Errorf("expected analyzed, got %s (%s)", f.Status, f.Error)
	}
	f := byKey["docs/missing.txt"]
	if f.Status != DocStatusError {
		t.Fatalf("expected error status, got %s", f.Status)
	}
	if f.ErrorCode != ErrorCodeStorage {
		t.Errorf("expected %s, got %s", ErrorCodeStorage, f.ErrorCode)
	}
	for _, p := range got.Result.SimilarityPairs {
		if p.Touches("docs/missing.txt") {
			t.Error("errored document must never appear as a pair endpoint")
		}
	}
}

func TestCompleteAsyncAllDocumentsFailedStillPersists(t *testing.T) {
	keys := []string{"docs/a.txt", "docs/b.txt"}
	svc, repo, _ := setupService(t, staticLLM{err: errors.New("model exploded")}, keys)
	scan := queueScan(t, repo, keys)

	svc.completeAsync(context.Background(), scan.ID)

	got, err := repo.GetByID(context.Background(), scan.ID)
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed run even with every document failed, got %s", got.Status)
	}
	if len(got.Result.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(got.Result.Files))
	}
	for _, f := range got.Result.Files {
		if f.Status != DocStatusError {
			t.Errorf("file %s: expected error, got %s", f.FileKey, f.Status)
		}
	}
	if len(got.Result.SimilarityPairs) != 0 || len(got.Result.DuplicatePairs) != 0 {
		t.Error("expected empty pair lists when no document was analyzed")
	}
}

func TestCompleteAsyncSchemaMismatch(t *testing.T) {
	keys := []string{"docs/a.txt"}
	svc, repo, _ := setupService(t, staticLLM{responses: map[string]string{"a.txt": "{not-json"}}, keys)
	scan := queueScan(t, repo, keys)

	svc.completeAsync(context.Background(), scan.ID)

	got, err := repo.GetByID(context.Background(), scan.ID)
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	f := got.Result.Files[0]
	if f.Status != DocStatusError {
		t.Fatalf("expected error status, got %s", f.Status)
	}
	if f.ErrorCode != ErrorCodeLLMSchema {
		t.Errorf("expected %s, got %s", ErrorCodeLLMSchema, f.ErrorCode)
	}
}

// repairingLLM emits a payload without document_type until asked to fix its
// own output, mimicking a provider that drops required fields on a first pass.
type repairingLLM struct {
	calls *int
}

func (r repairingLLM) AnalyzeDocument(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
	*r.calls++
	_ = input
	if _, fixing := llm.FixJSONFromContext(ctx); fixing {
		return json.RawMessage(invoicePayload("Repaired invoice")), nil
	}
	return json.RawMessage(`{"summary": "no type field here"}`), nil
}

func TestCompleteAsyncRepairsSchemaMismatch(t *testing.T) {
	keys := []string{"docs/a.txt"}
	calls := 0
	svc, repo, _ := setupService(t, repairingLLM{calls: &calls}, keys)
	scan := queueScan(t, repo, keys)

	svc.completeAsync(context.Background(), scan.ID)

	got, err := repo.GetByID(context.Background(), scan.ID)
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	f := got.Result.Files[0]
	if f.Status != DocStatusAnalyzed {
		t.Fatalf("expected the repair round-trip to rescue the document, got %s (%s)", f.Status, f.Error)
	}
	if f.Summary != "Repaired invoice" {
		t.Errorf("expected repaired payload, got summary %q", f.Summary)
	}
	if calls != 2 {
		t.Errorf("expected exactly one analysis call and one repair call, got %d", calls)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := setupService(t, staticLLM{}, nil)

	if _, err := svc.Create(context.Background(), "", nil, ""); err == nil {
		t.Error("expected error for empty file keys")
	}
	if _, err := svc.Create(context.Background(), "", []string{"../etc/passwd"}, ""); err == nil {
		t.Error("expected error for traversal in file key")
	}
}

func TestRescoreSupersedesResult(t *testing.T) {
	keys := []string{"docs/a.txt", "docs/b.txt"}
	llmClient := staticLLM{responses: map[string]string{
		"a.txt": invoicePayload("Quarterly invoice"),
		"b.txt": invoicePayload("Quarterly invoice copy"),
	}}
	svc, repo, _ := setupService(t, llmClient, keys)
	scan := queueScan(t, repo, keys)
	svc.completeAsync(context.Background(), scan.ID)

	before, err := repo.GetByID(context.Background(), scan.ID)
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	prevGenerated := before.Result.GeneratedAt

	file, err := svc.Rescore(context.Background(), scan.ID, "docs/a.txt", "completeness", 10, "manually reviewed")
	if err != nil {
		t.Fatalf("rescore: %v", err)
	}
	var completeness *scoring.DimensionScore
	for i := range file.Quality.Dimensions {
		if file.Quality.Dimensions[i].Name == "completeness" {
			completeness = &file.Quality.Dimensions[i]
		}
	}
	if completeness == nil || completeness.Score != 10 || completeness.Evidence != "manually reviewed" {
		t.Fatalf("expected overridden completeness, got %+v", completeness)
	}
	if len(file.ScoreHistory) != 1 || file.ScoreHistory[0].Dimension != "completeness" {
		t.Fatalf("expected the override in the file's score history, got %+v", file.ScoreHistory)
	}

	// A second override appends; the full log rides along on the file entry.
	file, err = svc.Rescore(context.Background(), scan.ID, "docs/a.txt", "completeness", 40, "second look")
	if err != nil {
		t.Fatalf("second rescore: %v", err)
	}
	if len(file.ScoreHistory) != 2 || file.ScoreHistory[1].Score != 40 {
		t.Fatalf("expected 2 history entries on the file, got %+v", file.ScoreHistory)
	}

	after, err := repo.GetByID(context.Background(), scan.ID)
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	if after.Result.GeneratedAt.Before(prevGenerated) {
		t.Error("expected a newly generated result object")
	}
	// Pair lists carry over untouched.
	if len(after.Result.SimilarityPairs) != len(before.Result.SimilarityPairs) {
		t.Error("rescore must not alter similarity pairs")
	}
	// The persisted result carries the history too, not just the response.
	for _, f := range after.Result.Files {
		if f.FileKey == "docs/a.txt" && len(f.ScoreHistory) != 2 {
			t.Errorf("expected 2 history entries on the stored file, got %+v", f.ScoreHistory)
		}
	}

	history, err := svc.ScoreHistory(context.Background(), scan.ID, "docs/a.txt")
	if err != nil {
		t.Fatalf("score history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].Dimension != "completeness" || history[0].Score != 10 {
		t.Errorf("unexpected history entry: %+v", history[0])
	}
}

func TestRescoreValidation(t *testing.T) {
	keys := []string{"docs/a.txt"}
	llmClient := staticLLM{responses: map[string]string{"a.txt": invoicePayload("Quarterly invoice")}}
	svc, repo, _ := setupService(t, llmClient, keys)
	scan := queueScan(t, repo, keys)
	svc.completeAsync(context.Background(), scan.ID)

	if _, err := svc.Rescore(context.Background(), scan.ID, "docs/a.txt", "vibes", 10, ""); err == nil {
		t.Error("expected error for unknown dimension")
	}
	if _, err := svc.Rescore(context.Background(), scan.ID, "docs/a.txt", "accuracy", 200, ""); err == nil {
		t.Error("expected error for out-of-range score")
	}
	if _, err := svc.Rescore(context.Background(), scan.ID, "docs/nope.txt", "accuracy", 50, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
