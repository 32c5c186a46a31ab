package scans

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"docquality-backend/internal/llm"
	"docquality-backend/internal/scoring"
	"docquality-backend/internal/shared/storage/object"
	"docquality-backend/internal/shared/storage/object/local"
)

type staticModels struct{}

func (staticModels) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	_ = ctx
	return []llm.ModelInfo{{ID: "gpt-4o-mini", Provider: "openai"}}, nil
}

func setupScanRouter(t *testing.T) (*gin.Engine, *MemoryRepo, object.ObjectStore, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := local.New(t.TempDir())
	repo := NewMemoryRepo()
	svc := &Service{
		Repo:  repo,
		Store: store,
		LLM: staticLLM{responses: map[string]string{
			"a.txt": invoicePayload("Quarterly invoice"),
		}},
		Embedder:           staticEmbedder{vec: []float64{1, 0, 0}},
		Scorer:             scoring.New(scoring.Options{}),
		Provider:           "openai",
		Model:              "gpt-4o-mini",
		GateThreshold:      0.7,
		DuplicateThreshold: 0.95,
	}
	handler := NewHandler(svc, store, staticModels{})

	router := gin.New()
	handler.RegisterRoutes(router.Group("/api/v1"))
	return router, repo, store, svc
}

func seedCompletedScan(t *testing.T, repo *MemoryRepo, svc *Service) Scan {
	t.Helper()
	scan := queueScan(t, repo, []string{"docs/a.txt"})
	qualities := map[string]scoring.Result{
		"docs/a.txt": svc.Scorer.Score(map[string]scoring.Signal{
			"completeness": {Score: 95, Evidence: "all fields present"},
		}, time.Now().UTC()),
	}
	docs := []DocumentAnalysis{{
		FileKey:      "docs/a.txt",
		FileName:     "a.txt",
		Status:       DocStatusAnalyzed,
		DocumentType: "invoice",
		AnalyzedAt:   time.Now().UTC(),
	}}
	result := Consolidate(scan.ID, docs, qualities, nil, 0.95, time.Now().UTC())
	if err := repo.Complete(context.Background(), scan.ID, &result, time.Now().UTC()); err != nil {
		t.Fatalf("complete scan: %v", err)
	}
	return scan
}

func TestStartScanAccepted(t *testing.T) {
	router, repo, store, _ := setupScanRouter(t)
	if _, err := store.SaveWithKey(context.Background(), "docs/a.txt", "text/plain", bytes.NewReader([]byte("invoice text"))); err != nil {
		t.Fatalf("save object: %v", err)
	}

	body, _ := json.Marshal(map[string]any{"bucket": "primary-docs", "keys": []string{"docs/a.txt"}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		ScanID string `json:"scanId"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ScanID == "" || created.Status != StatusQueued {
		t.Fatalf("unexpected response: %+v", created)
	}
	stored, err := repo.GetByID(context.Background(), created.ScanID)
	if err != nil {
		t.Fatalf("scan not stored: %v", err)
	}
	if stored.Bucket != "primary-docs" {
		t.Errorf("expected request bucket recorded, got %q", stored.Bucket)
	}
}

func TestStartScanValidation(t *testing.T) {
	router, _, _, _ := setupScanRouter(t)

	body, _ := json.Marshal(map[string]any{"keys": []string{}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetScanNotFound(t *testing.T) {
	router, _, _, _ := setupScanRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans/nope", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestGetScanIncludesResultWhenCompleted(t *testing.T) {
	router, repo, _, svc := setupScanRouter(t)
	scan := seedCompletedScan(t, repo, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans/"+scan.ID, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var got struct {
		Status string              `json:"status"`
		Result *ConsolidatedResult `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.Result == nil || len(got.Result.Files) != 1 {
		t.Fatalf("expected result with one file, got %+v", got.Result)
	}
}

func TestGetFileResult(t *testing.T) {
	router, repo, _, svc := setupScanRouter(t)
	scan := seedCompletedScan(t, repo, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans/"+scan.ID+"/files/docs/a.txt", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var file FileResult
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if file.FileKey != "docs/a.txt" || file.Quality == nil {
		t.Fatalf("unexpected file result: %+v", file)
	}
}

func TestRescoreEndpoint(t *testing.T) {
	router, repo, _, svc := setupScanRouter(t)
	scan := seedCompletedScan(t, repo, svc)

	body, _ := json.Marshal(map[string]any{
		"fileKey":   "docs/a.txt",
		"dimension": "completeness",
		"score":     10,
		"evidence":  "manually reviewed",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans/"+scan.ID+"/rescore", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var file FileResult
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	found := false
	for _, d := range file.Quality.Dimensions {
		if d.Name == "completeness" && d.Score == 10 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected overridden completeness score in response")
	}
}

func TestListFiles(t *testing.T) {
	router, _, store, _ := setupScanRouter(t)
	if _, err := store.SaveWithKey(context.Background(), "docs/a.txt", "text/plain", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("save object: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/files?prefix=docs", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var got struct {
		Files []struct {
			Key string `json:"key"`
		} `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Files) != 1 || got.Files[0].Key != "docs/a.txt" {
		t.Fatalf("unexpected listing: %+v", got.Files)
	}
}

func TestListModels(t *testing.T) {
	router, _, _, _ := setupScanRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var got struct {
		Models []llm.ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Models) != 1 || got.Models[0].ID != "gpt-4o-mini" {
		t.Fatalf("unexpected models: %+v", got.Models)
	}
}
