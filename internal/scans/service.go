package scans

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docquality-backend/internal/extract"
	"docquality-backend/internal/llm"
	"docquality-backend/internal/scoring"
	"docquality-backend/internal/shared/metrics"
	"docquality-backend/internal/shared/storage/object"
	"docquality-backend/internal/shared/telemetry"
	"docquality-backend/internal/shared/util"
	"docquality-backend/internal/similarity"
)

const embeddingMaxChars = 8000

// Service contains business logic for scans: the per-document analysis
// fan-out, the similarity pass over the analyzed set, and consolidation.
type Service struct {
	Repo     Repo
	Store    object.ObjectStore
	LLM      llm.Client
	Embedder llm.Embedder
	Scorer   *scoring.Scorer
	Provider string
	Model    string
	Bucket   string

	Concurrency        int
	Retries            int
	RetryBaseDelay     time.Duration
	GateThreshold      float64
	DuplicateThreshold float64
}

// Create enqueues a new scan over fileKeys and kicks off asynchronous
// completion. Bucket and model override the configured defaults when set;
// the bucket is recorded on the scan for provenance.
func (s *Service) Create(ctx context.Context, bucket string, fileKeys []string, model string) (Scan, error) {
	if len(fileKeys) == 0 {
		return Scan{}, errors.New("at least one file key is required")
	}
	seen := make(map[string]struct{}, len(fileKeys))
	keys := make([]string, 0, len(fileKeys))
	for _, key := range fileKeys {
		clean, err := util.CleanObjectKey(key)
		if err != nil {
			return Scan{}, fmt.Errorf("file key %q: %w", key, err)
		}
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}
		keys = append(keys, clean)
	}
	if model == "" {
		model = s.Model
	}
	if bucket == "" {
		bucket = s.Bucket
	}

	scan := Scan{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Bucket:    bucket,
		FileKeys:  keys,
		Provider:  s.Provider,
		Model:     model,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, scan); err != nil {
		return Scan{}, err
	}

	go s.completeAsync(backgroundWithRequestID(ctx), scan.ID)

	return scan, nil
}

// Get returns a scan by ID.
func (s *Service) Get(ctx context.Context, scanID string) (Scan, error) {
	if scanID == "" {
		return Scan{}, errors.New("scanID is required")
	}
	return s.Repo.GetByID(ctx, scanID)
}

// List returns past scans, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Scan, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Repo.List(ctx, limit, offset)
}

// FileResult returns one file's entry from a completed scan's result.
func (s *Service) FileResult(ctx context.Context, scanID, fileKey string) (FileResult, error) {
	scan, err := s.Repo.GetByID(ctx, scanID)
	if err != nil {
		return FileResult{}, err
	}
	if scan.Result == nil {
		return FileResult{}, ErrNotFound
	}
	for _, file := range scan.Result.Files {
		if file.FileKey == fileKey {
			return file, nil
		}
	}
	return FileResult{}, ErrNotFound
}

func (s *Service) completeAsync(ctx context.Context, scanID string) {
	defer func() {
		if r := recover(); r != nil {
			s.failScan(ctx, scanID, fmt.Errorf("panic: %v", r), nil)
		}
	}()
	startedAt := time.Now().UTC()
	if err := s.Repo.SetProcessing(ctx, scanID, startedAt); err != nil {
		s.failScan(ctx, scanID, fmt.Errorf("set processing failed: %w", err), &startedAt)
		return
	}

	scan, err := s.Repo.GetByID(ctx, scanID)
	if err != nil {
		s.failScan(ctx, scanID, fmt.Errorf("scan lookup: %w", err), &startedAt)
		return
	}
	metrics.IncScanStarted()
	telemetry.Info("scan.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"scan_id":           scan.ID,
		"status":            StatusProcessing,
		"status_transition": "queued->processing",
		"file_count":        len(scan.FileKeys),
	})
	if s.Store == nil {
		s.failScan(ctx, scanID, errors.New("missing object store dependency"), &startedAt)
		return
	}
	if s.LLM == nil {
		s.failScan(ctx, scanID, errors.New("missing llm client"), &startedAt)
		return
	}
	if s.Scorer == nil {
		s.failScan(ctx, scanID, errors.New("missing scorer"), &startedAt)
		return
	}
	requestID := requestIDFromContext(ctx)
	client := newRetryingLLM(s.LLM, scanID, requestID, s.Retries, s.RetryBaseDelay)

	// Fan out per-document work under a bounded concurrency limit. Each
	// worker writes only its own slot, so no lock is needed.
	concurrency := s.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	docs := make([]DocumentAnalysis, len(scan.FileKeys))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, key := range scan.FileKeys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			docs[i] = s.processDocument(ctx, client, scan.Model, key)
		}(i, key)
	}
	// The similarity pass needs the complete analyzed set, so nothing below
	// runs until every document has finished or failed.
	wg.Wait()

	qualities := make(map[string]scoring.Result, len(docs))
	simDocs := make([]similarity.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.Status != DocStatusAnalyzed {
			continue
		}
		qualities[doc.FileKey] = s.Scorer.Score(doc.Signals, doc.UploadedAt)
		simDocs = append(simDocs, similarity.Document{
			FileKey:          doc.FileKey,
			DocumentType:     doc.DocumentType,
			Topics:           doc.Metadata[metadataTopics],
			KeyTerms:         doc.Metadata[metadataKeyTerms],
			FullEmbedding:    doc.FullEmbedding,
			SummaryEmbedding: doc.SummaryEmbedding,
			Tokens:           doc.Tokens,
		})
	}

	pairs := similarity.NewEngine(s.GateThreshold).Pairs(simDocs)
	metrics.AddPairsCompared(len(pairs))

	result := Consolidate(scan.ID, docs, qualities, pairs, s.duplicateThreshold(), time.Now().UTC())
	s.persistResult(ctx, result)

	completedAt := time.Now().UTC()
	if err := s.Repo.Complete(ctx, scanID, &result, completedAt); err != nil {
		s.failScan(ctx, scanID, fmt.Errorf("set scan result failed: %w", err), &startedAt)
		return
	}
	metrics.IncScanCompleted()
	metrics.ObserveScanDurationMs(durationMs(&startedAt, &completedAt))
	telemetry.Info("scan.status", map[string]any{
		"request_id":        requestID,
		"scan_id":           scan.ID,
		"status":            StatusCompleted,
		"status_transition": "processing->completed",
		"duration_ms":       durationMs(&startedAt, &completedAt),
		"file_count":        len(result.Files),
		"pair_count":        len(result.SimilarityPairs),
		"duplicate_count":   len(result.DuplicatePairs),
	})
}

// processDocument runs extraction, analysis, and embedding for one file key.
// Failures are absorbed into an error-status record; they never abort the
// batch. Error records carry no embeddings or tokens.
func (s *Service) processDocument(ctx context.Context, client llm.Client, model, key string) DocumentAnalysis {
	doc := DocumentAnalysis{
		FileKey:  key,
		FileName: path.Base(key),
		Status:   DocStatusAnalyzed,
	}

	text, err := extract.Text(ctx, s.Store, key)
	if err != nil {
		return s.failDocument(ctx, doc, fmt.Errorf("extract %s: %w", key, err))
	}

	if info, err := s.Store.Stat(ctx, key); err == nil {
		doc.UploadedAt = info.LastModified
	} else {
		telemetry.Warn("scan.stat_failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"file_key":   key,
			"error":      sanitizeError(err),
		})
	}

	raw, err := client.AnalyzeDocument(ctx, llm.AnalyzeInput{
		FileName:   doc.FileName,
		Content:    text,
		Model:      model,
		Dimensions: scoring.DimensionNames,
	})
	if err != nil {
		return s.failDocument(ctx, doc, fmt.Errorf("llm analyze: %w", err))
	}

	payload, err := parseAnalysisPayload(raw)
	if err != nil {
		// One repair round-trip: hand the malformed output back to the
		// provider with a fix-JSON prompt before failing the document.
		repaired, repairErr := client.AnalyzeDocument(llm.WithFixJSON(ctx, string(raw)), llm.AnalyzeInput{
			FileName:   doc.FileName,
			Content:    text,
			Model:      model,
			Dimensions: scoring.DimensionNames,
		})
		if repairErr == nil {
			payload, err = parseAnalysisPayload(repaired)
		}
		if err != nil {
			return s.failDocument(ctx, doc, err)
		}
	}

	doc.DocumentType = payload.DocumentType
	doc.Summary = payload.Summary
	doc.Context = payload.Context
	doc.Metadata = payload.Metadata
	doc.Signals = payload.Dimensions
	doc.FullEmbedding = payload.FullEmbedding
	doc.SummaryEmbedding = payload.SummaryEmbedding
	s.resolveEmbeddings(ctx, &doc, text)
	doc.Tokens = strings.Fields(text)
	doc.AnalyzedAt = time.Now().UTC()

	metrics.IncDocumentAnalyzed()
	return doc
}

// resolveEmbeddings fills in vectors the analysis call did not provide.
// Embedding failures are tolerated; the pair engine falls back to
// bag-of-words vectors built from the document tokens.
func (s *Service) resolveEmbeddings(ctx context.Context, doc *DocumentAnalysis, text string) {
	if s.Embedder == nil {
		return
	}
	if len(doc.FullEmbedding) == 0 && text != "" {
		if vec, err := s.Embedder.Embed(ctx, truncate(text, embeddingMaxChars)); err == nil {
			doc.FullEmbedding = vec
		} else {
			telemetry.Warn("scan.embed_failed", map[string]any{
				"request_id": requestIDFromContext(ctx),
				"file_key":   doc.FileKey,
				"kind":       "full",
				"error":      sanitizeError(err),
			})
		}
	}
	if len(doc.SummaryEmbedding) == 0 && doc.Summary != "" {
		if vec, err := s.Embedder.Embed(ctx, truncate(doc.Summary, embeddingMaxChars)); err == nil {
			doc.SummaryEmbedding = vec
		} else {
			telemetry.Warn("scan.embed_failed", map[string]any{
				"request_id": requestIDFromContext(ctx),
				"file_key":   doc.FileKey,
				"kind":       "summary",
				"error":      sanitizeError(err),
			})
		}
	}
}

func (s *Service) failDocument(ctx context.Context, doc DocumentAnalysis, err error) DocumentAnalysis {
	code := classifyDocumentFailure(err)
	metrics.IncDocumentFailed()
	telemetry.Warn("scan.document_failed", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"file_key":   doc.FileKey,
		"error_code": code,
		"error":      sanitizeError(err),
	})
	return DocumentAnalysis{
		FileKey:      doc.FileKey,
		FileName:     doc.FileName,
		Status:       DocStatusError,
		ErrorCode:    code,
		ErrorMessage: sanitizeError(err),
	}
}

// persistResult writes the run object and the per-file result objects to the
// object store. Store failures are logged but do not fail the run; the
// repository copy is authoritative.
func (s *Service) persistResult(ctx context.Context, result ConsolidatedResult) {
	s.saveJSON(ctx, resultKey(result.ScanID), result)
	for _, file := range result.Files {
		s.saveJSON(ctx, file.FileKey+".quality.json", file)
	}
}

func (s *Service) saveJSON(ctx context.Context, key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		telemetry.Warn("scan.persist_failed", map[string]any{"key": key, "error": sanitizeError(err)})
		return
	}
	if _, err := s.Store.SaveWithKey(ctx, key, "application/json", bytes.NewReader(payload)); err != nil {
		telemetry.Warn("scan.persist_failed", map[string]any{"key": key, "error": sanitizeError(err)})
	}
}

func resultKey(scanID string) string {
	return "scans/" + scanID + ".json"
}

func (s *Service) duplicateThreshold() float64 {
	if s.DuplicateThreshold > 0 {
		return s.DuplicateThreshold
	}
	return similarity.DuplicateThreshold
}

func (s *Service) failScan(ctx context.Context, scanID string, err error, startedAt *time.Time) {
	code := classifyScanFailure(err)
	msg := sanitizeError(err)
	completedAt := time.Now().UTC()
	if updateErr := s.Repo.Fail(context.Background(), scanID, code, msg, completedAt); updateErr != nil {
		fmt.Printf("failScan: update failed id=%s err=%v orig=%v\n", scanID, updateErr, err)
	}
	metrics.IncScanFailed()
	if startedAt != nil {
		metrics.ObserveScanDurationMs(durationMs(startedAt, &completedAt))
	}
	telemetry.Error("scan.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"scan_id":           scanID,
		"status":            StatusFailed,
		"status_transition": "processing->failed",
		"error_code":        code,
		"error":             msg,
		"duration_ms":       durationMs(startedAt, &completedAt),
	})
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

func classifyDocumentFailure(err error) string {
	if err == nil {
		return ErrorCodeInternal
	}
	if errors.Is(err, llm.ErrThrottled) {
		return ErrorCodeLLMThrottled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeLLMTimeout
	}
	if errors.Is(err, extract.ErrUnsupported) {
		return ErrorCodeContent
	}
	if errors.Is(err, object.ErrNotFound) {
		return ErrorCodeStorage
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "llm") || strings.Contains(msg, "openai")) {
		return ErrorCodeLLMTimeout
	}
	if strings.Contains(msg, "llm output") {
		return ErrorCodeLLMSchema
	}
	if strings.Contains(msg, "extract") || strings.Contains(msg, "decode") {
		return ErrorCodeContent
	}
	if strings.Contains(msg, "storage") || strings.Contains(msg, "open") || strings.Contains(msg, "read") {
		return ErrorCodeStorage
	}
	return ErrorCodeInternal
}

func classifyScanFailure(err error) string {
	if err == nil {
		return ErrorCodeInternal
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "set processing") || strings.Contains(msg, "scan lookup") || strings.Contains(msg, "scan result") {
		return ErrorCodeStorage
	}
	return ErrorCodeInternal
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
