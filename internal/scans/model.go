package scans

import (
	"time"

	"docquality-backend/internal/scoring"
)

// Scan statuses.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Per-document statuses inside a consolidated result.
const (
	DocStatusAnalyzed = "analyzed"
	DocStatusError    = "error"
)

// Scan represents one batch scoring run over a set of object keys.
type Scan struct {
	ID           string              `json:"id"`
	Status       string              `json:"status"`
	Bucket       string              `json:"bucket,omitempty"`
	FileKeys     []string            `json:"fileKeys"`
	Provider     string              `json:"provider"`
	Model        string              `json:"model"`
	Result       *ConsolidatedResult `json:"result,omitempty"`
	ErrorCode    *string             `json:"errorCode,omitempty"`
	ErrorMessage *string             `json:"errorMessage,omitempty"`
	StartedAt    *time.Time          `json:"startedAt,omitempty"`
	CompletedAt  *time.Time          `json:"completedAt,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    *time.Time          `json:"updatedAt,omitempty"`
}

// DocumentAnalysis is the working record for one document inside a run. It is
// built once during the fan-out phase and read-only afterwards.
type DocumentAnalysis struct {
	FileKey          string
	FileName         string
	Status           string
	ErrorCode        string
	ErrorMessage     string
	DocumentType     string
	Summary          string
	Context          string
	Metadata         map[string][]string
	FullEmbedding    []float64
	SummaryEmbedding []float64
	Tokens           []string
	Signals          map[string]scoring.Signal
	UploadedAt       time.Time
	AnalyzedAt       time.Time
}

// PairView is one similarity pair as rendered in a consolidated result.
type PairView struct {
	File1              string  `json:"file_1"`
	File2              string  `json:"file_2"`
	MetadataSimilarity float64 `json:"metadata_similarity"`
	Similarity         float64 `json:"similarity"`
	Tier               string  `json:"tier"`
}

// Touches reports whether the pair has fileKey as either endpoint.
func (p PairView) Touches(fileKey string) bool {
	return p.File1 == fileKey || p.File2 == fileKey
}

// FileResult is the per-document slice of a consolidated result. The same
// shape is persisted standalone for individual retrieval.
type FileResult struct {
	FileKey             string              `json:"file_key"`
	FileName            string              `json:"file_name,omitempty"`
	Status              string              `json:"status"`
	ErrorCode           string              `json:"error_code,omitempty"`
	Error               string              `json:"error,omitempty"`
	DocumentType        string              `json:"document_type,omitempty"`
	Summary             string              `json:"summary,omitempty"`
	Context             string              `json:"context,omitempty"`
	Metadata            map[string][]string `json:"metadata,omitempty"`
	UploadTimestamp     *time.Time          `json:"upload_timestamp,omitempty"`
	AnalysisTimestamp   *time.Time          `json:"analysis_timestamp,omitempty"`
	Quality             *scoring.Result     `json:"quality,omitempty"`
	ScoreHistory        []ScoreEntry        `json:"score_history,omitempty"`
	PotentialDuplicates []PairView          `json:"potential_duplicates"`
	SimilarityPairs     []PairView          `json:"similarity_pairs"`
}

// ConsolidatedResult is the immutable output of one run. Later runs and
// rescore operations produce a new object rather than patching an old one.
type ConsolidatedResult struct {
	ScanID          string       `json:"scan_id"`
	GeneratedAt     time.Time    `json:"generated_at"`
	Files           []FileResult `json:"files"`
	DuplicatePairs  []PairView   `json:"duplicate_pairs"`
	SimilarityPairs []PairView   `json:"similarity_pairs"`
}

// ScoreEntry is one row of the append-only score history for a document
// dimension. Rescoring adds entries; nothing is ever rewritten.
type ScoreEntry struct {
	ID         int64     `json:"id"`
	ScanID     string    `json:"scanId"`
	FileKey    string    `json:"fileKey"`
	Dimension  string    `json:"dimension"`
	Score      int       `json:"score"`
	Evidence   string    `json:"evidence"`
	RecordedAt time.Time `json:"recordedAt"`
}
