package scans

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"docquality-backend/internal/llm"
	"docquality-backend/internal/shared/server/respond"
	"docquality-backend/internal/shared/storage/object"
	"docquality-backend/internal/shared/util"
)

// Handler wires HTTP handlers to the scans service.
type Handler struct {
	Svc    *Service
	Store  object.ObjectStore
	Models llm.ModelLister
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, store object.ObjectStore, models llm.ModelLister) *Handler {
	return &Handler{Svc: svc, Store: store, Models: models}
}

// RegisterRoutes attaches scan routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/scans", h.startScan)
	rg.GET("/scans", h.listScans)
	rg.GET("/scans/:id", h.getScan)
	rg.GET("/scans/:id/files/*key", h.getFileResult)
	rg.GET("/scans/:id/scores/*key", h.getScoreHistory)
	rg.POST("/scans/:id/rescore", h.rescore)
	rg.GET("/files", h.listFiles)
	rg.GET("/models", h.listModels)
}

type startScanRequest struct {
	Bucket string   `json:"bucket"`
	Keys   []string `json:"keys"`
	Model  string   `json:"model"`
}

func (h *Handler) startScan(c *gin.Context) {
	var req startScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if len(req.Keys) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "keys is required", nil)
		return
	}

	scan, err := h.Svc.Create(c.Request.Context(), req.Bucket, req.Keys, req.Model)
	if err != nil {
		if strings.Contains(err.Error(), "file key") {
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start scan", nil)
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"scanId": scan.ID,
		"status": scan.Status,
	})
}

func (h *Handler) getScan(c *gin.Context) {
	scanID := c.Param("id")
	scan, err := h.Svc.Get(c.Request.Context(), scanID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "scan not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch scan", nil)
		}
		return
	}

	resp := gin.H{
		"id":        scan.ID,
		"status":    scan.Status,
		"fileKeys":  scan.FileKeys,
		"provider":  scan.Provider,
		"model":     scan.Model,
		"createdAt": scan.CreatedAt,
	}
	if scan.StartedAt != nil {
		resp["startedAt"] = scan.StartedAt
	}
	if scan.CompletedAt != nil {
		resp["completedAt"] = scan.CompletedAt
	}
	if scan.Status == StatusCompleted && scan.Result != nil {
		resp["result"] = scan.Result
	}
	if scan.Status == StatusFailed {
		if scan.ErrorCode != nil {
			resp["errorCode"] = *scan.ErrorCode
		}
		if scan.ErrorMessage != nil {
			resp["error"] = *scan.ErrorMessage
		}
	}

	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) listScans(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	scans, err := h.Svc.List(c.Request.Context(), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list scans", nil)
		return
	}

	items := make([]gin.H, 0, len(scans))
	for _, scan := range scans {
		item := gin.H{
			"id":        scan.ID,
			"status":    scan.Status,
			"fileKeys":  scan.FileKeys,
			"model":     scan.Model,
			"createdAt": scan.CreatedAt,
		}
		if scan.CompletedAt != nil {
			item["completedAt"] = scan.CompletedAt
		}
		if scan.Result != nil {
			item["fileCount"] = len(scan.Result.Files)
			item["duplicateCount"] = len(scan.Result.DuplicatePairs)
		}
		items = append(items, item)
	}

	respond.JSON(c, http.StatusOK, gin.H{"scans": items})
}

func (h *Handler) getFileResult(c *gin.Context) {
	scanID := c.Param("id")
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file key is required", nil)
		return
	}

	file, err := h.Svc.FileResult(c.Request.Context(), scanID, key)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "file result not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch file result", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, file)
}

func (h *Handler) getScoreHistory(c *gin.Context) {
	scanID := c.Param("id")
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file key is required", nil)
		return
	}

	entries, err := h.Svc.ScoreHistory(c.Request.Context(), scanID, key)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "scan not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch score history", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{"scores": entries})
}

type rescoreRequest struct {
	FileKey   string `json:"fileKey"`
	Dimension string `json:"dimension"`
	Score     *int   `json:"score"`
	Evidence  string `json:"evidence"`
}

func (h *Handler) rescore(c *gin.Context) {
	scanID := c.Param("id")
	var req rescoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if req.FileKey == "" || req.Dimension == "" || req.Score == nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "fileKey, dimension and score are required", nil)
		return
	}

	file, err := h.Svc.Rescore(c.Request.Context(), scanID, req.FileKey, req.Dimension, *req.Score, req.Evidence)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "scan or file not found", nil)
		case errors.Is(err, ErrNotReady):
			respond.Error(c, http.StatusConflict, "not_ready", "scan has no result yet", nil)
		case errors.Is(err, ErrNotRescorable):
			respond.Error(c, http.StatusConflict, "not_rescorable", "document has no quality result", nil)
		case strings.Contains(err.Error(), "dimension") || strings.Contains(err.Error(), "score"):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to rescore", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, file)
}

func (h *Handler) listFiles(c *gin.Context) {
	prefix := c.Query("prefix")
	if prefix != "" {
		clean, err := util.CleanObjectKey(prefix)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid prefix", nil)
			return
		}
		prefix = clean
	}

	infos, err := h.Store.List(c.Request.Context(), prefix)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list files", nil)
		return
	}

	files := make([]gin.H, 0, len(infos))
	for _, info := range infos {
		files = append(files, gin.H{
			"key":          info.Key,
			"sizeBytes":    info.SizeBytes,
			"lastModified": info.LastModified,
		})
	}

	respond.JSON(c, http.StatusOK, gin.H{"files": files})
}

func (h *Handler) listModels(c *gin.Context) {
	if h.Models == nil {
		respond.JSON(c, http.StatusOK, gin.H{"models": []llm.ModelInfo{}})
		return
	}
	models, err := h.Models.ListModels(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusBadGateway, "provider_error", "failed to list models", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"models": models})
}
