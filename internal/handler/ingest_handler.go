package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/starfire-ai/kbase/internal/model"
	appErr "github.com/starfire-ai/kbase/internal/pkg/errors"
	"github.com/starfire-ai/kbase/internal/service"
)

type IngestHandler struct {
	ingest      *service.IngestService
	maxFileSize int64
}

func NewIngestHandler(ingest *service.IngestService, maxFileSize int64) *IngestHandler {
	if maxFileSize <= 0 {
		maxFileSize = 1 << 30
	}
	return &IngestHandler{ingest: ingest, maxFileSize: maxFileSize}
}

type batchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type batchResponse struct {
	Files   []model.UploadRecord `json:"files"`
	Summary batchSummary         `json:"summary"`
	Errors  []string             `json:"errors,omitempty"`
}

// Upload accepts a multipart batch under any field name and processes it as
// one ingest run.
func (h *IngestHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("File upload error: %v", err),
			"type":  "UPLOAD_ERROR",
		})
		return
	}
	var headers []*multipart.FileHeader
	for _, fieldFiles := range form.File {
		headers = append(headers, fieldFiles...)
	}
	for _, header := range headers {
		if header.Size > h.maxFileSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File size exceeds 1GB limit"})
			return
		}
	}

	files := make([]service.IngestFile, 0, len(headers))
	for _, header := range headers {
		header := header
		files = append(files, service.IngestFile{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Open: func() (io.ReadCloser, error) {
				return header.Open()
			},
		})
	}

	result, err := h.ingest.ProcessBatch(c.Request.Context(), files)
	switch {
	case err == appErr.ErrNoFiles:
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	case err == appErr.ErrBatchFailed:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "All files failed to process",
			"errors":    result.Errors,
			"timestamp": nowTimestamp(),
		})
		return
	case err != nil:
		rawError(c, http.StatusInternalServerError, "File ingestion failed")
		return
	}

	resp := batchResponse{
		Files: result.Files,
		Summary: batchSummary{
			Total:      result.Total,
			Successful: result.Success,
			Failed:     result.Failed,
		},
	}
	if len(result.Errors) > 0 {
		resp.Errors = result.Errors
	}
	c.JSON(http.StatusOK, resp)
}

// GetFile returns the stored record for a single ingested object.
func (h *IngestHandler) GetFile(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	rec, err := h.ingest.GetUpload(c.Request.Context(), key, c.Query("version"))
	if err != nil {
		if appErr.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		rawError(c, http.StatusInternalServerError, "Failed to retrieve file")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// List returns one page of ingested records, newest first.
func (h *IngestHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 1 {
		page = 1
	}
	pageCount, _ := strconv.Atoi(c.Query("pageCount"))
	if pageCount <= 0 {
		pageCount = 20
	}
	if pageCount > 100 {
		pageCount = 100
	}

	records, total, err := h.ingest.ListUploads(c.Request.Context(), page, pageCount)
	if err != nil {
		rawError(c, http.StatusInternalServerError, "Failed to list files")
		return
	}
	totalPages := (total + int64(pageCount) - 1) / int64(pageCount)
	if totalPages < 1 {
		totalPages = 1
	}
	c.JSON(http.StatusOK, gin.H{
		"data": records,
		"pagination": gin.H{
			"page":       page,
			"pageCount":  pageCount,
			"hasMore":    int64(page) < totalPages,
			"totalPages": totalPages,
		},
	})
}
